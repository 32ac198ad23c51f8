// Package approval tracks reviewer decisions over a patch set and moves the
// approved subset through confirmation and apply.
package approval

import (
	"github.com/sells-group/workbench/internal/model"
	"github.com/sells-group/workbench/internal/patch"
)

// DefaultDecision is the initial approval for a patch: only high-confidence
// patches start approved.
func DefaultDecision(p model.Patch) bool {
	return p.Confidence == model.ConfidenceHigh
}

// ApprovedSubset returns the patches whose effective decision is approved,
// in draft order. overrides holds explicit decisions; any key absent from it
// falls back to DefaultDecision.
func ApprovedSubset(set *patch.Set, overrides map[patch.Key]bool) []model.Patch {
	entries := approvedEntries(set, overrides)
	out := make([]model.Patch, len(entries))
	for i, e := range entries {
		out[i] = e.Patch
	}
	return out
}

func approvedEntries(set *patch.Set, overrides map[patch.Key]bool) []patch.Entry {
	if set == nil {
		return nil
	}
	var out []patch.Entry
	for _, e := range set.Entries() {
		if decide(e, overrides) {
			out = append(out, e)
		}
	}
	return out
}

func decide(e patch.Entry, overrides map[patch.Key]bool) bool {
	if v, ok := overrides[e.Key]; ok {
		return v
	}
	return DefaultDecision(e.Patch)
}

// Tally counts patches by confidence and effective decision.
type Tally struct {
	Total        int                      `json:"total"`
	Approved     int                      `json:"approved"`
	ByConfidence map[model.Confidence]int `json:"byConfidence"`
}

// Count tallies set under the given overrides.
func Count(set *patch.Set, overrides map[patch.Key]bool) Tally {
	t := Tally{ByConfidence: make(map[model.Confidence]int)}
	if set == nil {
		return t
	}
	for _, e := range set.Entries() {
		t.Total++
		t.ByConfidence[e.Patch.Confidence]++
		if decide(e, overrides) {
			t.Approved++
		}
	}
	return t
}
