package patch

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/workbench/internal/model"
)

// BackfillReport is one decoded backfill artifact.
type BackfillReport struct {
	Path        string                   `json:"path"`
	Timestamp   time.Time                `json:"timestamp"`
	GeneratedAt string                   `json:"generatedAt,omitempty"`
	Proposals   []model.BackfillProposal `json:"proposals"`
}

// BackfillFromArtifact reads the proposals of a backfill artifact. Missing
// optional fields are left empty; a proposal without a field name is
// labelled Unknown.
func BackfillFromArtifact(a *model.Artifact) (*BackfillReport, error) {
	if a == nil {
		return nil, eris.New("patch: nil backfill artifact")
	}
	r := &BackfillReport{
		Path:        a.Path,
		Timestamp:   a.Timestamp,
		GeneratedAt: stringValue(a.Record["generatedAt"]),
	}

	raw, present := a.Record["proposals"]
	if !present || raw == nil {
		return r, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, eris.Wrapf(ErrMalformedDraft, "%s: proposals is %T", a.Path, raw)
	}

	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		proposed, has := m["proposedValue"]
		if !has {
			proposed = m["value"]
		}
		r.Proposals = append(r.Proposals, model.BackfillProposal{
			Field:         labelOrUnknown(m["field"]),
			CurrentValue:  m["currentValue"],
			ProposedValue: proposed,
			Confidence:    model.ParseConfidence(stringValue(m["confidence"])),
			Reasoning:     stringValue(m["reasoning"]),
			Evidence:      parseEvidence(m["sourceEvidence"]),
		})
	}
	return r, nil
}

func parseEvidence(v any) []model.Evidence {
	list, _ := v.([]any)
	var out []model.Evidence
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, model.Evidence{
			Source:   stringValue(m["source"]),
			Date:     stringValue(m["date"]),
			Excerpt:  stringValue(m["excerpt"]),
			SourceID: stringValue(m["sourceId"]),
		})
	}
	return out
}

// AsPatchSet turns backfill proposals into their own patch set, targeting
// objectType, so they can go through the same approval flow as a draft. The
// result is independent of any draft set.
func (r *BackfillReport) AsPatchSet(account, objectType string) *Set {
	patches := make([]model.Patch, 0, len(r.Proposals))
	for _, p := range r.Proposals {
		source := ""
		if len(p.Evidence) > 0 {
			source = p.Evidence[0].SourceID
			if source == "" {
				source = p.Evidence[0].Source
			}
		}
		patches = append(patches, model.Patch{
			ObjectType: objectType,
			FieldName:  p.Field,
			Before:     p.CurrentValue,
			After:      p.ProposedValue,
			Confidence: p.Confidence,
			Reasoning:  p.Reasoning,
			Source:     source,
		})
	}
	s := New(patches)
	s.Account = account
	s.DraftPath = r.Path
	s.DraftTime = r.Timestamp
	s.GeneratedAt = r.GeneratedAt
	return s
}
