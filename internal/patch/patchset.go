// Package patch turns CRM-draft artifacts into ordered, grouped patch sets.
package patch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/workbench/internal/model"
)

// ErrMalformedDraft is returned when a draft's patches field is not a list.
var ErrMalformedDraft = eris.New("patch: malformed draft")

// Key identifies one patch within a set. Occurrence counts earlier patches
// with the same object type and field name, so duplicates stay distinct.
type Key struct {
	ObjectType string `json:"objectType"`
	FieldName  string `json:"fieldName"`
	Occurrence int    `json:"occurrence"`
}

// String renders the key as Object.Field#n.
func (k Key) String() string {
	return k.ObjectType + "." + k.FieldName + "#" + strconv.Itoa(k.Occurrence)
}

// ParseKey parses Object.Field or Object.Field#n. The occurrence defaults to 0.
func ParseKey(s string) (Key, error) {
	ref, occ, hasOcc := strings.Cut(strings.TrimSpace(s), "#")
	obj, field, ok := strings.Cut(ref, ".")
	if !ok || obj == "" || field == "" {
		return Key{}, eris.Errorf("patch: invalid key %q, want Object.Field[#n]", s)
	}
	k := Key{ObjectType: obj, FieldName: field}
	if hasOcc {
		n, err := strconv.Atoi(occ)
		if err != nil || n < 0 {
			return Key{}, eris.Errorf("patch: invalid occurrence in key %q", s)
		}
		k.Occurrence = n
	}
	return k, nil
}

// Entry is one patch with its key and position in the draft.
type Entry struct {
	Key   Key         `json:"key"`
	Index int         `json:"index"`
	Patch model.Patch `json:"patch"`
}

// Group holds the patches for one object type in draft order.
type Group struct {
	ObjectType string  `json:"objectType"`
	Entries    []Entry `json:"entries"`
}

// Set is every patch from one CRM draft. It is rebuilt each time the latest
// draft is loaded.
type Set struct {
	Account     string    `json:"account"`
	DraftPath   string    `json:"draftPath"`
	DraftTime   time.Time `json:"draftTime"`
	GeneratedAt string    `json:"generatedAt,omitempty"`
	entries     []Entry
	byKey       map[Key]int
}

// New builds a set from patches in the given order.
func New(patches []model.Patch) *Set {
	s := &Set{byKey: make(map[Key]int, len(patches))}
	seen := make(map[[2]string]int)
	for i, p := range patches {
		id := [2]string{p.ObjectType, p.FieldName}
		k := Key{ObjectType: p.ObjectType, FieldName: p.FieldName, Occurrence: seen[id]}
		seen[id]++
		s.byKey[k] = len(s.entries)
		s.entries = append(s.entries, Entry{Key: k, Index: i, Patch: p})
	}
	return s
}

// FromDraft extracts the patches array from a CRM-draft artifact. Optional
// fields may be absent. A patch without objectType or fieldName is kept and
// labelled Unknown rather than dropped.
func FromDraft(a *model.Artifact) (*Set, error) {
	if a == nil {
		return nil, eris.New("patch: nil draft")
	}

	var patches []model.Patch
	if raw, present := a.Record["patches"]; present && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, eris.Wrapf(ErrMalformedDraft, "%s: patches is %T", a.Path, raw)
		}
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				zap.L().Warn("patch: skipping non-mapping draft entry",
					zap.String("path", a.Path),
					zap.Int("index", i),
				)
				continue
			}
			patches = append(patches, parsePatch(m))
		}
	}

	s := New(patches)
	s.Account = a.Account
	s.DraftPath = a.Path
	s.DraftTime = a.Timestamp
	s.GeneratedAt = stringValue(a.Record["generatedAt"])
	return s, nil
}

func parsePatch(m map[string]any) model.Patch {
	return model.Patch{
		ObjectType: labelOrUnknown(m["objectType"]),
		FieldName:  labelOrUnknown(m["fieldName"]),
		Before:     m["before"],
		After:      m["after"],
		Confidence: model.ParseConfidence(stringValue(m["confidence"])),
		Reasoning:  stringValue(m["reasoning"]),
		Source:     sourceValue(m["source"]),
	}
}

func labelOrUnknown(v any) string {
	s := strings.TrimSpace(stringValue(v))
	if s == "" {
		return model.UnknownLabel
	}
	return s
}

// stringValue renders scalars as strings. Nil and containers become "".
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// sourceValue accepts a single source id or a list of them.
func sourceValue(v any) string {
	list, ok := v.([]any)
	if !ok {
		return stringValue(v)
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		if s := stringValue(item); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Count returns the total number of patches.
func (s *Set) Count() int {
	return len(s.entries)
}

// Entries returns every entry in draft order.
func (s *Set) Entries() []Entry {
	return s.entries
}

// Patches returns every patch in draft order.
func (s *Set) Patches() []model.Patch {
	out := make([]model.Patch, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Patch
	}
	return out
}

// Keys returns the key of every patch in draft order.
func (s *Set) Keys() []Key {
	out := make([]Key, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Key
	}
	return out
}

// Lookup returns the entry for k.
func (s *Set) Lookup(k Key) (Entry, bool) {
	i, ok := s.byKey[k]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// GroupByObjectType partitions the set by object type. Object types appear in
// first-seen order and patches keep draft order within each group.
func (s *Set) GroupByObjectType() []Group {
	var groups []Group
	idx := make(map[string]int)
	for _, e := range s.entries {
		gi, ok := idx[e.Patch.ObjectType]
		if !ok {
			gi = len(groups)
			idx[e.Patch.ObjectType] = gi
			groups = append(groups, Group{ObjectType: e.Patch.ObjectType})
		}
		groups[gi].Entries = append(groups[gi].Entries, e)
	}
	return groups
}
