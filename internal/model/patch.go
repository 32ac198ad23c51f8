package model

import "fmt"

// Confidence is the coarse quality tier attached to a proposed change.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence maps a raw tier string to a Confidence. The match is exact:
// anything that is not "high" or "medium", including "HIGH", is treated as
// low.
func ParseConfidence(s string) Confidence {
	switch Confidence(s) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// UnknownLabel stands in for a missing object type or field name.
const UnknownLabel = "Unknown"

// Patch is a single proposed field change to a CRM record.
type Patch struct {
	ObjectType string     `json:"objectType" yaml:"objectType"`
	FieldName  string     `json:"fieldName" yaml:"fieldName"`
	Before     any        `json:"before" yaml:"before"`
	After      any        `json:"after" yaml:"after"`
	Confidence Confidence `json:"confidence" yaml:"confidence"`
	Reasoning  string     `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	Source     string     `json:"source,omitempty" yaml:"source,omitempty"`
}

// Ref is the human-readable reference used in receipts and logs.
func (p Patch) Ref() string {
	return p.ObjectType + "." + p.FieldName
}

// FormatValue renders a before/after value for display. Nil renders as N/A.
func FormatValue(v any) string {
	if v == nil {
		return "N/A"
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Evidence is one piece of supporting material behind a backfill proposal.
type Evidence struct {
	Source   string `json:"source"`
	Date     string `json:"date,omitempty"`
	Excerpt  string `json:"excerpt"`
	SourceID string `json:"sourceId,omitempty"`
}

// BackfillProposal is a field value inferred from historical activity. It is
// reviewed on its own and never merged into a draft patch set.
type BackfillProposal struct {
	Field         string     `json:"field"`
	CurrentValue  any        `json:"currentValue"`
	ProposedValue any        `json:"proposedValue"`
	Confidence    Confidence `json:"confidence"`
	Reasoning     string     `json:"reasoning,omitempty"`
	Evidence      []Evidence `json:"sourceEvidence,omitempty"`
}
