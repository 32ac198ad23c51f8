package model

import "time"

// ApplyRequest is the validated, non-empty set of approved patches handed to
// the external apply step.
type ApplyRequest struct {
	Account     string    `json:"account" yaml:"account"`
	DraftPath   string    `json:"draftPath,omitempty" yaml:"draftPath,omitempty"`
	Patches     []Patch   `json:"patches" yaml:"patches"`
	RequestedAt time.Time `json:"requestedAt" yaml:"requestedAt"`
}

// ApplyError reports a single patch the external apply step could not write.
type ApplyError struct {
	Patch   string `json:"patch" yaml:"patch"`
	Message string `json:"message" yaml:"message"`
}

// ApplyResult is the receipt written by the external apply step under
// applied/apply-<ts>.json.
type ApplyResult struct {
	Success      bool         `json:"success" yaml:"success"`
	AppliedCount int          `json:"appliedCount" yaml:"appliedCount"`
	Errors       []ApplyError `json:"errors" yaml:"errors"`
}
