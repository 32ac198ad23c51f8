package model

import "time"

// Format is the decoding format of an artifact category.
type Format string

const (
	FormatStructured Format = "structured" // JSON or YAML record
	FormatDocument   Format = "document"   // markdown body
)

// Selection describes how a category is normally consumed.
type Selection string

const (
	SelectionLatest Selection = "latest"
	SelectionAll    Selection = "all"
)

// Category is a named kind of generated document with its own directory,
// filename pattern, and decoding format.
type Category struct {
	Name      string    `json:"name"`
	Dir       string    `json:"dir"`
	Prefix    string    `json:"prefix"`
	Ext       string    `json:"ext"`
	Format    Format    `json:"format"`
	Selection Selection `json:"selection"`
}

// Artifact is one decoded file instance of a category for one account.
type Artifact struct {
	Category  string         `json:"category"`
	Account   string         `json:"account"`
	Timestamp time.Time      `json:"timestamp"`
	Path      string         `json:"path"`
	Record    map[string]any `json:"record,omitempty"`
	Document  string         `json:"document,omitempty"`
}

// String returns a string field from a structured payload, or "" when absent
// or not a string.
func (a *Artifact) String(key string) string {
	if a == nil || a.Record == nil {
		return ""
	}
	s, _ := a.Record[key].(string)
	return s
}

// List returns a list field from a structured payload, or nil when absent or
// not a list.
func (a *Artifact) List(key string) []any {
	if a == nil || a.Record == nil {
		return nil
	}
	l, _ := a.Record[key].([]any)
	return l
}
