// Package artifact resolves generated documents stored per account under
// timestamp-named files. Filenames are the only index: there is no manifest.
package artifact

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/workbench/internal/model"
)

// Category names.
const (
	CategorySnapshot      = "snapshot"
	CategoryCRMDraft      = "crm-draft"
	CategoryApplied       = "applied-receipt"
	CategoryBrief         = "brief"
	CategoryPostcall      = "postcall-summary"
	CategoryEmail         = "email-draft"
	CategoryCoaching      = "coaching-feedback"
	CategoryDemoIdeas     = "demo-ideas"
	CategoryQualification = "qualification"
	CategoryExecSummary   = "exec-summary"
	CategoryDealReview    = "deal-review"
	CategoryHandoff       = "handoff"
	CategoryClosedLost    = "closed-lost"
	CategoryBackfill      = "backfill"
)

// ErrUnknownCategory is returned for a category name missing from the registry.
var ErrUnknownCategory = eris.New("artifact: unknown category")

var categories = map[string]model.Category{
	CategorySnapshot:      {Name: CategorySnapshot, Dir: "snapshots", Prefix: "snapshot", Ext: ".json", Format: model.FormatStructured, Selection: model.SelectionLatest},
	CategoryCRMDraft:      {Name: CategoryCRMDraft, Dir: "drafts", Prefix: "crm-draft", Ext: ".yaml", Format: model.FormatStructured, Selection: model.SelectionLatest},
	CategoryApplied:       {Name: CategoryApplied, Dir: "applied", Prefix: "apply", Ext: ".json", Format: model.FormatStructured, Selection: model.SelectionLatest},
	CategoryBrief:         {Name: CategoryBrief, Dir: "briefs", Prefix: "precall", Ext: ".json", Format: model.FormatStructured, Selection: model.SelectionLatest},
	CategoryPostcall:      {Name: CategoryPostcall, Dir: "postcall", Prefix: "postcall", Ext: ".json", Format: model.FormatStructured, Selection: model.SelectionAll},
	CategoryEmail:         {Name: CategoryEmail, Dir: "emails", Prefix: "email", Ext: ".json", Format: model.FormatStructured, Selection: model.SelectionAll},
	CategoryCoaching:      {Name: CategoryCoaching, Dir: "coaching", Prefix: "coaching", Ext: ".json", Format: model.FormatStructured, Selection: model.SelectionAll},
	CategoryDemoIdeas:     {Name: CategoryDemoIdeas, Dir: "demos", Prefix: "demo-ideas", Ext: ".json", Format: model.FormatStructured, Selection: model.SelectionLatest},
	CategoryQualification: {Name: CategoryQualification, Dir: "qualification", Prefix: "meddic", Ext: ".json", Format: model.FormatStructured, Selection: model.SelectionLatest},
	CategoryExecSummary:   {Name: CategoryExecSummary, Dir: "summaries", Prefix: "exec-summary", Ext: ".json", Format: model.FormatStructured, Selection: model.SelectionLatest},
	CategoryDealReview:    {Name: CategoryDealReview, Dir: "reviews", Prefix: "deal-review", Ext: ".json", Format: model.FormatStructured, Selection: model.SelectionLatest},
	CategoryHandoff:       {Name: CategoryHandoff, Dir: "handoffs", Prefix: "handoff", Ext: ".md", Format: model.FormatDocument, Selection: model.SelectionLatest},
	CategoryClosedLost:    {Name: CategoryClosedLost, Dir: "closedlost", Prefix: "closedlost", Ext: ".json", Format: model.FormatStructured, Selection: model.SelectionLatest},
	CategoryBackfill:      {Name: CategoryBackfill, Dir: "backfill", Prefix: "backfill", Ext: ".json", Format: model.FormatStructured, Selection: model.SelectionAll},
}

// Lookup returns the registered category with the given name.
func Lookup(name string) (model.Category, error) {
	c, ok := categories[name]
	if !ok {
		return model.Category{}, eris.Wrapf(ErrUnknownCategory, "%q", name)
	}
	return c, nil
}

// Categories returns every registered category sorted by name.
func Categories() []model.Category {
	out := make([]model.Category, 0, len(categories))
	for _, c := range categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Integration names for raw snapshot files.
const (
	IntegrationGong       = "gong"
	IntegrationSalesforce = "salesforce"
	IntegrationNotion     = "notion"
)

// rawFiles maps an integration to its fixed-name snapshot under raw/.
var rawFiles = map[string]string{
	IntegrationGong:       "gong_calls.json",
	IntegrationSalesforce: "salesforce.json",
	IntegrationNotion:     "notion_pages.json",
}
