// Package export writes patch sets and reviewer decisions to spreadsheets and
// reads decisions back from them.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/workbench/internal/approval"
	"github.com/sells-group/workbench/internal/model"
	"github.com/sells-group/workbench/internal/patch"
)

// Sheet names used in exported workbooks.
const (
	SheetPatches = "Patches"
	SheetSummary = "Summary"
)

// Header is the column layout of the patches sheet and CSV export.
var Header = []string{"Key", "Object", "Field", "Before", "After", "Confidence", "Approved", "Reasoning", "Source"}

const (
	colKey      = 0
	colAfter    = 4
	colApproved = 6
)

func rows(set *patch.Set, overrides map[patch.Key]bool) [][]string {
	out := make([][]string, 0, set.Count())
	for _, g := range set.GroupByObjectType() {
		for _, e := range g.Entries {
			out = append(out, []string{
				e.Key.String(),
				e.Patch.ObjectType,
				e.Patch.FieldName,
				model.FormatValue(e.Patch.Before),
				model.FormatValue(e.Patch.After),
				string(e.Patch.Confidence),
				strconv.FormatBool(decided(e, overrides)),
				e.Patch.Reasoning,
				e.Patch.Source,
			})
		}
	}
	return out
}

func decided(e patch.Entry, overrides map[patch.Key]bool) bool {
	if v, ok := overrides[e.Key]; ok {
		return v
	}
	return approval.DefaultDecision(e.Patch)
}

// WriteXLSX saves set to path as a workbook with a patches sheet, grouped by
// object type, and a summary sheet.
func WriteXLSX(path string, set *patch.Set, overrides map[patch.Key]bool) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(SheetPatches)
	if err != nil {
		return eris.Wrap(err, "export: add patches sheet")
	}
	addRow(sheet, Header)
	for _, r := range rows(set, overrides) {
		addRow(sheet, r)
	}

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	tally := approval.Count(set, overrides)
	addRow(summary, []string{"Account", set.Account})
	addRow(summary, []string{"Draft", set.DraftPath})
	addRow(summary, []string{"Generated", set.GeneratedAt})
	addRow(summary, []string{"Total", strconv.Itoa(tally.Total)})
	addRow(summary, []string{"Approved", strconv.Itoa(tally.Approved)})
	for _, c := range []model.Confidence{model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow} {
		addRow(summary, []string{"Confidence " + string(c), strconv.Itoa(tally.ByConfidence[c])})
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// WriteCSV writes the patches table to w.
func WriteCSV(w io.Writer, set *patch.Set, overrides map[patch.Key]bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	if err := cw.WriteAll(rows(set, overrides)); err != nil {
		return eris.Wrap(err, "export: write csv rows")
	}
	return nil
}

// ErrStaleWorkbook is returned when a workbook was exported from a different
// draft, or its proposed values no longer match the patch set under review.
var ErrStaleWorkbook = eris.New("export: workbook does not match the patch set")

// Workbook is the reviewer state read back from an exported workbook.
type Workbook struct {
	// Draft is the draft path recorded on the summary sheet, if any.
	Draft     string
	Decisions map[patch.Key]bool
	after     map[patch.Key]string
}

// ReadDecisions reads the Key, After and Approved columns of an exported
// workbook plus the draft recorded on its summary sheet. Rows with a blank
// Approved cell are skipped.
func ReadDecisions(path string) (*Workbook, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open workbook")
	}
	sheet, ok := f.Sheet[SheetPatches]
	if !ok {
		return nil, eris.Errorf("export: sheet %q not found", SheetPatches)
	}

	wb := &Workbook{
		Decisions: make(map[patch.Key]bool),
		after:     make(map[patch.Key]string),
	}
	if summary, ok := f.Sheet[SheetSummary]; ok {
		for _, row := range summary.Rows {
			if len(row.Cells) > 1 && row.Cells[0].String() == "Draft" {
				wb.Draft = row.Cells[1].String()
				break
			}
		}
	}

	for i, row := range sheet.Rows {
		if i == 0 || len(row.Cells) <= colApproved {
			continue
		}
		raw := strings.TrimSpace(row.Cells[colApproved].String())
		if raw == "" {
			continue
		}
		key, err := patch.ParseKey(row.Cells[colKey].String())
		if err != nil {
			return nil, eris.Wrapf(err, "export: row %d", i+1)
		}
		v, err := parseBool(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "export: row %d", i+1)
		}
		wb.Decisions[key] = v
		wb.after[key] = row.Cells[colAfter].String()
	}
	return wb, nil
}

// Check verifies the workbook was exported from set: the recorded draft must
// be set's draft and every decided row must still propose the same value.
func (w *Workbook) Check(set *patch.Set) error {
	if w.Draft != set.DraftPath {
		return eris.Wrapf(ErrStaleWorkbook, "workbook draft %q, reviewing %q", w.Draft, set.DraftPath)
	}
	for k, after := range w.after {
		e, ok := set.Lookup(k)
		if !ok {
			return eris.Wrapf(ErrStaleWorkbook, "patch %s is not in the draft", k)
		}
		if cur := model.FormatValue(e.Patch.After); cur != after {
			return eris.Wrapf(ErrStaleWorkbook, "patch %s proposes %q, workbook has %q", k, cur, after)
		}
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "y", "yes", "x":
		return true, nil
	case "n", "no":
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, eris.Errorf("invalid approval %q", s)
	}
	return v, nil
}
