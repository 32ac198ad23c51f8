package export

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/workbench/internal/model"
	"github.com/sells-group/workbench/internal/patch"
)

func testSet() *patch.Set {
	s := patch.New([]model.Patch{
		{ObjectType: "Contact", FieldName: "Title", Before: "VP", After: "SVP", Confidence: model.ConfidenceLow, Source: "call-1"},
		{ObjectType: "Account", FieldName: "Name", Before: nil, After: "Acme Inc", Confidence: model.ConfidenceHigh, Reasoning: "signature"},
		{ObjectType: "Contact", FieldName: "Phone", After: int64(5551234), Confidence: model.ConfidenceMedium},
	})
	s.Account = "acme"
	s.DraftPath = "/data/acme/drafts/crm-draft-1.yaml"
	return s
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patches.xlsx")
	overrides := map[patch.Key]bool{{ObjectType: "Contact", FieldName: "Phone"}: true}
	require.NoError(t, WriteXLSX(path, testSet(), overrides))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	sheet, ok := f.Sheet[SheetPatches]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 4)
	assert.Equal(t, "Key", sheet.Rows[0].Cells[0].String())

	// Grouped by object type in first-seen order.
	assert.Equal(t, "Contact.Title#0", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "false", sheet.Rows[1].Cells[colApproved].String())
	assert.Equal(t, "Contact.Phone#0", sheet.Rows[2].Cells[0].String())
	assert.Equal(t, "5551234", sheet.Rows[2].Cells[4].String())
	assert.Equal(t, "true", sheet.Rows[2].Cells[colApproved].String())
	assert.Equal(t, "Account.Name#0", sheet.Rows[3].Cells[0].String())
	assert.Equal(t, "N/A", sheet.Rows[3].Cells[3].String())
	assert.Equal(t, "true", sheet.Rows[3].Cells[colApproved].String())

	summary, ok := f.Sheet[SheetSummary]
	require.True(t, ok)
	assert.Equal(t, "acme", summary.Rows[0].Cells[1].String())
	assert.Equal(t, "3", summary.Rows[3].Cells[1].String())
	assert.Equal(t, "2", summary.Rows[4].Cells[1].String())
}

func TestReadDecisions_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patches.xlsx")
	require.NoError(t, WriteXLSX(path, testSet(), nil))

	got, err := ReadDecisions(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/acme/drafts/crm-draft-1.yaml", got.Draft)
	assert.Equal(t, map[patch.Key]bool{
		{ObjectType: "Contact", FieldName: "Title"}: false,
		{ObjectType: "Contact", FieldName: "Phone"}: false,
		{ObjectType: "Account", FieldName: "Name"}:  true,
	}, got.Decisions)
	assert.NoError(t, got.Check(testSet()))
}

func TestWorkbook_CheckStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patches.xlsx")
	require.NoError(t, WriteXLSX(path, testSet(), nil))
	wb, err := ReadDecisions(path)
	require.NoError(t, err)

	otherDraft := testSet()
	otherDraft.DraftPath = "/data/acme/drafts/crm-draft-2.yaml"
	assert.ErrorIs(t, wb.Check(otherDraft), ErrStaleWorkbook)

	changed := patch.New([]model.Patch{
		{ObjectType: "Contact", FieldName: "Title", Before: "VP", After: "CRO", Confidence: model.ConfidenceLow},
		{ObjectType: "Account", FieldName: "Name", After: "Acme Inc", Confidence: model.ConfidenceHigh},
		{ObjectType: "Contact", FieldName: "Phone", After: int64(5551234), Confidence: model.ConfidenceMedium},
	})
	changed.DraftPath = testSet().DraftPath
	err = wb.Check(changed)
	require.ErrorIs(t, err, ErrStaleWorkbook)
	assert.Contains(t, err.Error(), "Contact.Title#0")

	missing := patch.New([]model.Patch{
		{ObjectType: "Account", FieldName: "Name", After: "Acme Inc", Confidence: model.ConfidenceHigh},
	})
	missing.DraftPath = testSet().DraftPath
	assert.ErrorIs(t, wb.Check(missing), ErrStaleWorkbook)
}

func TestReadDecisions_EditedWorkbook(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetPatches)
	require.NoError(t, err)
	addRow(sheet, Header)
	addRow(sheet, []string{"Account.Name", "Account", "Name", "", "", "high", "no"})
	addRow(sheet, []string{"Contact.Title#1", "Contact", "Title", "", "", "low", "Y"})
	addRow(sheet, []string{"Contact.Phone", "Contact", "Phone", "", "", "low", ""})
	path := filepath.Join(t.TempDir(), "edited.xlsx")
	require.NoError(t, f.Save(path))

	got, err := ReadDecisions(path)
	require.NoError(t, err)
	assert.Empty(t, got.Draft)
	assert.Equal(t, map[patch.Key]bool{
		{ObjectType: "Account", FieldName: "Name"}:                  false,
		{ObjectType: "Contact", FieldName: "Title", Occurrence: 1}: true,
	}, got.Decisions)
}

func TestReadDecisions_Errors(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetPatches)
	require.NoError(t, err)
	addRow(sheet, Header)
	addRow(sheet, []string{"Account.Name", "", "", "", "", "", "maybe"})
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, f.Save(path))

	_, err = ReadDecisions(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")

	other := xlsx.NewFile()
	_, err = other.AddSheet("Other")
	require.NoError(t, err)
	otherPath := filepath.Join(t.TempDir(), "other.xlsx")
	require.NoError(t, other.Save(otherPath))
	_, err = ReadDecisions(otherPath)
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, testSet(), nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, []string{"Contact.Title#0", "Contact", "Title", "VP", "SVP", "low", "false", "", "call-1"}, records[1])
}
