package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/workbench/internal/gateway"
	"github.com/sells-group/workbench/internal/model"
	"github.com/sells-group/workbench/internal/patch"
)

func testSet() *patch.Set {
	s := patch.New([]model.Patch{
		{ObjectType: "Account", FieldName: "Name", Before: "Acme", After: "Acme Inc", Confidence: model.ConfidenceHigh},
		{ObjectType: "Contact", FieldName: "Title", Before: "VP", After: "SVP", Confidence: model.ConfidenceLow},
		{ObjectType: "Account", FieldName: "Industry", After: "Software", Confidence: model.ConfidenceMedium},
	})
	s.Account = "acme"
	s.DraftPath = "/data/acme/drafts/crm-draft-20240101T000000Z.yaml"
	return s
}

var (
	keyName     = patch.Key{ObjectType: "Account", FieldName: "Name"}
	keyTitle    = patch.Key{ObjectType: "Contact", FieldName: "Title"}
	keyIndustry = patch.Key{ObjectType: "Account", FieldName: "Industry"}
)

func TestDefaultDecision(t *testing.T) {
	assert.True(t, DefaultDecision(model.Patch{Confidence: model.ConfidenceHigh}))
	assert.False(t, DefaultDecision(model.Patch{Confidence: model.ConfidenceMedium}))
	assert.False(t, DefaultDecision(model.Patch{Confidence: model.ConfidenceLow}))
}

func TestDefaultDecision_TierFromDraftIsExact(t *testing.T) {
	set, err := patch.FromDraft(&model.Artifact{Record: map[string]any{"patches": []any{
		map[string]any{"objectType": "Account", "fieldName": "Name", "confidence": "high"},
		map[string]any{"objectType": "Account", "fieldName": "Industry", "confidence": "HIGH"},
		map[string]any{"objectType": "Account", "fieldName": "Website", "confidence": "High "},
	}}})
	require.NoError(t, err)

	got := ApprovedSubset(set, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "Account.Name", got[0].Ref())
}

func TestApprovedSubset_Defaults(t *testing.T) {
	got := ApprovedSubset(testSet(), nil)
	require.Len(t, got, 1)
	assert.Equal(t, "Account.Name", got[0].Ref())
}

func TestApprovedSubset_OverridesWin(t *testing.T) {
	got := ApprovedSubset(testSet(), map[patch.Key]bool{keyName: false, keyTitle: true, keyIndustry: true})
	require.Len(t, got, 2)
	assert.Equal(t, "Contact.Title", got[0].Ref())
	assert.Equal(t, "Account.Industry", got[1].Ref())
}

func TestApprovedSubset_NilSet(t *testing.T) {
	assert.Empty(t, ApprovedSubset(nil, nil))
}

func TestSession_EndToEnd(t *testing.T) {
	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession(testSet(), WithClock(func() time.Time { return now }))
	assert.Equal(t, StateReviewing, s.State())

	assert.True(t, s.Decision(keyName))
	assert.False(t, s.Decision(keyTitle))

	require.NoError(t, s.SetDecision(keyTitle, true))
	require.NoError(t, s.SetDecision(keyTitle, true))

	req, err := s.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, s.State())
	assert.Equal(t, "acme", req.Account)
	assert.Equal(t, now, req.RequestedAt)
	require.Len(t, req.Patches, 2)
	assert.Equal(t, "Account.Name", req.Patches[0].Ref())
	assert.Equal(t, "Contact.Title", req.Patches[1].Ref())

	require.NoError(t, s.RecordResult(gateway.Result{Success: true}))
	assert.Equal(t, StateApplied, s.State())

	err = s.SetDecision(keyName, false)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = s.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSession_UnknownKey(t *testing.T) {
	s := NewSession(testSet())
	err := s.SetDecision(patch.Key{ObjectType: "Lead", FieldName: "Status"}, true)
	assert.ErrorIs(t, err, ErrUnknownPatch)
	assert.False(t, s.Decision(patch.Key{ObjectType: "Lead", FieldName: "Status"}))
	assert.Empty(t, s.Overrides())
}

func TestSession_EmptySelection(t *testing.T) {
	s := NewSession(testSet())
	require.NoError(t, s.SetAll(false))

	req, err := s.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrEmptySelection)
	assert.Nil(t, req)
	assert.Equal(t, StateReviewing, s.State())
}

func TestSession_DecisionsFrozenWhileConfirmed(t *testing.T) {
	s := NewSession(testSet())
	_, err := s.Confirm(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, s.SetDecision(keyTitle, true), ErrInvalidState)
	assert.ErrorIs(t, s.ResetDecisions(), ErrInvalidState)
	_, err = s.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSession_FailedApplyNeedsNewConfirm(t *testing.T) {
	s := NewSession(testSet())
	_, err := s.Confirm(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.RecordResult(gateway.Result{ExitCode: 1, Stderr: "INVALID_FIELD: Name"}))
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, "INVALID_FIELD: Name", s.LastError())

	// A second result without a new confirm is rejected.
	assert.ErrorIs(t, s.RecordResult(gateway.Result{Success: true}), ErrInvalidState)

	require.NoError(t, s.SetDecision(keyIndustry, true))
	req, err := s.Confirm(context.Background())
	require.NoError(t, err)
	assert.Len(t, req.Patches, 2)
	assert.Equal(t, StateConfirmed, s.State())

	require.NoError(t, s.RecordResult(gateway.Result{Success: true}))
	assert.Equal(t, StateApplied, s.State())
	assert.Empty(t, s.LastError())
}

func TestSession_RecordResultRequiresConfirm(t *testing.T) {
	s := NewSession(testSet())
	assert.ErrorIs(t, s.RecordResult(gateway.Result{Success: true}), ErrInvalidState)
}

func TestSession_ValidationKeepsReviewing(t *testing.T) {
	set := patch.New([]model.Patch{
		{ObjectType: model.UnknownLabel, FieldName: "Name", Confidence: model.ConfidenceHigh},
		{ObjectType: "Account", FieldName: model.UnknownLabel, Confidence: model.ConfidenceHigh},
		{ObjectType: "Account", FieldName: "Website", Confidence: model.ConfidenceHigh},
	})
	s := NewSession(set, WithValidator(ValidatorFunc(ValidateBasic)))

	_, err := s.Confirm(context.Background())
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Len(t, vErr.Problems, 2)
	assert.Equal(t, "missing object type", vErr.Problems[0].Message)
	assert.Equal(t, "missing field name", vErr.Problems[1].Message)
	assert.Contains(t, err.Error(), "2 patch(es) failed validation")
	assert.Equal(t, StateReviewing, s.State())
	assert.Nil(t, s.Request())

	require.NoError(t, s.SetDecision(set.Keys()[0], false))
	require.NoError(t, s.SetDecision(set.Keys()[1], false))
	req, err := s.Confirm(context.Background())
	require.NoError(t, err)
	assert.Len(t, req.Patches, 1)
}

func TestSession_ValidatorError(t *testing.T) {
	failing := ValidatorFunc(func(context.Context, []patch.Entry) ([]Problem, error) {
		return nil, errors.New("describe failed")
	})
	s := NewSession(testSet(), WithValidator(failing))
	_, err := s.Confirm(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "describe failed")
	assert.Equal(t, StateReviewing, s.State())
}

func TestChain(t *testing.T) {
	extra := ValidatorFunc(func(_ context.Context, entries []patch.Entry) ([]Problem, error) {
		return []Problem{{Key: entries[0].Key, Message: "read-only"}}, nil
	})
	set := patch.New([]model.Patch{{ObjectType: "", FieldName: "Name", Confidence: model.ConfidenceHigh}})

	problems, err := Chain(ValidatorFunc(ValidateBasic), nil, extra).Validate(context.Background(), set.Entries())
	require.NoError(t, err)
	require.Len(t, problems, 2)
	assert.Equal(t, "read-only", problems[1].Message)
}

func TestTally(t *testing.T) {
	s := NewSession(testSet())
	tally := s.Tally()
	assert.Equal(t, 3, tally.Total)
	assert.Equal(t, 1, tally.Approved)
	assert.Equal(t, 1, tally.ByConfidence[model.ConfidenceLow])

	require.NoError(t, s.SetAll(true))
	assert.Equal(t, 3, s.Tally().Approved)
	require.NoError(t, s.ResetDecisions())
	assert.Equal(t, 1, s.Tally().Approved)
}
