package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/workbench/internal/model"
)

func TestBackfillFromArtifact(t *testing.T) {
	a := &model.Artifact{
		Path: "/acme/backfill/backfill-20240101T000000Z.json",
		Record: map[string]any{
			"generatedAt": "2024-01-01T00:00:00Z",
			"proposals": []any{
				map[string]any{
					"field":         "Competitors_Evaluated__c",
					"currentValue":  nil,
					"proposedValue": "Figma",
					"confidence":    "high",
					"reasoning":     "mentioned on two calls",
					"sourceEvidence": []any{
						map[string]any{"source": "call", "date": "2024-01-01", "excerpt": "we also looked at Figma", "sourceId": "gong-1"},
					},
				},
				map[string]any{"value": "legacy", "confidence": "medium"},
				"not a proposal",
			},
		},
	}

	r, err := BackfillFromArtifact(a)
	require.NoError(t, err)
	require.Len(t, r.Proposals, 2)

	first := r.Proposals[0]
	assert.Equal(t, "Competitors_Evaluated__c", first.Field)
	assert.Equal(t, "Figma", first.ProposedValue)
	assert.Equal(t, model.ConfidenceHigh, first.Confidence)
	require.Len(t, first.Evidence, 1)
	assert.Equal(t, "gong-1", first.Evidence[0].SourceID)

	second := r.Proposals[1]
	assert.Equal(t, model.UnknownLabel, second.Field)
	assert.Equal(t, "legacy", second.ProposedValue)
	assert.Equal(t, model.ConfidenceMedium, second.Confidence)
}

func TestBackfillFromArtifact_Empty(t *testing.T) {
	r, err := BackfillFromArtifact(&model.Artifact{Record: map[string]any{}})
	require.NoError(t, err)
	assert.Empty(t, r.Proposals)

	_, err = BackfillFromArtifact(&model.Artifact{Record: map[string]any{"proposals": 3}})
	assert.ErrorIs(t, err, ErrMalformedDraft)
}

func TestBackfillAsPatchSet(t *testing.T) {
	r := &BackfillReport{
		Path: "/acme/backfill/backfill-1.json",
		Proposals: []model.BackfillProposal{
			{Field: "Integration_Needs__c", ProposedValue: "SSO", Confidence: model.ConfidenceHigh,
				Evidence: []model.Evidence{{Source: "email"}}},
			{Field: "Integration_Needs__c", ProposedValue: "SCIM", Confidence: model.ConfidenceLow},
		},
	}

	s := r.AsPatchSet("acme", "Opportunity")
	require.Equal(t, 2, s.Count())
	assert.Equal(t, "acme", s.Account)
	groups := s.GroupByObjectType()
	require.Len(t, groups, 1)
	assert.Equal(t, "Opportunity", groups[0].ObjectType)
	assert.Equal(t, "email", s.Patches()[0].Source)
	assert.Equal(t, 1, s.Keys()[1].Occurrence)
}
