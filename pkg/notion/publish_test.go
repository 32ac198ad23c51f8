package notion

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/workbench/internal/model"
)

func handoffArtifact(body string) *model.Artifact {
	return &model.Artifact{
		Category: "handoff",
		Account:  "acme",
		Path:     "/data/acme/handoffs/handoff-20240101T000000Z.md",
		Document: body,
	}
}

func TestPublish_CreatesPageAndSupersedes(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-pub", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "old-1"}, {ID: "old-2"}}}, nil).Once()

	var created *notionapi.PageCreateRequest
	mc.On("CreatePage", ctx, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*notionapi.PageCreateRequest) }).
		Return(&notionapi.Page{ID: "new-1"}, nil).Once()

	mc.On("UpdatePage", ctx, "old-1", mock.MatchedBy(func(req *notionapi.PageUpdateRequest) bool {
		sp, ok := req.Properties[PropStatus].(notionapi.StatusProperty)
		return ok && sp.Status.Name == StatusSuperseded
	})).Return(&notionapi.Page{ID: "old-1"}, nil).Once()
	mc.On("UpdatePage", ctx, "old-2", mock.Anything).Return(nil, assert.AnError).Once()

	pub, err := Publish(ctx, mc, "db-pub", handoffArtifact("# Handoff\n\nDeal closed.\n\n- Kickoff Monday"), "Acme Corp handoff")
	require.NoError(t, err)
	assert.Equal(t, "new-1", pub.PageID)
	assert.Equal(t, 3, pub.Blocks)
	assert.Equal(t, 1, pub.Superseded)

	require.NotNil(t, created)
	assert.Equal(t, notionapi.DatabaseID("db-pub"), created.Parent.DatabaseID)
	title, ok := created.Properties[PropName].(notionapi.TitleProperty)
	require.True(t, ok)
	assert.Equal(t, "Acme Corp handoff", title.Title[0].Text.Content)
	account, ok := created.Properties[PropAccount].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "acme", account.RichText[0].Text.Content)
	require.Len(t, created.Children, 3)
	mc.AssertExpectations(t)
}

func TestPublish_AppendsOverflowBlocks(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	var lines []string
	for i := 0; i < 230; i++ {
		lines = append(lines, fmt.Sprintf("- item %d", i))
	}

	mc.On("QueryDatabase", ctx, "db-pub", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		return len(req.Children) == maxBlocksPerRequest
	})).Return(&notionapi.Page{ID: "new-1"}, nil).Once()
	mc.On("AppendBlocks", ctx, "new-1", mock.MatchedBy(func(b []notionapi.Block) bool { return len(b) == 100 })).Return(nil).Once()
	mc.On("AppendBlocks", ctx, "new-1", mock.MatchedBy(func(b []notionapi.Block) bool { return len(b) == 30 })).Return(nil).Once()

	pub, err := Publish(ctx, mc, "db-pub", handoffArtifact(strings.Join(lines, "\n")), "big")
	require.NoError(t, err)
	assert.Equal(t, 230, pub.Blocks)
	mc.AssertExpectations(t)
}

func TestPublish_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Publish(ctx, new(MockClient), "", handoffArtifact("x"), "t")
	assert.Error(t, err)
	_, err = Publish(ctx, new(MockClient), "db", nil, "t")
	assert.Error(t, err)

	mc := new(MockClient)
	mc.On("QueryDatabase", ctx, "db", mock.Anything).Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("CreatePage", ctx, mock.Anything).Return(nil, assert.AnError).Once()
	_, err = Publish(ctx, mc, "db", handoffArtifact("x"), "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: publish artifact")
}

func TestMarkdownBlocks(t *testing.T) {
	blocks := MarkdownBlocks("# Title\nintro line one\nline two\n\n## Section\n* first\n- second\n### Sub\nclosing")
	require.Len(t, blocks, 7)

	assert.Equal(t, notionapi.BlockTypeHeading1, blocks[0].GetType())
	p, ok := blocks[1].(*notionapi.ParagraphBlock)
	require.True(t, ok)
	assert.Equal(t, "intro line one line two", p.Paragraph.RichText[0].Text.Content)
	assert.Equal(t, notionapi.BlockTypeHeading2, blocks[2].GetType())
	assert.Equal(t, notionapi.BlockTypeBulletedListItem, blocks[3].GetType())
	assert.Equal(t, notionapi.BlockTypeBulletedListItem, blocks[4].GetType())
	assert.Equal(t, notionapi.BlockTypeHeading3, blocks[5].GetType())
	assert.Equal(t, notionapi.BlockTypeParagraph, blocks[6].GetType())
}

func TestArtifactBlocks_Structured(t *testing.T) {
	a := &model.Artifact{Record: map[string]any{
		"summary":   "Strong fit",
		"keyPoints": []any{"budget", "timeline"},
		"owner":     map[string]any{"name": "Ana", "role": "AE"},
	}}
	blocks := ArtifactBlocks(a)
	// keyPoints: heading + 2 bullets, owner: heading + 2 bullets, summary: heading + paragraph.
	require.Len(t, blocks, 8)
	h, ok := blocks[0].(*notionapi.Heading3Block)
	require.True(t, ok)
	assert.Equal(t, "keyPoints", h.Heading3.RichText[0].Text.Content)
	b, ok := blocks[4].(*notionapi.BulletedListItemBlock)
	require.True(t, ok)
	assert.Equal(t, "name: Ana", b.BulletedListItem.RichText[0].Text.Content)
}

func TestRichText_Chunks(t *testing.T) {
	rt := richText(strings.Repeat("a", maxRichTextLen*2+5))
	require.Len(t, rt, 3)
	assert.Len(t, rt[2].Text.Content, 5)
	assert.Empty(t, richText(""))
}

func TestInline(t *testing.T) {
	assert.Equal(t, "a, b", inline([]any{"a", "b"}))
	assert.Equal(t, "x: 1; y: N/A", inline(map[string]any{"y": nil, "x": int64(1)}))
}
