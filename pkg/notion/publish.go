package notion

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/workbench/internal/model"
)

// Database property names and status values used for published pages.
const (
	PropName     = "Name"
	PropAccount  = "Account"
	PropCategory = "Category"
	PropSource   = "Source"
	PropStatus   = "Status"

	StatusCurrent    = "Current"
	StatusSuperseded = "Superseded"
)

// Notion caps children per request and characters per rich text object.
const (
	maxBlocksPerRequest = 100
	maxRichTextLen      = 2000
)

// Publication is the result of publishing one artifact.
type Publication struct {
	PageID     string
	Blocks     int
	Superseded int
}

// Publish creates a page for a in the database and marks earlier current
// pages for the same account and category as superseded.
func Publish(ctx context.Context, c Client, dbID string, a *model.Artifact, title string) (*Publication, error) {
	if a == nil {
		return nil, eris.New("notion: nil artifact")
	}
	if dbID == "" {
		return nil, eris.New("notion: database id is required")
	}

	previous, err := QueryCurrent(ctx, c, dbID, a.Account, a.Category)
	if err != nil {
		return nil, err
	}

	blocks := ArtifactBlocks(a)
	first, rest := blocks, []notionapi.Block(nil)
	if len(blocks) > maxBlocksPerRequest {
		first, rest = blocks[:maxBlocksPerRequest], blocks[maxBlocksPerRequest:]
	}

	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: buildPageProperties(a, title),
		Children:   first,
	})
	if err != nil {
		return nil, eris.Wrap(err, "notion: publish artifact")
	}
	pageID := string(page.ID)

	for len(rest) > 0 {
		n := min(len(rest), maxBlocksPerRequest)
		if err := c.AppendBlocks(ctx, pageID, rest[:n]); err != nil {
			return nil, eris.Wrap(err, "notion: publish remaining blocks")
		}
		rest = rest[n:]
	}

	pub := &Publication{PageID: pageID, Blocks: len(blocks)}
	for _, p := range previous {
		_, err := c.UpdatePage(ctx, string(p.ID), &notionapi.PageUpdateRequest{
			Properties: notionapi.Properties{
				PropStatus: notionapi.StatusProperty{Status: notionapi.Status{Name: StatusSuperseded}},
			},
		})
		if err != nil {
			// The new page exists; a stale status is visible and harmless.
			zap.L().Warn("notion: mark page superseded failed", zap.String("page_id", string(p.ID)), zap.Error(err))
			continue
		}
		pub.Superseded++
	}
	return pub, nil
}

func buildPageProperties(a *model.Artifact, title string) notionapi.Properties {
	return notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(title),
		},
		PropAccount:  textProperty(a.Account),
		PropCategory: textProperty(a.Category),
		PropSource:   textProperty(a.Path),
		PropStatus:   notionapi.StatusProperty{Status: notionapi.Status{Name: StatusCurrent}},
	}
}

func textProperty(v string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: richText(v),
	}
}

// richText splits s into rich text objects no longer than the API limit.
func richText(s string) []notionapi.RichText {
	r := []rune(s)
	if len(r) == 0 {
		return []notionapi.RichText{}
	}
	var out []notionapi.RichText
	for len(r) > 0 {
		n := min(len(r), maxRichTextLen)
		out = append(out, notionapi.RichText{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: string(r[:n])}})
		r = r[n:]
	}
	return out
}

// ArtifactBlocks renders an artifact as page content. Documents are read as
// light markdown; structured records become one heading per top-level key.
func ArtifactBlocks(a *model.Artifact) []notionapi.Block {
	if a.Record == nil {
		return MarkdownBlocks(a.Document)
	}

	keys := make([]string, 0, len(a.Record))
	for k := range a.Record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var blocks []notionapi.Block
	for _, k := range keys {
		blocks = append(blocks, heading(3, k))
		blocks = append(blocks, valueBlocks(a.Record[k])...)
	}
	return blocks
}

func valueBlocks(v any) []notionapi.Block {
	switch t := v.(type) {
	case []any:
		out := make([]notionapi.Block, 0, len(t))
		for _, item := range t {
			out = append(out, bullet(inline(item)))
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]notionapi.Block, 0, len(keys))
		for _, k := range keys {
			out = append(out, bullet(k+": "+inline(t[k])))
		}
		return out
	default:
		return []notionapi.Block{paragraph(model.FormatValue(v))}
	}
}

// inline renders nested values on one line.
func inline(v any) string {
	switch t := v.(type) {
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = inline(item)
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, inline(t[k]))
		}
		return strings.Join(parts, "; ")
	default:
		return model.FormatValue(v)
	}
}

// MarkdownBlocks converts headings, bullets and paragraphs. Consecutive text
// lines join into one paragraph; other markdown is kept as plain text.
func MarkdownBlocks(md string) []notionapi.Block {
	var blocks []notionapi.Block
	var para []string

	flush := func() {
		if len(para) > 0 {
			blocks = append(blocks, paragraph(strings.Join(para, " ")))
			para = nil
		}
	}

	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()
		case strings.HasPrefix(trimmed, "### "):
			flush()
			blocks = append(blocks, heading(3, trimmed[4:]))
		case strings.HasPrefix(trimmed, "## "):
			flush()
			blocks = append(blocks, heading(2, trimmed[3:]))
		case strings.HasPrefix(trimmed, "# "):
			flush()
			blocks = append(blocks, heading(1, trimmed[2:]))
		case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
			flush()
			blocks = append(blocks, bullet(trimmed[2:]))
		default:
			para = append(para, trimmed)
		}
	}
	flush()
	return blocks
}

func paragraph(s string) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeParagraph},
		Paragraph:  notionapi.Paragraph{RichText: richText(s)},
	}
}

func bullet(s string) notionapi.Block {
	return &notionapi.BulletedListItemBlock{
		BasicBlock:       notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeBulletedListItem},
		BulletedListItem: notionapi.ListItem{RichText: richText(s)},
	}
}

func heading(level int, s string) notionapi.Block {
	h := notionapi.Heading{RichText: richText(s)}
	switch level {
	case 1:
		return &notionapi.Heading1Block{
			BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading1},
			Heading1:   h,
		}
	case 2:
		return &notionapi.Heading2Block{
			BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading2},
			Heading2:   h,
		}
	default:
		return &notionapi.Heading3Block{
			BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading3},
			Heading3:   h,
		}
	}
}
