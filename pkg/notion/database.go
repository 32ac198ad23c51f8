package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches all pages from a Notion database, following cursors.
// Rate limiting is enforced by the Client (3 req/s by default).
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page

	req := &notionapi.DatabaseQueryRequest{}
	if filter != nil {
		req.Filter = filter.Filter
		req.Sorts = filter.Sorts
		req.PageSize = filter.PageSize
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "notion: query all cancelled")
		}
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}
		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}
		next := *req
		next.StartCursor = resp.NextCursor
		req = &next
	}

	return all, nil
}

// QueryCurrent fetches the pages still marked current for an account and
// category.
func QueryCurrent(ctx context.Context, c Client, dbID, account, category string) ([]notionapi.Page, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.AndCompoundFilter{
			notionapi.PropertyFilter{
				Property: PropAccount,
				RichText: &notionapi.TextFilterCondition{Equals: account},
			},
			notionapi.PropertyFilter{
				Property: PropCategory,
				RichText: &notionapi.TextFilterCondition{Equals: category},
			},
			notionapi.PropertyFilter{
				Property: PropStatus,
				Status:   &notionapi.StatusFilterCondition{Equals: StatusCurrent},
			},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "notion: query current pages")
	}
	return pages, nil
}
