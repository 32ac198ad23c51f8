// Package notion publishes account artifacts to a Notion database.
package notion

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client is the subset of the Notion API the publisher needs.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
	AppendBlocks(ctx context.Context, blockID string, blocks []notionapi.Block) error
}

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit sets requests per second. rps <= 0 disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		c.limiter = nil
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type notionClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
}

// NewClient returns a Client for the integration token, throttled to Notion's
// documented 3 requests per second unless overridden.
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{
		api:     notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call waits for the limiter, runs fn, and wraps any failure with op.
func (c *notionClient) call(ctx context.Context, op string, fn func() error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "notion: rate limit")
		}
	}
	if err := fn(); err != nil {
		return eris.Wrap(err, "notion: "+op)
	}
	return nil
}

func (c *notionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	var resp *notionapi.DatabaseQueryResponse
	err := c.call(ctx, fmt.Sprintf("query database %s", dbID), func() (err error) {
		resp, err = c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
		return err
	})
	return resp, err
}

func (c *notionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	var page *notionapi.Page
	err := c.call(ctx, "create page", func() (err error) {
		page, err = c.api.Page.Create(ctx, req)
		return err
	})
	return page, err
}

func (c *notionClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	var page *notionapi.Page
	err := c.call(ctx, fmt.Sprintf("update page %s", pageID), func() (err error) {
		page, err = c.api.Page.Update(ctx, notionapi.PageID(pageID), req)
		return err
	})
	return page, err
}

func (c *notionClient) AppendBlocks(ctx context.Context, blockID string, blocks []notionapi.Block) error {
	return c.call(ctx, fmt.Sprintf("append blocks to %s", blockID), func() error {
		_, err := c.api.Block.AppendChildren(ctx, notionapi.BlockID(blockID), &notionapi.AppendBlockChildrenRequest{
			Children: blocks,
		})
		return err
	})
}
