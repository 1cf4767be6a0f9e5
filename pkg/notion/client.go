// Package notion wraps the Notion API for the outreach workflow: reading the
// queued organizations from a database and writing each organization's
// drafting status, confidence and review flags back to its page.
package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client is the subset of the Notion API the outreach source needs. Reads go
// through QueryDatabase, write-back through UpdatePage; pages are never
// created or archived.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// APIError is a Notion error response. It exposes the HTTP status so callers
// guarding Notion calls can retry rate limits and 5xx responses and give up
// on validation errors such as a missing status option.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion: status %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit overrides the default Notion rate limit (3 req/s, the
// integration average Notion enforces). A non-positive value disables
// throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type notionClient struct {
	inner   *notionapi.Client
	limiter *rate.Limiter
}

// NewClient creates a Notion client for an integration token. The token's
// integration must be shared with the organization database.
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{
		inner:   notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *notionClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *notionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	resp, err := c.inner.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, eris.Wrap(classifyErr(err), fmt.Sprintf("notion: query database %s", dbID))
	}
	return resp, nil
}

// UpdatePage sets properties on an organization page. Properties not named
// in req are left untouched, so reviewer edits to other columns survive.
func (c *notionClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	page, err := c.inner.Page.Update(ctx, notionapi.PageID(pageID), req)
	if err != nil {
		return nil, eris.Wrap(classifyErr(err), fmt.Sprintf("notion: update page %s", pageID))
	}
	return page, nil
}

// classifyErr converts SDK error responses into APIError. The SDK gives up
// on 429s with its own error type, which carries no status.
func classifyErr(err error) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.Status, Code: string(apiErr.Code), Message: apiErr.Message}
	}
	var rlErr *notionapi.RateLimitedError
	if errors.As(err, &rlErr) {
		return &APIError{StatusCode: http.StatusTooManyRequests, Code: "rate_limited", Message: rlErr.Message}
	}
	return err
}
