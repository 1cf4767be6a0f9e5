// Package source loads organization lists from a Notion database and
// writes drafting outcomes back to it.
package source

import (
	"context"
	"sort"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/tabular"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

// NotionOptions name the database's workflow properties.
type NotionOptions struct {
	StatusProperty string
	// QueuedStatus limits loading to pages in this status. Empty loads all.
	QueuedStatus  string
	DraftedStatus string
	ReviewStatus  string
	// Guard retries rate-limited and 5xx Notion responses. Optional.
	Guard *resilience.Guard
}

// Notion reads organizations from one database. Page properties are mapped
// to record fields by name, the same way spreadsheet headers are.
type Notion struct {
	client notion.Client
	dbID   string
	opts   NotionOptions
	pages  map[int]string // record row -> page ID
}

// NewNotion creates a Notion source.
func NewNotion(client notion.Client, dbID string, opts NotionOptions) *Notion {
	if opts.StatusProperty == "" {
		opts.StatusProperty = "Status"
	}
	return &Notion{client: client, dbID: dbID, opts: opts, pages: make(map[int]string)}
}

// Load fetches every matching page and maps it to an OrganizationRecord.
func (n *Notion) Load(ctx context.Context) (*tabular.Input, error) {
	var filter notionapi.Filter
	if n.opts.QueuedStatus != "" {
		filter = notion.StatusEquals(n.opts.StatusProperty, n.opts.QueuedStatus)
	}

	pages, err := resilience.Call(ctx, n.opts.Guard, func(ctx context.Context) ([]notionapi.Page, error) {
		return notion.QueryAll(ctx, n.client, n.dbID, filter)
	})
	if err != nil {
		return nil, eris.Wrap(err, "source: load notion organizations")
	}
	if len(pages) == 0 {
		return &tabular.Input{}, nil
	}

	colSet := make(map[string]struct{})
	for _, p := range pages {
		for name := range p.Properties {
			if name != n.opts.StatusProperty {
				colSet[name] = struct{}{}
			}
		}
	}
	header := make([]string, 0, len(colSet))
	for name := range colSet {
		header = append(header, name)
	}
	sort.Strings(header)

	n.pages = make(map[int]string, len(pages))
	rows := make([][]string, 0, len(pages)+1)
	rows = append(rows, header)
	for i, p := range pages {
		row := make([]string, len(header))
		for j, name := range header {
			if prop, ok := p.Properties[name]; ok {
				row[j] = notion.PlainText(prop)
			}
		}
		rows = append(rows, row)
		n.pages[i+1] = string(p.ID)
	}

	in, err := tabular.FromRows(rows)
	if err != nil {
		return nil, eris.Wrap(err, "source: map notion pages")
	}
	zap.L().Info("source: loaded notion organizations",
		zap.String("database", n.dbID),
		zap.Int("pages", len(pages)),
		zap.Int("records", len(in.Records)),
		zap.Int("rejected", len(in.Rejections)),
	)
	return in, nil
}

// PageID returns the page a loaded record came from.
func (n *Notion) PageID(rec model.OrganizationRecord) (string, bool) {
	id, ok := n.pages[rec.Row]
	return id, ok
}

// MarkResults sets each page's status to drafted or needs-review and
// records the final confidence. Failures are logged and counted; the first
// one is returned after every page has been tried.
func (n *Notion) MarkResults(ctx context.Context, batch *model.Batch) (int, error) {
	var firstErr error
	updated := 0
	for i := range batch.Records {
		rec := &batch.Records[i]
		pageID, ok := n.PageID(rec.Organization)
		if !ok || rec.Status == model.StatusCancelled {
			continue
		}

		status := n.opts.DraftedStatus
		if len(rec.Flags) > 0 || rec.Draft == nil {
			status = n.opts.ReviewStatus
		}
		props := notionapi.Properties{
			"Outreach Confidence": notion.NumberProperty(float64(rec.FinalConfidence)),
		}
		if status != "" {
			props[n.opts.StatusProperty] = notion.StatusProperty(status)
		}
		if len(rec.Flags) > 0 {
			props["Outreach Flags"] = notion.TextProperty(tabular.JoinFlags(rec.Flags))
		}

		req := &notionapi.PageUpdateRequest{Properties: props}
		_, err := resilience.Call(ctx, n.opts.Guard, func(ctx context.Context) (*notionapi.Page, error) {
			return n.client.UpdatePage(ctx, pageID, req)
		})
		if err != nil {
			zap.L().Warn("source: failed to update notion page",
				zap.String("organization", rec.Organization.Name),
				zap.String("page_id", pageID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = eris.Wrapf(err, "source: update page for %s", rec.Organization.Name)
			}
			continue
		}
		updated++
	}
	return updated, firstErr
}
