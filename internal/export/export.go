// Package export pushes reviewed outreach emails into Gmail as drafts.
package export

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/gmail"
)

// Skip reasons.
const (
	SkipNoDraft     = "no draft"
	SkipNoRecipient = "no recipient email"
	SkipFlagged     = "flagged for review"
	SkipCancelled   = "cancelled"
)

// Options configure an Exporter.
type Options struct {
	// Sender fills the From header. Gmail uses the account address when empty.
	Sender string
	// SkipFlagged leaves out every record that carries a flag, unless a
	// reviewer edited it.
	SkipFlagged bool
}

// Skipped is a record that was not exported.
type Skipped struct {
	Index        int    `json:"index"`
	Organization string `json:"organization"`
	Reason       string `json:"reason"`
}

// Result summarizes one export run.
type Result struct {
	Created  []string             `json:"created"` // Gmail draft IDs
	Skipped  []Skipped            `json:"skipped,omitempty"`
	Failures []resilience.Failure `json:"failures,omitempty"`
}

// Exporter creates one Gmail draft per exportable record.
type Exporter struct {
	client gmail.Client
	guard  *resilience.Guard
	opts   Options
}

// New creates an Exporter. guard may be nil.
func New(client gmail.Client, guard *resilience.Guard, opts Options) *Exporter {
	return &Exporter{client: client, guard: guard, opts: opts}
}

// Export creates drafts for records in order. Per-record failures are
// collected in the Result; an error is returned only when ctx ends the run.
func (e *Exporter) Export(ctx context.Context, records []model.EmailRecord) (Result, error) {
	var res Result
	for i := range records {
		rec := &records[i]
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "export: cancelled")
		}
		if reason := e.skipReason(rec); reason != "" {
			res.Skipped = append(res.Skipped, Skipped{Index: i, Organization: rec.Organization.Name, Reason: reason})
			continue
		}

		msg := gmail.Message{
			From:    e.opts.Sender,
			To:      strings.TrimSpace(rec.Contact.Email),
			Subject: rec.Draft.Subject,
			Body:    rec.Draft.Body,
		}
		id, err := resilience.Call(ctx, e.guard, func(ctx context.Context) (string, error) {
			return e.client.CreateDraft(ctx, msg)
		})
		if err != nil {
			if ctx.Err() != nil {
				return res, eris.Wrap(ctx.Err(), "export: cancelled")
			}
			zap.L().Warn("export: create draft failed",
				zap.String("organization", rec.Organization.Name),
				zap.String("to", msg.To),
				zap.Error(err),
			)
			res.Failures = append(res.Failures, resilience.NewFailure(rec.Organization.Name, "gmail", err))
			continue
		}
		res.Created = append(res.Created, id)
	}

	zap.L().Info("export: drafts created",
		zap.Int("created", len(res.Created)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failures)),
	)
	return res, nil
}

func (e *Exporter) skipReason(rec *model.EmailRecord) string {
	switch {
	case rec.Status == model.StatusCancelled:
		return SkipCancelled
	case rec.Draft == nil || strings.TrimSpace(rec.Draft.Body) == "":
		return SkipNoDraft
	case rec.Contact == nil || strings.TrimSpace(rec.Contact.Email) == "":
		return SkipNoRecipient
	case e.opts.SkipFlagged && len(rec.Flags) > 0 && !rec.Edited:
		return SkipFlagged
	}
	return ""
}
