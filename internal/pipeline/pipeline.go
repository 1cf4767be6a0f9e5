// Package pipeline turns organization records into reviewable outreach
// emails: contact research, then a draft, critique, and validation loop per
// organization, fanned out across a bounded worker pool.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/research"
)

// Researcher finds contacts for an organization. The Result must be
// non-nil even when an error is returned.
type Researcher interface {
	Research(ctx context.Context, org model.OrganizationRecord) (*research.Result, error)
}

// SearchPricer prices search calls.
type SearchPricer interface {
	Search(provider string, n int) float64
}

// Options configure a Pipeline.
type Options struct {
	// Concurrency bounds how many organizations are processed at once.
	Concurrency int
	// OrgTimeout bounds one organization end to end. Zero means none.
	OrgTimeout time.Duration
	// ContactThreshold is the contact confidence below which a record is
	// flagged UNCERTAIN_CONTACT.
	ContactThreshold int
	// AcceptThreshold is the fused score below which a record is flagged
	// NEEDS_REVIEW.
	AcceptThreshold float64
	// IssueScoreFloor is the critic sub-score below which tone or accuracy
	// issues are flagged.
	IssueScoreFloor int
	// Pricer prices search queries. Optional.
	Pricer SearchPricer
	// OnRecord is called as each organization finishes. Calls may come from
	// several goroutines at once.
	OnRecord func(index int, rec model.EmailRecord)
}

// Pipeline orchestrates research and generation for a batch.
type Pipeline struct {
	researcher Researcher
	controller *Controller
	opts       Options
}

// New creates a Pipeline.
func New(researcher Researcher, controller *Controller, opts Options) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Pipeline{researcher: researcher, controller: controller, opts: opts}
}

// Run processes orgs and returns one EmailRecord per input, in input order.
//
// Cancelling ctx stops new organizations from starting. Organizations
// already in flight finish on a detached context bounded by OrgTimeout, and
// the rest come back as cancelled records flagged for review.
func (p *Pipeline) Run(ctx context.Context, orgs []model.OrganizationRecord, template string) *model.Batch {
	batch := &model.Batch{
		ID:        uuid.NewString(),
		Records:   make([]model.EmailRecord, len(orgs)),
		StartedAt: time.Now().UTC(),
	}
	log := zap.L().With(zap.String("batch_id", batch.ID))
	log.Info("pipeline: starting batch",
		zap.Int("organizations", len(orgs)),
		zap.Int("concurrency", p.opts.Concurrency),
	)

	usage := make([]model.TokenUsage, len(orgs))
	detached := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(p.opts.Concurrency)

	for i, org := range orgs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// A slot may free up only after cancellation.
			if ctx.Err() != nil {
				return nil
			}
			rec, u := p.Process(detached, org, template)
			batch.Records[i] = rec
			usage[i] = u
			if p.opts.OnRecord != nil {
				p.opts.OnRecord(i, rec)
			}
			return nil // don't abort batch
		})
	}
	_ = g.Wait()

	cancelled := 0
	for i := range batch.Records {
		if batch.Records[i].Status == "" {
			batch.Records[i] = cancelledRecord(orgs[i])
			cancelled++
		}
		batch.Usage.Add(usage[i])
	}

	batch.FinishedAt = time.Now().UTC()
	batch.Complete = cancelled == 0

	st := batch.Stats()
	log.Info("pipeline: batch complete",
		zap.Int("total", st.Total),
		zap.Int("accepted", st.Accepted),
		zap.Int("flagged", st.Flagged),
		zap.Int("cancelled", cancelled),
		zap.Int("avg_confidence", st.AvgConfidence),
		zap.Float64("cost_usd", batch.Usage.Cost),
		zap.Duration("elapsed", batch.FinishedAt.Sub(batch.StartedAt)),
	)
	return batch
}

// Process runs one organization end to end. It never fails: errors and
// panics become flagged records.
func (p *Pipeline) Process(ctx context.Context, org model.OrganizationRecord, template string) (rec model.EmailRecord, usage model.TokenUsage) {
	log := zap.L().With(zap.String("organization", org.Name))
	phase := "research"

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline: panic processing organization",
				zap.String("phase", phase),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			status, flag := model.StatusResearchFailed, model.FlagResearchFailed
			if phase != "research" {
				status, flag = model.StatusGenerationFailed, model.FlagGenerationFailed
			}
			rec = failedRecord(org, rec.Contact, rec.Candidates, status, flag, fmt.Sprintf("panic: %v", r))
			p.flagContact(&rec)
		}
	}()

	if p.opts.OrgTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.OrgTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := p.researcher.Research(ctx, org)
	if res == nil {
		res = &research.Result{}
	}
	usage.Add(p.searchUsage(res.Queries))
	rec.Contact = res.Selected
	rec.Candidates = res.Candidates

	if res.Selected == nil {
		reason := "no contact candidates found"
		if err != nil {
			reason = err.Error()
		}
		log.Warn("pipeline: research found no contact", zap.String("phase", phase), zap.String("reason", reason))
		rec = failedRecord(org, nil, res.Candidates, model.StatusResearchFailed, model.FlagResearchFailed, reason)
		p.flagContact(&rec)
		return rec, usage
	}

	phase = "generation"
	out := p.controller.Run(ctx, org, res.Selected, template)
	usage.Add(out.Usage)

	rec = p.assemble(org, res, out)
	log.Info("pipeline: organization complete",
		zap.String("status", string(rec.Status)),
		zap.Int("attempts", rec.Attempts),
		zap.Float64("fused_score", rec.FusedScore),
		zap.Int("final_confidence", rec.FinalConfidence),
		zap.Any("flags", rec.Flags),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rec, usage
}

// assemble builds the record for an organization that reached generation.
func (p *Pipeline) assemble(org model.OrganizationRecord, res *research.Result, out Outcome) model.EmailRecord {
	rec := model.EmailRecord{
		Organization: org,
		Contact:      res.Selected,
		Candidates:   res.Candidates,
		Attempts:     len(out.History),
		History:      out.History,
	}
	flags := model.FlagSet{}

	if out.Final == nil {
		rec.Status = model.StatusGenerationFailed
		if n := len(out.History); n > 0 {
			rec.Error = out.History[n-1].Error
		}
		flags.Add(model.FlagGenerationFailed)
		flags.Add(model.FlagNeedsReview)
	} else {
		final := out.Final
		rec.Draft = final.Draft
		rec.Critique = final.Critique
		rec.Validation = final.Validation
		rec.FusedScore = final.Decision.FusedScore
		rec.Status = model.StatusExhausted
		if out.State == StateAccepted {
			rec.Status = model.StatusAccepted
		}

		if rec.FusedScore < p.opts.AcceptThreshold || rec.Status == model.StatusExhausted {
			flags.Add(model.FlagNeedsReview)
		}
		if rec.Validation.Has(model.ViolationTone) ||
			(!rec.Critique.Neutral && rec.Critique.ToneScore < p.opts.IssueScoreFloor) {
			flags.Add(model.FlagToneIssue)
		}
		if rec.Validation.Has(model.ViolationAccuracy) ||
			(!rec.Critique.Neutral && rec.Critique.AccuracyScore < p.opts.IssueScoreFloor) {
			flags.Add(model.FlagAccuracyIssue)
		}
		rec.FinalConfidence = FinalConfidence(rec.FusedScore, rec.ContactConfidence())
	}

	if res.BelowFloor {
		flags.Add(model.FlagResearchFailed)
	}
	for _, f := range contactFlags(rec.Contact, p.opts.ContactThreshold) {
		flags.Add(f)
	}
	rec.Flags = flags.List()
	return rec
}

// FinalConfidence blends the fused email score with the contact confidence.
func FinalConfidence(fused float64, contactConfidence int) int {
	v := math.Round(0.6*fused + 0.4*float64(contactConfidence))
	return int(math.Max(0, math.Min(100, v)))
}

func (p *Pipeline) searchUsage(queries map[string]int) model.TokenUsage {
	var u model.TokenUsage
	for provider, n := range queries {
		u.SearchQueries += n
		if p.opts.Pricer != nil {
			u.Cost += p.opts.Pricer.Search(provider, n)
		}
	}
	return u
}

func (p *Pipeline) flagContact(rec *model.EmailRecord) {
	flags := model.FlagSet{}
	for _, f := range rec.Flags {
		flags.Add(f)
	}
	for _, f := range contactFlags(rec.Contact, p.opts.ContactThreshold) {
		flags.Add(f)
	}
	rec.Flags = flags.List()
}

func contactFlags(c *model.Contact, threshold int) []model.Flag {
	if c == nil || c.Confidence < threshold {
		return []model.Flag{model.FlagUncertainContact}
	}
	return nil
}

func failedRecord(org model.OrganizationRecord, contact *model.Contact, candidates []model.Contact, status model.RecordStatus, flag model.Flag, reason string) model.EmailRecord {
	flags := model.FlagSet{}
	flags.Add(flag)
	flags.Add(model.FlagNeedsReview)
	return model.EmailRecord{
		Organization: org,
		Contact:      contact,
		Candidates:   candidates,
		Status:       status,
		Flags:        flags.List(),
		Error:        reason,
	}
}

func cancelledRecord(org model.OrganizationRecord) model.EmailRecord {
	return model.EmailRecord{
		Organization: org,
		Status:       model.StatusCancelled,
		Flags:        []model.Flag{model.FlagNeedsReview},
		Error:        "cancelled before processing started",
	}
}
