package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/writer"
)

// Drafter writes one draft per attempt.
type Drafter interface {
	Draft(ctx context.Context, in writer.DraftInput) (*model.Draft, model.TokenUsage, error)
}

// Critic reviews a draft. Failures come back as a neutral critique.
type Critic interface {
	Critique(ctx context.Context, d *model.Draft, org model.OrganizationRecord) (model.Critique, model.TokenUsage)
}

// Validator scores a draft with deterministic rules.
type Validator interface {
	Validate(d *model.Draft, org model.OrganizationRecord) model.ValidationResult
}

// State is a retry controller state.
type State string

const (
	StateDrafting   State = "drafting"
	StateCritiquing State = "critiquing"
	StateValidating State = "validating"
	StateDeciding   State = "deciding"
	StateRetrying   State = "retrying"
	StateAccepted   State = "accepted"
	StateExhausted  State = "exhausted"
)

// ControllerConfig holds the retry loop's tunables.
type ControllerConfig struct {
	// AcceptThreshold is the fused score at or above which a draft is accepted.
	AcceptThreshold float64
	// ValidatorWeight is w in fused = w*validator + (1-w)*critic.
	ValidatorWeight float64
	// MaxAttempts is the retry ceiling, counting the first attempt.
	MaxAttempts int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
	// IssueScoreFloor is the critic sub-score below which feedback asks for
	// tone or accuracy fixes explicitly.
	IssueScoreFloor int
}

// Outcome is the terminal result of the retry loop for one organization.
type Outcome struct {
	State State
	// Final is the latest attempt that produced a draft, or nil when every
	// attempt failed. On EXHAUSTED this is the last draft written, not the
	// highest scoring one.
	Final   *model.Attempt
	History []model.Attempt
	Usage   model.TokenUsage
}

// Controller runs draft, critique, and validation until a draft is accepted
// or the attempts run out.
type Controller struct {
	drafter   Drafter
	critic    Critic
	validator Validator
	cfg       ControllerConfig
}

// NewController creates a Controller. A validator weight below 0.5 is
// accepted but logged, since it lets the model's opinion of its own work
// outweigh the deterministic checks.
func NewController(d Drafter, c Critic, v Validator, cfg ControllerConfig) *Controller {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.ValidatorWeight < 0.5 {
		zap.L().Warn("pipeline: validator weight below 0.5; critic dominates the fused score",
			zap.Float64("validator_weight", cfg.ValidatorWeight))
	}
	return &Controller{drafter: d, critic: c, validator: v, cfg: cfg}
}

// Fuse combines the validator score and the critic's overall score.
func (c *Controller) Fuse(validatorScore, criticOverall int) float64 {
	w := c.cfg.ValidatorWeight
	return w*float64(validatorScore) + (1-w)*float64(criticOverall)
}

// Run drives the loop for org addressed to contact (nil for a generic greeting).
func (c *Controller) Run(ctx context.Context, org model.OrganizationRecord, contact *model.Contact, template string) Outcome {
	log := zap.L().With(zap.String("organization", org.Name))
	out := Outcome{State: StateDrafting}
	feedback := ""

	for n := 1; n <= c.cfg.MaxAttempts; n++ {
		att := model.Attempt{Number: n}
		log := log.With(zap.Int("attempt", n))

		out.State = StateDrafting
		draft, usage, err := c.drafter.Draft(ctx, writer.DraftInput{
			Organization: org,
			Contact:      contact,
			Template:     template,
			Attempt:      n,
			Feedback:     feedback,
		})
		out.Usage.Add(usage)

		if err != nil {
			att.Error = err.Error()
			log.Warn("pipeline: draft failed", zap.String("phase", string(StateDrafting)), zap.Error(err))
			if errors.Is(err, writer.ErrMalformedDraft) && feedback == "" {
				feedback = "ISSUES TO FIX:\n- The previous reply was not in the required SUBJECT/BODY format"
			}
		} else {
			out.State = StateCritiquing
			crit, cu := c.critic.Critique(ctx, draft, org)
			out.Usage.Add(cu)

			out.State = StateValidating
			val := c.validator.Validate(draft, org)

			att.Draft, att.Critique, att.Validation = draft, &crit, &val
		}

		out.State = StateDeciding
		fused := 0.0
		if att.Draft != nil {
			fused = c.Fuse(att.Validation.Score, att.Critique.OverallScore)
		}
		att.Decision = model.QualityDecision{FusedScore: fused, Attempt: n}

		switch {
		case att.Draft != nil && fused >= c.cfg.AcceptThreshold:
			att.Decision.Decision = model.DecisionAccept
			out.State = StateAccepted
		case n < c.cfg.MaxAttempts && ctx.Err() == nil:
			att.Decision.Decision = model.DecisionRetry
			out.State = StateRetrying
		default:
			att.Decision.Decision = model.DecisionExhausted
			out.State = StateExhausted
		}

		out.History = append(out.History, att)
		if att.Draft != nil {
			final := att
			out.Final = &final
		}

		log.Info("pipeline: attempt decided",
			zap.String("phase", string(StateDeciding)),
			zap.Float64("fused_score", fused),
			zap.String("decision", string(att.Decision.Decision)),
		)

		if out.State != StateRetrying {
			return out
		}
		if att.Draft != nil {
			feedback = c.Feedback(*att.Critique, *att.Validation)
		}
		if !sleepCtx(ctx, c.cfg.RetryDelay) {
			// The deadline passed while waiting; the attempt just recorded
			// becomes the last one.
			out.History[len(out.History)-1].Decision.Decision = model.DecisionExhausted
			if out.Final != nil && out.Final.Number == n {
				out.Final.Decision.Decision = model.DecisionExhausted
			}
			out.State = StateExhausted
			return out
		}
	}
	out.State = StateExhausted
	return out
}

// Feedback is the union of validator violations and critic feedback, as a
// bulleted list for the next draft request.
func (c *Controller) Feedback(crit model.Critique, val model.ValidationResult) string {
	seen := make(map[string]bool)
	var items []string
	add := func(s string) {
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "- "))
		if s == "" || seen[strings.ToLower(s)] {
			return
		}
		seen[strings.ToLower(s)] = true
		items = append(items, s)
	}

	for _, v := range val.Violations {
		add(v.Message)
	}
	if !crit.Neutral {
		for _, line := range strings.Split(crit.Feedback, "\n") {
			add(line)
		}
		if crit.ToneScore < c.cfg.IssueScoreFloor {
			add(fmt.Sprintf("Improve tone (scored %d): be respectful and humble", crit.ToneScore))
		}
		if crit.AccuracyScore < c.cfg.IssueScoreFloor {
			add(fmt.Sprintf("Improve accuracy (scored %d): use only facts from the organization data", crit.AccuracyScore))
		}
	}
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("ISSUES TO FIX:")
	for _, it := range items {
		b.WriteString("\n- ")
		b.WriteString(it)
	}
	return b.String()
}

// sleepCtx waits d or until ctx is done. It reports whether the full delay
// elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
