// Package writer drafts outreach emails and critiques them with the
// text-generation capability.
package writer

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/llm"
	"github.com/sells-group/outreach-cli/internal/model"
)

// ErrMalformedDraft means the model reply lacked a subject or a body.
var ErrMalformedDraft = eris.New("writer: malformed draft")

// NeutralScore is substituted for every critique sub-score when the critique
// call fails.
const NeutralScore = 50

// Options tune generation calls.
type Options struct {
	Temperature         float64
	CritiqueTemperature float64
	MaxTokens           int
	// Timeout bounds each draft or critique call. Zero means no deadline.
	Timeout time.Duration
}

// DraftInput is everything the Drafter needs for one attempt.
type DraftInput struct {
	Organization model.OrganizationRecord
	Contact      *model.Contact
	Template     string
	Attempt      int
	Feedback     string
}

// Drafter writes one draft per call.
type Drafter struct {
	gen  llm.Generator
	opts Options
}

// NewDrafter creates a Drafter.
func NewDrafter(gen llm.Generator, opts Options) *Drafter {
	return &Drafter{gen: gen, opts: opts}
}

// Draft generates a subject and body for in.Attempt. Usage is returned even
// when the reply is malformed.
func (d *Drafter) Draft(ctx context.Context, in DraftInput) (*model.Draft, model.TokenUsage, error) {
	ctx, cancel := withTimeout(ctx, d.opts.Timeout)
	defer cancel()

	resp, err := d.gen.Generate(ctx, llm.Request{
		Role:        llm.RoleDraft,
		Shared:      draftShared(in.Template),
		Prompt:      draftPrompt(in),
		Temperature: d.opts.Temperature,
		MaxTokens:   d.opts.MaxTokens,
	})
	if err != nil {
		return nil, model.TokenUsage{}, eris.Wrapf(err, "writer: draft attempt %d", in.Attempt)
	}

	subject, body := ParseDraft(resp.Text)
	if subject == "" || body == "" {
		return nil, resp.Usage, eris.Wrapf(ErrMalformedDraft, "attempt %d: subject=%t body=%t", in.Attempt, subject != "", body != "")
	}
	return &model.Draft{Subject: subject, Body: body, Attempt: in.Attempt}, resp.Usage, nil
}

// ParseDraft splits a "SUBJECT: ... BODY: ..." reply. Markdown emphasis
// around the markers is tolerated. Missing parts come back empty.
func ParseDraft(text string) (subject, body string) {
	var bodyLines []string
	inBody := false
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		marker := strings.TrimLeft(strings.TrimSpace(line), "*# ")
		switch {
		case !inBody && hasMarker(marker, "SUBJECT:"):
			subject = cleanMarker(marker, "SUBJECT:")
		case !inBody && hasMarker(marker, "BODY:"):
			inBody = true
			if rest := cleanMarker(marker, "BODY:"); rest != "" {
				bodyLines = append(bodyLines, rest)
			}
		case inBody:
			bodyLines = append(bodyLines, line)
		}
	}
	return subject, strings.TrimSpace(strings.Join(bodyLines, "\n"))
}

func hasMarker(line, marker string) bool {
	return len(line) >= len(marker) && strings.EqualFold(line[:len(marker)], marker)
}

func cleanMarker(line, marker string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(line[len(marker):]), "*"))
}

// Critic reviews drafts in a separate, lower-temperature call.
type Critic struct {
	gen  llm.Generator
	opts Options
}

// NewCritic creates a Critic.
func NewCritic(gen llm.Generator, opts Options) *Critic {
	return &Critic{gen: gen, opts: opts}
}

// Critique scores d against org. It never fails: a call error, timeout, or
// unparseable reply yields a neutral critique.
func (c *Critic) Critique(ctx context.Context, d *model.Draft, org model.OrganizationRecord) (model.Critique, model.TokenUsage) {
	ctx, cancel := withTimeout(ctx, c.opts.Timeout)
	defer cancel()

	log := zap.L().With(zap.String("organization", org.Name), zap.Int("attempt", d.Attempt), zap.String("phase", "critique"))

	resp, err := c.gen.Generate(ctx, llm.Request{
		Role:        llm.RoleCritique,
		Shared:      critiqueInstructions,
		Prompt:      critiquePrompt(d, org),
		Temperature: c.opts.CritiqueTemperature,
		MaxTokens:   c.opts.MaxTokens,
	})
	if err != nil {
		log.Warn("writer: critique failed, using neutral scores", zap.Error(err))
		return Neutral("critique unavailable: " + err.Error()), model.TokenUsage{}
	}

	crit, err := ParseCritique(resp.Text)
	if err != nil {
		log.Warn("writer: critique unparseable, using neutral scores", zap.Error(err))
		return Neutral("critique unparseable"), resp.Usage
	}
	return crit, resp.Usage
}

// Neutral is the critique substituted when the real one is unavailable.
func Neutral(reason string) model.Critique {
	return model.Critique{
		ToneScore:     NeutralScore,
		AccuracyScore: NeutralScore,
		OverallScore:  NeutralScore,
		Feedback:      reason,
		Neutral:       true,
	}
}

var scoreRe = regexp.MustCompile(`(?im)^[*\s]*(TONE_SCORE|ACCURACY_SCORE|OVERALL_SCORE)[*\s]*:[*\s]*(\d{1,3})(\s*/\s*(10|100))?`)

var critiqueFields = []string{"ISSUES:", "TONE_SCORE:", "ACCURACY_SCORE:", "OVERALL_SCORE:", "SUGGESTIONS:"}

// ParseCritique reads the three scores and the issues/suggestions text. A
// score written as "n/10" is scaled to 0-100. All three scores are required.
func ParseCritique(text string) (model.Critique, error) {
	scores := make(map[string]int, 3)
	for _, m := range scoreRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if m[4] == "10" {
			n *= 10
		}
		scores[strings.ToUpper(m[1])] = max(0, min(100, n))
	}
	for _, k := range []string{"TONE_SCORE", "ACCURACY_SCORE", "OVERALL_SCORE"} {
		if _, ok := scores[k]; !ok {
			return model.Critique{}, eris.Errorf("writer: critique missing %s", k)
		}
	}

	var feedback []string
	if issues := field(text, "ISSUES:"); issues != "" && !isNone(issues) {
		feedback = append(feedback, issues)
	}
	if sugg := field(text, "SUGGESTIONS:"); sugg != "" && !isNone(sugg) {
		feedback = append(feedback, sugg)
	}

	return model.Critique{
		ToneScore:     scores["TONE_SCORE"],
		AccuracyScore: scores["ACCURACY_SCORE"],
		OverallScore:  scores["OVERALL_SCORE"],
		Feedback:      strings.Join(feedback, "\n"),
	}, nil
}

// field returns the text after name up to the next known field marker.
func field(text, name string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(strings.TrimSpace(line), "*# ")
		if !hasMarker(trimmed, name) {
			continue
		}
		parts := []string{cleanMarker(trimmed, name)}
		for _, next := range lines[i+1:] {
			nt := strings.TrimLeft(strings.TrimSpace(next), "*# ")
			if isFieldLine(nt) {
				break
			}
			if nt != "" {
				parts = append(parts, nt)
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	}
	return ""
}

func isFieldLine(line string) bool {
	for _, f := range critiqueFields {
		if hasMarker(line, f) {
			return true
		}
	}
	return false
}

func isNone(s string) bool {
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), ".*"))
	return s == "none" || s == "n/a" || s == "no issues"
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
