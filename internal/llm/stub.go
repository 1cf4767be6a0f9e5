package llm

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Stub is an offline Generator. With no Respond func it writes a plain,
// fact-free draft and a favorable critique so batches can be exercised
// without API keys.
type Stub struct {
	Respond func(req Request) (string, error)
	calls   atomic.Int64
}

// NewStub returns a Stub using the built-in responses.
func NewStub() *Stub { return &Stub{} }

// Calls returns how many requests the stub has served.
func (s *Stub) Calls() int { return int(s.calls.Load()) }

// Generate implements Generator.
func (s *Stub) Generate(ctx context.Context, req Request) (*Response, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "llm: stub")
	}

	respond := s.Respond
	if respond == nil {
		respond = defaultStubResponse
	}
	text, err := respond(req)
	if err != nil {
		return nil, err
	}
	return &Response{
		Text:     text,
		Model:    "stub",
		Provider: "stub",
		// Word counts stand in for tokens.
		Usage: model.TokenUsage{
			InputTokens:  len(strings.Fields(systemText(req) + " " + req.Prompt)),
			OutputTokens: len(strings.Fields(text)),
		},
	}, nil
}

func defaultStubResponse(req Request) (string, error) {
	if req.Role == RoleCritique {
		return "TONE_SCORE: 85\nACCURACY_SCORE: 85\nOVERALL_SCORE: 85\nISSUES: none\nSUGGESTIONS: none", nil
	}

	org := promptField(req.Prompt, "- Organization:")
	if org == "" {
		org = "your school"
	}
	greeting := "Dear " + org + " team,"
	if name := promptField(req.Prompt, "RECIPIENT:"); name != "" && !strings.HasPrefix(name, "none") {
		if i := strings.Index(name, " ("); i > 0 {
			name = name[:i]
		}
		greeting = "Dear " + name + ","
	}

	body := greeting + "\n\n" +
		"I have been reading about " + org + " and the community you have built, and I wanted to reach out with a short introduction. " +
		"We work with schools that care deeply about the experience of their students and families, and many of them have told us that the day to day demands on their staff leave little room for new projects. " +
		"Our team helps by taking on the planning and follow through that usually falls to administrators, so your people can stay focused on teaching and on the relationships that make your school special. " +
		"I would welcome the chance to learn more about your priorities for the coming year and to share a few examples of how similar schools have approached them. " +
		"If a brief conversation would be helpful, I would be glad to work around your calendar.\n\n" +
		"Best regards,\nThe Outreach Team"

	return fmt.Sprintf("SUBJECT: A quick introduction for %s\nBODY:\n%s", org, body), nil
}

// promptField returns the rest of the first prompt line starting with prefix.
func promptField(prompt, prefix string) string {
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}

var _ Generator = (*Stub)(nil)
