package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/gemini"
)

// GeminiGenerator generates with Gemini. Both roles use one model.
type GeminiGenerator struct {
	client gemini.Client
	guard  *resilience.Guard
	model  string
}

// NewGeminiGenerator wraps a Gemini client. guard may be nil.
func NewGeminiGenerator(client gemini.Client, guard *resilience.Guard, modelName string) *GeminiGenerator {
	return &GeminiGenerator{client: client, guard: guard, model: modelName}
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	temp := float32(req.Temperature)
	resp, err := resilience.Call(ctx, g.guard, func(ctx context.Context) (*gemini.GenerateResponse, error) {
		return g.client.Generate(ctx, gemini.GenerateRequest{
			Model:       g.model,
			System:      systemText(req),
			Prompt:      req.Prompt,
			Temperature: &temp,
			MaxTokens:   int32(req.MaxTokens),
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "llm: gemini %s", req.Role)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, eris.Errorf("llm: gemini %s returned no text", req.Role)
	}
	return &Response{
		Text:     text,
		Model:    resp.Model,
		Provider: "gemini",
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
