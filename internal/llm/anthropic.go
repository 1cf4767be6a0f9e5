package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// AnthropicGenerator generates with Claude. Draft and critique calls can use
// different models.
type AnthropicGenerator struct {
	client        anthropic.Client
	guard         *resilience.Guard
	draftModel    string
	critiqueModel string
}

// NewAnthropicGenerator wraps an Anthropic client. guard may be nil.
func NewAnthropicGenerator(client anthropic.Client, guard *resilience.Guard, draftModel, critiqueModel string) *AnthropicGenerator {
	if critiqueModel == "" {
		critiqueModel = draftModel
	}
	return &AnthropicGenerator{client: client, guard: guard, draftModel: draftModel, critiqueModel: critiqueModel}
}

// Generate implements Generator.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	modelName := g.draftModel
	if req.Role == RoleCritique {
		modelName = g.critiqueModel
	}
	temp := req.Temperature
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	resp, err := resilience.Call(ctx, g.guard, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return g.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       modelName,
			MaxTokens:   maxTokens,
			System:      anthropic.BuildCachedSystemBlocks(req.Shared, req.System),
			Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
			Temperature: &temp,
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "llm: anthropic %s", req.Role)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, eris.Errorf("llm: anthropic %s returned no text (stop reason %q)", req.Role, resp.StopReason)
	}

	return &Response{
		Text:     text,
		Model:    modelName,
		Provider: "anthropic",
		Usage: model.TokenUsage{
			InputTokens:         int(resp.Usage.InputTokens),
			OutputTokens:        int(resp.Usage.OutputTokens),
			CacheCreationTokens: int(resp.Usage.CacheCreationInputTokens),
			CacheReadTokens:     int(resp.Usage.CacheReadInputTokens),
		},
	}, nil
}

var _ Generator = (*AnthropicGenerator)(nil)
