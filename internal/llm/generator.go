// Package llm is the text-generation capability used to draft and critique
// emails. Backends: Anthropic (default), Gemini, and an offline stub.
package llm

import (
	"context"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Role selects the model and sampling profile for a call.
type Role string

const (
	RoleDraft    Role = "draft"
	RoleCritique Role = "critique"
)

// Request is one single-turn generation call.
type Request struct {
	Role Role
	// Shared is instruction text identical across a batch (template and
	// writing guidelines). Backends that support prompt caching cache it.
	Shared string
	// System is per-call system text.
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Response is the generated text and its token usage.
type Response struct {
	Text     string
	Model    string
	Provider string
	Usage    model.TokenUsage
}

// Generator produces text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// systemText joins shared and per-call system text for backends without
// separate cacheable blocks.
func systemText(req Request) string {
	switch {
	case req.Shared == "":
		return req.System
	case req.System == "":
		return req.Shared
	}
	return req.Shared + "\n\n" + req.System
}
