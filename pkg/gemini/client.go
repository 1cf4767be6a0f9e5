// Package gemini wraps the Google Gen AI SDK for text generation and
// search-grounded lookups.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// Client defines the Gemini operations used by the pipeline.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	// GroundedSearch answers prompt with Google Search grounding enabled and
	// returns the answer text plus the web sources it cites.
	GroundedSearch(ctx context.Context, model, prompt string) (*GroundedResponse, error)
}

// GenerateRequest is a single-turn generation call.
type GenerateRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature *float32
	MaxTokens   int32
}

// GenerateResponse is the text and usage of a generation call.
type GenerateResponse struct {
	Text  string
	Model string
	Usage Usage
}

// GroundedResponse is a search-grounded answer.
type GroundedResponse struct {
	Text    string
	Sources []Source
	Queries []string
	Usage   Usage
}

// Source is a web page the grounded answer drew on.
type Source struct {
	Title string
	URI   string
}

// Usage reports token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// APIError carries the HTTP status of a failed Gemini call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini: status %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

type sdkClient struct {
	client *genai.Client
	model  string
}

// Option configures the client.
type Option func(*options)

type options struct {
	baseURL string
	model   string
}

// WithBaseURL overrides the Gemini API base URL (proxies, tests).
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithModel sets the default model for requests that leave Model empty.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, eris.New("gemini: api key is required")
	}
	o := options{model: "gemini-2.5-flash"}
	for _, opt := range opts {
		opt(&o)
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	}
	if o.baseURL != "" {
		cc.HTTPOptions.BaseURL = o.baseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: new client")
	}
	return &sdkClient{client: client, model: o.model}, nil
}

func (c *sdkClient) modelOr(m string) string {
	if m != "" {
		return m
	}
	return c.model
}

func (c *sdkClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := c.modelOr(req.Model)
	cfg := &genai.GenerateContentConfig{
		CandidateCount:  1,
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxTokens,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, eris.Wrap(classifyErr(err), "gemini: generate content")
	}

	return &GenerateResponse{
		Text:  resp.Text(),
		Model: model,
		Usage: usageOf(resp),
	}, nil
}

func (c *sdkClient) GroundedSearch(ctx context.Context, model, prompt string) (*GroundedResponse, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.modelOr(model), genai.Text(prompt), &genai.GenerateContentConfig{
		CandidateCount: 1,
		Tools:          []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return nil, eris.Wrap(classifyErr(err), "gemini: grounded search")
	}

	out := &GroundedResponse{Text: resp.Text(), Usage: usageOf(resp)}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil && resp.Candidates[0].GroundingMetadata != nil {
		gm := resp.Candidates[0].GroundingMetadata
		seen := make(map[string]struct{})
		for _, chunk := range gm.GroundingChunks {
			if chunk == nil || chunk.Web == nil || strings.TrimSpace(chunk.Web.URI) == "" {
				continue
			}
			if _, ok := seen[chunk.Web.URI]; ok {
				continue
			}
			seen[chunk.Web.URI] = struct{}{}
			out.Sources = append(out.Sources, Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
		}
		out.Queries = gm.WebSearchQueries
	}
	return out, nil
}

func usageOf(resp *genai.GenerateContentResponse) Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
		OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
	}
}

// classifyErr converts SDK API errors into APIError so callers can decide
// whether to retry from the status code alone.
func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	return err
}
