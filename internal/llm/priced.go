package llm

import (
	"context"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Pricer prices the token usage of one call.
type Pricer interface {
	Price(provider, model string, u model.TokenUsage) float64
}

type pricedGenerator struct {
	next   Generator
	pricer Pricer
}

// WithPricing fills Response.Usage.Cost for every successful call of next.
func WithPricing(next Generator, p Pricer) Generator {
	if p == nil {
		return next
	}
	return &pricedGenerator{next: next, pricer: p}
}

func (g *pricedGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := g.next.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Usage.Cost = g.pricer.Price(resp.Provider, resp.Model, resp.Usage)
	return resp, nil
}
