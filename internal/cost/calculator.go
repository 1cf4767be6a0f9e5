// Package cost prices generation tokens and search queries.
package cost

import (
	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

// Rates holds per-provider pricing.
type Rates struct {
	Anthropic  map[string]ModelRate
	Gemini     map[string]ModelRate
	Jina       QueryRate
	Perplexity QueryRate
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64
	Output        float64
	CacheWriteMul float64
	CacheReadMul  float64
}

// QueryRate is a flat per-query price.
type QueryRate struct {
	PerQuery float64
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost for a Claude API call.
func (c *Calculator) Claude(model string, input, output, cacheWrite, cacheRead int) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Gemini computes the cost for a Gemini generation call.
func (c *Calculator) Gemini(model string, input, output int) float64 {
	rate, ok := c.rates.Gemini[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Price returns the cost of one generation call's usage. Unknown providers
// and models cost nothing.
func (c *Calculator) Price(provider, model string, u model.TokenUsage) float64 {
	switch provider {
	case "anthropic":
		return c.Claude(model, u.InputTokens, u.OutputTokens, u.CacheCreationTokens, u.CacheReadTokens)
	case "gemini":
		return c.Gemini(model, u.InputTokens, u.OutputTokens)
	}
	return 0
}

// Search returns the cost of n queries against a search provider.
func (c *Calculator) Search(provider string, n int) float64 {
	switch provider {
	case "jina":
		return float64(n) * c.rates.Jina.PerQuery
	case "perplexity":
		return float64(n) * c.rates.Perplexity.PerQuery
	}
	return 0
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 1.00, Output: 5.00,
				CacheWriteMul: 2.0, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 2.0, CacheReadMul: 0.1,
			},
			"claude-opus-4-6": {
				Input: 15.00, Output: 75.00,
				CacheWriteMul: 2.0, CacheReadMul: 0.1,
			},
		},
		Gemini: map[string]ModelRate{
			"gemini-2.5-flash": {Input: 0.30, Output: 2.50},
			"gemini-2.5-pro":   {Input: 1.25, Output: 10.00},
		},
		Jina:       QueryRate{PerQuery: 0.002},
		Perplexity: QueryRate{PerQuery: 0.005},
	}
}

// RatesFromConfig layers configured prices over DefaultRates.
func RatesFromConfig(p config.PricingConfig) Rates {
	r := DefaultRates()
	for name, mp := range p.Anthropic {
		r.Anthropic[name] = ModelRate(mp)
	}
	for name, mp := range p.Gemini {
		r.Gemini[name] = ModelRate(mp)
	}
	if p.Jina.PerQuery > 0 {
		r.Jina.PerQuery = p.Jina.PerQuery
	}
	if p.Perplexity.PerQuery > 0 {
		r.Perplexity.PerQuery = p.Perplexity.PerQuery
	}
	return r
}
