package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/llm"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/quality"
	"github.com/sells-group/outreach-cli/internal/research"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/writer"
	anthropicpkg "github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/gemini"
	"github.com/sells-group/outreach-cli/pkg/jina"
	"github.com/sells-group/outreach-cli/pkg/perplexity"
)

// pipelineEnv holds the initialized clients and the retry controller shared
// by every batch a command runs.
type pipelineEnv struct {
	cfg        *config.Config
	searcher   research.Searcher // nil reads contacts from the input records
	controller *pipeline.Controller
	costs      *cost.Calculator
	guards     *resilience.Registry
	alerter    *monitoring.Alerter
	onRecord   func(int, model.EmailRecord)
}

// Run processes one batch. Offline environments, or environments with search
// disabled, research contacts from the batch's own contact columns.
func (pe *pipelineEnv) Run(ctx context.Context, orgs []model.OrganizationRecord, template string) *model.Batch {
	searcher := pe.searcher
	if searcher == nil {
		searcher = research.NewRecordSearcher(orgs)
	}
	researcher := research.NewResearcher(searcher, research.Options{
		Floor:         pe.cfg.Contact.Floor,
		MaxCandidates: pe.cfg.Contact.MaxCandidates,
		Timeout:       pe.cfg.Search.SearchTimeout(),
	})

	p := pipeline.New(researcher, pe.controller, pipeline.Options{
		Concurrency:      pe.cfg.Batch.Concurrency,
		OrgTimeout:       time.Duration(pe.cfg.Batch.OrgTimeoutSecs) * time.Second,
		ContactThreshold: pe.cfg.Contact.Threshold,
		AcceptThreshold:  pe.cfg.Quality.AcceptThreshold,
		IssueScoreFloor:  pe.cfg.Quality.IssueScoreFloor,
		Pricer:           pe.costs,
		OnRecord:         pe.onRecord,
	})
	batch := p.Run(ctx, orgs, template)
	pe.alerter.Check(context.WithoutCancel(ctx), monitoring.Collect(batch))

	if states := pe.guards.States(); len(states) > 0 {
		fields := make([]zap.Field, 0, len(states))
		for name, st := range states {
			fields = append(fields, zap.Stringer(name, st))
		}
		zap.L().Debug("pipeline: circuit states", fields...)
	}
	return batch
}

// initPipeline builds the generation stack from cfg. Offline mode swaps in the
// stub generator and record-based contact research so no API keys are needed.
func initPipeline(ctx context.Context, c *config.Config, offline bool) (*pipelineEnv, error) {
	mode := "generate"
	if offline {
		mode = "offline"
	}
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	guards := newGuards(c)
	costs := cost.NewCalculator(cost.RatesFromConfig(c.Pricing))

	gen, err := initGenerator(ctx, c, guards, offline)
	if err != nil {
		return nil, err
	}
	gen = llm.WithPricing(gen, costs)

	rules := quality.DefaultRules()
	if c.Quality.RulesFile != "" {
		rules, err = quality.LoadRules(c.Quality.RulesFile)
		if err != nil {
			return nil, eris.Wrap(err, "init pipeline: load quality rules")
		}
	}

	wopts := writer.Options{
		Temperature:         c.Generation.Temperature,
		CritiqueTemperature: c.Generation.CritiqueTemperature,
		MaxTokens:           c.Generation.MaxTokens,
		Timeout:             c.Generation.GenerationTimeout(),
	}
	controller := pipeline.NewController(
		writer.NewDrafter(gen, wopts),
		writer.NewCritic(gen, wopts),
		quality.NewValidator(rules, validatorOptions(c)),
		pipeline.ControllerConfig{
			AcceptThreshold: c.Quality.AcceptThreshold,
			ValidatorWeight: c.Quality.ValidatorWeight,
			MaxAttempts:     c.Quality.MaxRetries,
			RetryDelay:      time.Duration(c.Quality.RetryDelayMs) * time.Millisecond,
			IssueScoreFloor: c.Quality.IssueScoreFloor,
		},
	)

	env := &pipelineEnv{
		cfg:        c,
		controller: controller,
		costs:      costs,
		guards:     guards,
		alerter:    monitoring.NewAlerter(c.Monitoring),
	}
	if !offline && c.Search.Enabled {
		env.searcher = initSearchChain(ctx, c, guards)
	}
	return env, nil
}

func validatorOptions(c *config.Config) quality.Options {
	return quality.Options{
		MinWords:      c.Quality.MinWords,
		MaxWords:      c.Quality.MaxWords,
		MaxSubjectLen: c.Quality.MaxSubjectLen,
	}
}

// newGuards registers one guard per external service.
func newGuards(c *config.Config) *resilience.Registry {
	genRetry := resilience.DefaultRetryPolicy()
	genRetry.Attempts = c.Generation.Retries + 1
	searchRetry := resilience.DefaultRetryPolicy()
	searchRetry.Attempts = c.Search.Retries + 1

	reg := resilience.NewRegistry(resilience.GuardConfig{
		Retry:            resilience.DefaultRetryPolicy(),
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	})
	gen := func(rps float64) resilience.GuardConfig {
		return resilience.GuardConfig{
			RPS:              rps,
			Timeout:          c.Generation.GenerationTimeout(),
			Retry:            genRetry,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		}
	}
	search := func(rps float64) resilience.GuardConfig {
		return resilience.GuardConfig{
			RPS:              rps,
			Timeout:          c.Search.SearchTimeout(),
			Retry:            searchRetry,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		}
	}
	reg.Configure("anthropic", gen(c.Anthropic.RPS))
	reg.Configure("gemini", gen(c.Gemini.RPS))
	reg.Configure("jina", search(c.Jina.RPS))
	reg.Configure("perplexity", search(c.Perplexity.RPS))
	reg.Configure("gemini-search", search(c.Gemini.RPS))
	return reg
}

func initGenerator(ctx context.Context, c *config.Config, guards *resilience.Registry, offline bool) (llm.Generator, error) {
	provider := c.Generation.Provider
	if offline {
		provider = "stub"
	}

	switch provider {
	case "anthropic":
		var opts []anthropicpkg.Option
		if c.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
		}
		client := anthropicpkg.NewClient(c.Anthropic.Key, opts...)
		return llm.NewAnthropicGenerator(client, guards.Get("anthropic"), c.Anthropic.DraftModel, c.Anthropic.CritiqueModel), nil
	case "gemini":
		client, err := newGeminiClient(ctx, c)
		if err != nil {
			return nil, err
		}
		return llm.NewGeminiGenerator(client, guards.Get("gemini"), c.Gemini.Model), nil
	case "stub":
		zap.L().Warn("using stub generator, drafts are placeholders")
		return llm.NewStub(), nil
	default:
		return nil, eris.Errorf("init pipeline: unknown generation provider %q", provider)
	}
}

func newGeminiClient(ctx context.Context, c *config.Config) (gemini.Client, error) {
	opts := []gemini.Option{gemini.WithModel(c.Gemini.Model)}
	if c.Gemini.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(c.Gemini.BaseURL))
	}
	client, err := gemini.NewClient(ctx, c.Gemini.Key, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "init pipeline: gemini client")
	}
	return client, nil
}

// initSearchChain builds Jina → Perplexity → Gemini grounded search from the
// configured keys.
func initSearchChain(ctx context.Context, c *config.Config, guards *resilience.Registry) research.Searcher {
	var searchers []research.Searcher

	if c.Jina.Key != "" {
		opts := []jina.Option{jina.WithBaseURL(c.Jina.BaseURL)}
		if c.Jina.SearchBaseURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
		}
		searchers = append(searchers, research.NewJinaSearcher(
			jina.NewClient(c.Jina.Key, opts...), guards.Get("jina"), c.Search.MaxResults, c.Search.ReadOfficial))
	} else {
		zap.L().Warn("OUTREACH_JINA_KEY not set, jina search disabled")
	}

	if c.Perplexity.Key != "" {
		client := perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model))
		searchers = append(searchers, research.NewPerplexitySearcher(client, guards.Get("perplexity")))
	} else {
		zap.L().Debug("OUTREACH_PERPLEXITY_KEY not set, perplexity fallback disabled")
	}

	if c.Gemini.Key != "" {
		client, err := newGeminiClient(ctx, c)
		if err != nil {
			zap.L().Warn("gemini grounded search disabled", zap.Error(err))
		} else {
			searchers = append(searchers, research.NewGeminiSearcher(client, guards.Get("gemini-search"), c.Gemini.Model))
		}
	}

	chain := research.NewChain(searchers...)
	zap.L().Info("search chain ready", zap.String("providers", chain.Name()))
	return chain
}
