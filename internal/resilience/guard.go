package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GuardConfig describes how calls to one external service are protected.
type GuardConfig struct {
	// RPS limits the call rate. Zero means unlimited.
	RPS   float64
	Burst int
	// Timeout bounds each individual try. Zero means no per-try deadline.
	Timeout time.Duration
	Retry   RetryPolicy
	// BreakerThreshold consecutive transient failures open the circuit.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Guard wraps calls to a single external service.
type Guard struct {
	name    string
	limiter *rate.Limiter
	breaker *Breaker
	policy  RetryPolicy
	timeout time.Duration
}

// NewGuard builds a guard named after the service it protects.
func NewGuard(name string, cfg GuardConfig) *Guard {
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	policy := cfg.Retry
	if policy.OnRetry == nil {
		policy.OnRetry = RetryLogger(name)
	}

	return &Guard{
		name:    name,
		limiter: rate.NewLimiter(limit, burst),
		breaker: NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, func(from, to BreakerState) {
			zap.L().Warn("resilience: circuit state change",
				zap.String("service", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}),
		policy:  policy,
		timeout: cfg.Timeout,
	}
}

// Name returns the protected service name.
func (g *Guard) Name() string { return g.name }

// Breaker exposes the guard's circuit breaker.
func (g *Guard) Breaker() *Breaker { return g.breaker }

// Call runs fn under g: each try waits for the rate limiter, checks the
// breaker, and runs under the per-try timeout. Transient failures are retried
// per the guard's policy. A nil guard calls fn directly.
func Call[T any](ctx context.Context, g *Guard, fn func(context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}
	return Retry(ctx, g.policy, func(ctx context.Context) (T, error) {
		var zero T
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, eris.Wrapf(err, "%s: rate limit wait", g.name)
		}
		if err := g.breaker.Allow(); err != nil {
			return zero, eris.Wrap(err, g.name)
		}

		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}

		v, err := fn(callCtx)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = eris.Wrapf(ErrTimeout, "%s: after %s", g.name, g.timeout)
		}
		g.breaker.Record(err != nil && IsTransient(err))
		return v, err
	})
}

// Registry hands out one Guard per service name.
type Registry struct {
	mu      sync.Mutex
	guards  map[string]*Guard
	configs map[string]GuardConfig
	def     GuardConfig
}

// NewRegistry creates a registry whose unknown services use def.
func NewRegistry(def GuardConfig) *Registry {
	return &Registry{
		guards:  make(map[string]*Guard),
		configs: make(map[string]GuardConfig),
		def:     def,
	}
}

// Configure sets the config for a service. It has no effect on a guard that
// has already been handed out.
func (r *Registry) Configure(name string, cfg GuardConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = cfg
}

// Get returns the guard for name, creating it on first use.
func (r *Registry) Get(name string) *Guard {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.guards[name]; ok {
		return g
	}
	cfg, ok := r.configs[name]
	if !ok {
		cfg = r.def
	}
	g := NewGuard(name, cfg)
	r.guards[name] = g
	return g
}

// States snapshots every guard's breaker state.
func (r *Registry) States() map[string]BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]BreakerState, len(r.guards))
	for name, g := range r.guards {
		out[name] = g.breaker.State()
	}
	return out
}
