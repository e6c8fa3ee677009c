package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// CallFunc performs one attempt against a single endpoint.
type CallFunc func(ctx context.Context) ([]byte, error)

// Level is one rung of a fallback chain: an endpoint, its breaker, and
// the call that reaches it.
type Level struct {
	Name    string
	Breaker *Breaker
	Call    CallFunc
}

// FallbackResult carries the payload plus where it came from.
type FallbackResult struct {
	Payload   []byte
	Source    string
	FromCache bool
	Age       time.Duration
}

// FallbackChain evaluates levels top-down. A level is attempted only if
// its breaker admits the call; success short-circuits the rest. The cache
// rung is consulted last and only for idempotent capabilities within the
// staleness bound. Non-idempotent calls never receive a substituted
// response.
type FallbackChain struct {
	levels     []Level
	cache      ResultCache
	cacheKey   string
	idempotent bool
	staleness  time.Duration
	clock      func() time.Time
	logger     *slog.Logger
}

// ChainOption customizes chain construction.
type ChainOption func(*FallbackChain)

// WithCache arms the cache rung. It only fires for idempotent chains.
func WithCache(cache ResultCache, key string, staleness time.Duration) ChainOption {
	return func(c *FallbackChain) {
		c.cache = cache
		c.cacheKey = key
		c.staleness = staleness
	}
}

// WithChainClock overrides the time source used for staleness checks.
func WithChainClock(clock func() time.Time) ChainOption {
	return func(c *FallbackChain) { c.clock = clock }
}

// WithChainLogger attaches a logger for per-level attempt records.
func WithChainLogger(logger *slog.Logger) ChainOption {
	return func(c *FallbackChain) { c.logger = logger }
}

// NewFallbackChain builds a chain over the given levels. idempotent must
// reflect the capability descriptor; it gates cache substitution.
func NewFallbackChain(levels []Level, idempotent bool, opts ...ChainOption) *FallbackChain {
	c := &FallbackChain{
		levels:     levels,
		idempotent: idempotent,
		clock:      time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute walks the chain. Each level's result feeds its breaker; a
// success on an idempotent chain also refreshes the cache.
func (c *FallbackChain) Execute(ctx context.Context) (FallbackResult, error) {
	var lastErr error
	attempted := make([]string, 0, len(c.levels)+1)

	for _, lvl := range c.levels {
		if err := lvl.Breaker.Allow(); err != nil {
			var open *OpenError
			if errors.As(err, &open) {
				c.logger.Debug("fallback level skipped, breaker open",
					"level", lvl.Name, "retry_after", open.RetryAfter)
				attempted = append(attempted, lvl.Name+" (open)")
				lastErr = err
				continue
			}
			return FallbackResult{}, err
		}

		payload, err := lvl.Call(ctx)
		if err != nil {
			var limited *LimitExceededError
			if errors.As(err, &limited) {
				// Rate limiting says nothing about endpoint health. The
				// admitted slot is handed back so a HalfOpen trial is not
				// leaked.
				lvl.Breaker.Relinquish()
				c.logger.Debug("fallback level rate limited", "level", lvl.Name)
				attempted = append(attempted, lvl.Name+" (limited)")
				lastErr = err
				continue
			}
			lvl.Breaker.Failure()
			c.logger.Warn("fallback level failed", "level", lvl.Name, "error", err)
			attempted = append(attempted, lvl.Name)
			lastErr = err
			continue
		}

		lvl.Breaker.Success()
		if c.idempotent && c.cache != nil {
			if err := c.cache.Put(ctx, c.cacheKey, payload); err != nil {
				c.logger.Warn("result cache refresh failed", "key", c.cacheKey, "error", err)
			}
		}
		return FallbackResult{Payload: payload, Source: lvl.Name}, nil
	}

	if c.idempotent && c.cache != nil {
		res, ok, err := c.cache.Get(ctx, c.cacheKey)
		if err != nil {
			c.logger.Warn("result cache lookup failed", "key", c.cacheKey, "error", err)
		} else if ok {
			age := res.Age(c.clock())
			if age <= c.staleness {
				c.logger.Info("serving cached result", "key", c.cacheKey, "age", age)
				return FallbackResult{Payload: res.Payload, Source: "cache", FromCache: true, Age: age}, nil
			}
			attempted = append(attempted, "cache (stale)")
		}
	}

	return FallbackResult{}, &ExhaustedError{Attempted: attempted, cause: lastErr}
}
