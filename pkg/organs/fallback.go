package organs

import (
	"context"
	"errors"

	"github.com/borglife-labs/borglife/pkg/resilience"
)

// InvokeWithFallback resolves a call through a fallback chain built over
// the given callables, in order. Callables whose price cap the estimated
// cost exceeds are excluded up front; that check is deterministic and
// never an endpoint failure. The chain substitutes a cached result only
// when every callable's capability is idempotent.
func (b *Bridge) InvokeWithFallback(ctx context.Context, callables []*BoundCallable, req InvokeRequest, opts ...resilience.ChainOption) (resilience.FallbackResult, error) {
	if len(callables) == 0 {
		return resilience.FallbackResult{}, &OrganError{Reason: "no callables"}
	}

	idempotent := true
	levels := make([]resilience.Level, 0, len(callables))
	for _, c := range callables {
		if err := b.checkPriceCap(c, req); err != nil {
			var capped *PriceCapError
			if !errors.As(err, &capped) {
				return resilience.FallbackResult{}, err
			}
			b.logger.Debug("fallback level excluded, over price cap",
				"organ", c.organ.Name,
				"estimated", req.EstimatedCost.String(),
				"cap", c.organ.PriceCap.String())
			continue
		}
		if !c.descriptor.IsIdempotent {
			idempotent = false
		}

		levels = append(levels, resilience.Level{
			Name:    c.organ.Name,
			Breaker: b.breakers.For(c.organ.Endpoint),
			Call: func(ctx context.Context) ([]byte, error) {
				if err := b.limiter.Allow(req.BorgID, c.organ.Name); err != nil {
					return nil, err
				}
				result, err := b.callHost(ctx, c, req)
				if err != nil {
					return nil, err
				}
				return b.settle(ctx, c, req, result)
			},
		})
	}
	if len(levels) == 0 {
		return resilience.FallbackResult{}, &PriceCapError{
			Organ:     callables[0].organ.Name,
			Estimated: req.EstimatedCost,
			Cap:       callables[0].organ.PriceCap,
		}
	}

	chainOpts := append([]resilience.ChainOption{resilience.WithChainLogger(b.logger)}, opts...)
	chain := resilience.NewFallbackChain(levels, idempotent, chainOpts...)
	return chain.Execute(ctx)
}
