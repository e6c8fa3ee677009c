package organs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/borglife-labs/borglife/pkg/genome"
	"github.com/borglife-labs/borglife/pkg/observability"
	"github.com/borglife-labs/borglife/pkg/resilience"
	"github.com/borglife-labs/borglife/pkg/wealth"
)

// UsageStats accumulates per-organ invocation accounting.
type UsageStats struct {
	Calls       int64
	Failures    int64
	TotalDebits wealth.Amount
	LastLatency time.Duration
	LastCalled  time.Time
}

// Bridge mediates every cell-to-organ call: rate limit, breaker gate,
// host transport, breaker update, ledger debit. Cells never reach a host
// directly.
type Bridge struct {
	host       Host
	limiter    *resilience.Limiter
	breakers   *resilience.Registry
	ledger     *wealth.Ledger
	logger     *slog.Logger
	clock      func() time.Time
	objectives *observability.ObjectiveTracker
	telemetry  *observability.Provider
	timeline   *observability.Timeline

	mu        sync.Mutex
	stats     map[string]*UsageStats
	endpoints map[string]string
}

// BridgeOption customizes bridge construction.
type BridgeOption func(*Bridge)

// WithBridgeLogger attaches a logger.
func WithBridgeLogger(logger *slog.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = logger }
}

// WithBridgeClock overrides the time source for usage stats.
func WithBridgeClock(clock func() time.Time) BridgeOption {
	return func(b *Bridge) { b.clock = clock }
}

// WithBridgeObjectives feeds every call outcome into an availability
// objective tracker.
func WithBridgeObjectives(tracker *observability.ObjectiveTracker) BridgeOption {
	return func(b *Bridge) { b.objectives = tracker }
}

// WithBridgeTelemetry opens a span and RED accounting around every host
// call.
func WithBridgeTelemetry(provider *observability.Provider) BridgeOption {
	return func(b *Bridge) { b.telemetry = provider }
}

// WithBridgeTimeline records every settled organ call as a lifecycle
// timeline entry.
func WithBridgeTimeline(timeline *observability.Timeline) BridgeOption {
	return func(b *Bridge) { b.timeline = timeline }
}

// NewBridge wires the bridge with its collaborators. All of them are
// required; there is no ambient default for any of them.
func NewBridge(host Host, limiter *resilience.Limiter, breakers *resilience.Registry, ledger *wealth.Ledger, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		host:      host,
		limiter:   limiter,
		breakers:  breakers,
		ledger:    ledger,
		logger:    slog.Default(),
		clock:     time.Now,
		stats:     make(map[string]*UsageStats),
		endpoints: make(map[string]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BoundCallable is an organ bound to a bridge for one phenotype. The
// callable is owned by the phenotype that registered it; the breaker and
// limiter state behind it is shared per endpoint across phenotypes.
type BoundCallable struct {
	organ      genome.Organ
	descriptor Descriptor
	bridge     *Bridge
}

// Organ returns the genome organ this callable was bound from.
func (c *BoundCallable) Organ() genome.Organ { return c.organ }

// Descriptor returns the host descriptor the organ was bound against.
func (c *BoundCallable) Descriptor() Descriptor { return c.descriptor }

// RegisterOrgan binds a genome organ against a host descriptor after
// checking ABI compatibility.
func (b *Bridge) RegisterOrgan(organ genome.Organ, descriptor Descriptor) (*BoundCallable, error) {
	ok, err := descriptor.CompatibleWith(organ.ABIVersion)
	if err != nil {
		return nil, &OrganError{Organ: organ.Name, CapabilityID: descriptor.CapabilityID, Reason: "abi version check", cause: err}
	}
	if !ok {
		return nil, &ABIIncompatibleError{Organ: organ.Name, Required: organ.ABIVersion, Supported: descriptor.ABIVersion}
	}

	b.mu.Lock()
	b.endpoints[organ.Name] = organ.Endpoint
	b.mu.Unlock()

	b.logger.Debug("organ bound",
		"organ", organ.Name,
		"capability", descriptor.CapabilityID,
		"endpoint", organ.Endpoint)
	return &BoundCallable{organ: organ, descriptor: descriptor, bridge: b}, nil
}

// InvokeRequest carries one invocation through the bridge.
type InvokeRequest struct {
	BorgID        string
	Payload       []byte
	EstimatedCost wealth.Amount
}

// Invoke runs the full call path for a bound organ. Fast-fail paths
// (rate limit, open breaker, price cap) never touch the ledger; a
// successful call produces exactly one debit of min(metered, priceCap).
// A call that dies on its deadline counts as a breaker failure and is
// never billed.
func (b *Bridge) Invoke(ctx context.Context, c *BoundCallable, req InvokeRequest) ([]byte, error) {
	if err := b.limiter.Allow(req.BorgID, c.organ.Name); err != nil {
		return nil, err
	}
	if err := b.checkPriceCap(c, req); err != nil {
		return nil, err
	}

	breaker := b.breakers.For(c.organ.Endpoint)
	if err := breaker.Allow(); err != nil {
		return nil, err
	}

	result, err := b.callHost(ctx, c, req)
	if err != nil {
		breaker.Failure()
		return nil, err
	}
	breaker.Success()

	return b.settle(ctx, c, req, result)
}

func (b *Bridge) checkPriceCap(c *BoundCallable, req InvokeRequest) error {
	if req.EstimatedCost.IsZero() {
		return nil
	}
	cmp, err := req.EstimatedCost.Cmp(c.organ.PriceCap)
	if err != nil {
		return &OrganError{Organ: c.organ.Name, CapabilityID: c.descriptor.CapabilityID, Reason: "cost estimate", cause: err}
	}
	if cmp > 0 {
		return &PriceCapError{Organ: c.organ.Name, Estimated: req.EstimatedCost, Cap: c.organ.PriceCap}
	}
	return nil
}

// callHost performs the network call and records failure accounting. The
// caller owns the breaker update.
func (b *Bridge) callHost(ctx context.Context, c *BoundCallable, req InvokeRequest) (*CallResult, error) {
	organ := c.organ
	ctx, done := b.track(ctx, c, req)
	started := b.clock()
	result, err := b.host.Call(ctx, organ.Endpoint, c.descriptor.CapabilityID, req.Payload)
	done(err)
	if err != nil {
		b.recordFailure(organ.Name)
		b.observe(organ.Name, b.clock().Sub(started), false)
		b.timelineEvent(req.BorgID, "organ call failed", map[string]any{
			"organ":      organ.Name,
			"capability": c.descriptor.CapabilityID,
			"error":      err.Error(),
		})
		b.logger.Warn("organ call failed",
			"organ", organ.Name,
			"capability", c.descriptor.CapabilityID,
			"borg_id", req.BorgID,
			"error", err)
		return nil, &OrganError{Organ: organ.Name, CapabilityID: c.descriptor.CapabilityID, Reason: "call failed", cause: err}
	}
	return result, nil
}

// settle bills the completed call and records success accounting.
func (b *Bridge) settle(ctx context.Context, c *BoundCallable, req InvokeRequest, result *CallResult) ([]byte, error) {
	organ := c.organ

	debit, err := result.MeteredCost.Min(organ.PriceCap)
	if err != nil {
		return nil, &OrganError{Organ: organ.Name, CapabilityID: c.descriptor.CapabilityID, Reason: "metered cost", cause: err}
	}
	if debit.IsPositive() {
		if _, err := b.ledger.Debit(ctx, req.BorgID, debit, "organ:"+organ.Name); err != nil {
			return nil, &OrganError{Organ: organ.Name, CapabilityID: c.descriptor.CapabilityID, Reason: "debit failed", cause: err}
		}
	}

	b.recordSuccess(organ.Name, debit, result.Latency)
	b.observe(organ.Name, result.Latency, true)
	b.timelineEvent(req.BorgID, "organ call completed", map[string]any{
		"organ":      organ.Name,
		"capability": c.descriptor.CapabilityID,
		"debited":    debit.String(),
		"latency_ms": result.Latency.Milliseconds(),
	})
	b.logger.Debug("organ call completed",
		"organ", organ.Name,
		"borg_id", req.BorgID,
		"debited", debit.String(),
		"latency", result.Latency)
	return result.Payload, nil
}

func (b *Bridge) recordSuccess(organName string, debit wealth.Amount, latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.statsLocked(organName, debit.Currency)
	s.Calls++
	s.LastLatency = latency
	s.LastCalled = b.clock()
	if sum, err := s.TotalDebits.Add(debit); err == nil {
		s.TotalDebits = sum
	}
}

func (b *Bridge) recordFailure(organName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.statsLocked(organName, genome.Currency)
	s.Calls++
	s.Failures++
	s.LastCalled = b.clock()
}

func (b *Bridge) observe(organName string, latency time.Duration, success bool) {
	if b.objectives == nil {
		return
	}
	b.objectives.Record(observability.Observation{
		Organ:   organName,
		Latency: latency,
		Success: success,
	})
}

// track opens RED accounting for one host call. The returned completion
// function is a no-op when no telemetry provider is attached.
func (b *Bridge) track(ctx context.Context, c *BoundCallable, req InvokeRequest) (context.Context, func(error)) {
	if b.telemetry == nil {
		return ctx, func(error) {}
	}
	attrs := observability.OrganCall(req.BorgID, c.organ.Name, c.descriptor.CapabilityID,
		string(b.breakers.For(c.organ.Endpoint).State()))
	return b.telemetry.TrackOperation(ctx, "organ.call", attrs...)
}

func (b *Bridge) timelineEvent(borgID, summary string, details map[string]any) {
	if b.timeline == nil {
		return
	}
	_ = b.timeline.Record(observability.TimelineEntry{
		EntryType: observability.EntryTypeOrganCall,
		BorgID:    borgID,
		Summary:   summary,
		Details:   details,
	})
}

func (b *Bridge) statsLocked(organName, currency string) *UsageStats {
	s, ok := b.stats[organName]
	if !ok {
		s = &UsageStats{TotalDebits: wealth.Zero(currency)}
		b.stats[organName] = s
	}
	return s
}

// Stats returns a snapshot of usage accounting for one organ.
func (b *Bridge) Stats(organName string) (UsageStats, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.stats[organName]
	if !ok {
		return UsageStats{}, false
	}
	return *s, true
}

// Breakers exposes the breaker registry for health reporting.
func (b *Bridge) Breakers() *resilience.Registry { return b.breakers }
