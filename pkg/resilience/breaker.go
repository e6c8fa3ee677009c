package resilience

import (
	"sync"
	"time"
)

// State is the breaker position for a single endpoint.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Defaults match the long recovery window the organ endpoints were tuned
// for in production.
const (
	DefaultThreshold       = 5
	DefaultRecoveryTimeout = 300 * time.Second
)

// BreakerSettings configures a breaker. Zero values fall back to defaults.
type BreakerSettings struct {
	Threshold       int
	RecoveryTimeout time.Duration
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.Threshold <= 0 {
		s.Threshold = DefaultThreshold
	}
	if s.RecoveryTimeout <= 0 {
		s.RecoveryTimeout = DefaultRecoveryTimeout
	}
	return s
}

// Breaker is a per-endpoint failure detector. Calls pass while Closed;
// once consecutive failures reach the threshold the breaker opens and
// fast-fails everything until the recovery timeout elapses, after which
// exactly one trial call is let through.
type Breaker struct {
	mu       sync.Mutex
	endpoint string
	settings BreakerSettings
	clock    func() time.Time

	state               State
	consecutiveFailures int
	lastFailureAt       time.Time
	openedAt            time.Time
	trialInFlight       bool
}

// BreakerOption customizes breaker construction.
type BreakerOption func(*Breaker)

// WithBreakerClock overrides the time source. Used by tests to step
// through the recovery timeout deterministically.
func WithBreakerClock(clock func() time.Time) BreakerOption {
	return func(b *Breaker) { b.clock = clock }
}

// NewBreaker creates a Closed breaker for one endpoint.
func NewBreaker(endpoint string, settings BreakerSettings, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		endpoint: endpoint,
		settings: settings.withDefaults(),
		clock:    time.Now,
		state:    StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow decides whether a call may proceed. While Open it returns
// *OpenError until the recovery timeout elapses, then admits a single
// trial call and holds everyone else out until that trial reports back.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		elapsed := b.clock().Sub(b.openedAt)
		if elapsed < b.settings.RecoveryTimeout {
			return &OpenError{Endpoint: b.endpoint, RetryAfter: b.settings.RecoveryTimeout - elapsed}
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return &OpenError{Endpoint: b.endpoint, RetryAfter: 0}
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

// Success records a successful call. In HalfOpen this closes the breaker;
// in Closed it resets the consecutive failure counter.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.trialInFlight = false
	b.state = StateClosed
}

// Relinquish returns an admitted slot without recording an outcome. A
// caller that was admitted but never reached the endpoint, such as a
// rate-limited attempt, must relinquish or a HalfOpen trial slot would
// stay occupied forever.
func (b *Breaker) Relinquish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false
}

// Failure records a failed call. The HalfOpen trial failing reopens the
// breaker with a fresh recovery window.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	b.lastFailureAt = now
	b.trialInFlight = false

	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = now
		return
	}

	b.consecutiveFailures++
	if b.consecutiveFailures >= b.settings.Threshold {
		b.state = StateOpen
		b.openedAt = now
	}
}

// State reports the current breaker position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Endpoint reports the endpoint this breaker guards.
func (b *Breaker) Endpoint() string { return b.endpoint }

// Registry holds one breaker per endpoint for the process lifetime.
// Records are created on first use and transitioned, never deleted.
type Registry struct {
	mu       sync.Mutex
	settings BreakerSettings
	clock    func() time.Time
	breakers map[string]*Breaker
}

// RegistryOption customizes registry construction.
type RegistryOption func(*Registry)

// WithRegistryClock overrides the time source for every breaker the
// registry creates.
func WithRegistryClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

// NewRegistry creates an empty breaker registry.
func NewRegistry(settings BreakerSettings, opts ...RegistryOption) *Registry {
	r := &Registry{
		settings: settings.withDefaults(),
		clock:    time.Now,
		breakers: make(map[string]*Breaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// For returns the breaker guarding the given endpoint, creating it in the
// Closed state on first use.
func (r *Registry) For(endpoint string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[endpoint]
	if !ok {
		b = NewBreaker(endpoint, r.settings, WithBreakerClock(r.clock))
		r.breakers[endpoint] = b
	}
	return b
}

// Endpoints lists every endpoint with a breaker record.
func (r *Registry) Endpoints() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.breakers))
	for ep := range r.breakers {
		out = append(out, ep)
	}
	return out
}
