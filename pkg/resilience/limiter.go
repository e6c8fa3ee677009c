package resilience

import (
	"sync"

	"golang.org/x/time/rate"
)

// LimiterSettings caps invocation throughput per (borg, organ) pair.
type LimiterSettings struct {
	PerMinute int
	Burst     int
}

func (s LimiterSettings) withDefaults() LimiterSettings {
	if s.PerMinute <= 0 {
		s.PerMinute = 60
	}
	if s.Burst <= 0 {
		s.Burst = s.PerMinute
	}
	return s
}

type limiterKey struct {
	borgID string
	organ  string
}

// Limiter enforces a token bucket per (borg, organ) pair. Distinct borgs
// never share a budget, and neither do distinct organs on the same borg.
type Limiter struct {
	mu       sync.Mutex
	settings LimiterSettings
	buckets  map[limiterKey]*rate.Limiter
}

// NewLimiter creates a limiter with the given per-pair budget.
func NewLimiter(settings LimiterSettings) *Limiter {
	return &Limiter{
		settings: settings.withDefaults(),
		buckets:  make(map[limiterKey]*rate.Limiter),
	}
}

// Allow consumes one token for the pair, returning *LimitExceededError
// when the bucket is empty. A rejection mutates nothing outside the
// bucket itself.
func (l *Limiter) Allow(borgID, organ string) error {
	if !l.bucket(borgID, organ).Allow() {
		return &LimitExceededError{BorgID: borgID, Organ: organ}
	}
	return nil
}

func (l *Limiter) bucket(borgID, organ string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := limiterKey{borgID: borgID, organ: organ}
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Limit(float64(l.settings.PerMinute)/60.0), l.settings.Burst)
		l.buckets[key] = b
	}
	return b
}
