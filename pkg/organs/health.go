package organs

import (
	"context"
	"sync"
	"time"

	"github.com/borglife-labs/borglife/pkg/resilience"
)

// HealthStatus is one organ's probe outcome.
type HealthStatus struct {
	Organ         string
	Endpoint      string
	Healthy       bool
	Error         string
	BreakerState  resilience.State
	RecentLatency time.Duration
}

// Health probes every organ the bridge has seen, concurrently. The report
// is informational; no invocation path consults it.
func (b *Bridge) Health(ctx context.Context) []HealthStatus {
	b.mu.Lock()
	organs := make(map[string]string, len(b.endpoints))
	for name, ep := range b.endpoints {
		organs[name] = ep
	}
	b.mu.Unlock()

	out := make([]HealthStatus, 0, len(organs))
	var wg sync.WaitGroup
	var outMu sync.Mutex

	for name, endpoint := range organs {
		wg.Add(1)
		go func(name, endpoint string) {
			defer wg.Done()

			status := HealthStatus{
				Organ:        name,
				Endpoint:     endpoint,
				BreakerState: b.breakers.For(endpoint).State(),
			}
			start := time.Now()
			if err := b.host.Ping(ctx, endpoint); err != nil {
				status.Error = err.Error()
			} else {
				status.Healthy = true
			}
			status.RecentLatency = time.Since(start)

			outMu.Lock()
			out = append(out, status)
			outMu.Unlock()
		}(name, endpoint)
	}
	wg.Wait()
	return out
}
