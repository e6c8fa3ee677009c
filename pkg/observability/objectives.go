// Availability objectives for organ endpoints.
//
// Each organ gets a latency and success-rate target evaluated over a
// sliding window, with burn-rate tracking against the error budget.
package observability

import (
	"fmt"
	"sync"
	"time"
)

// Objective defines an availability target for one organ.
type Objective struct {
	ObjectiveID string        `json:"objective_id"`
	Organ       string        `json:"organ"`
	LatencyP99  time.Duration `json:"latency_p99"`  // Target p99 latency
	SuccessRate float64       `json:"success_rate"` // Target success rate (0-1)
	WindowHours int           `json:"window_hours"` // Evaluation window
}

// Observation is a single organ call data point.
type Observation struct {
	Organ     string        `json:"organ"`
	Latency   time.Duration `json:"latency"`
	Success   bool          `json:"success"`
	Timestamp time.Time     `json:"timestamp"`
}

// ObjectiveStatus reports current compliance for one organ.
type ObjectiveStatus struct {
	ObjectiveID      string  `json:"objective_id"`
	Organ            string  `json:"organ"`
	CurrentP99       float64 `json:"current_p99_ms"`
	CurrentSuccess   float64 `json:"current_success_rate"`
	InCompliance     bool    `json:"in_compliance"`
	BurnRate         float64 `json:"burn_rate"`         // >1 means burning faster than budget allows
	ErrorBudgetLeft  float64 `json:"error_budget_left"` // percentage remaining
	ObservationCount int     `json:"observation_count"`
}

// ObjectiveTracker monitors availability objectives across organs.
type ObjectiveTracker struct {
	mu           sync.Mutex
	targets      map[string]*Objective    // organ → objective
	observations map[string][]Observation // organ → observations
	clock        func() time.Time
}

// NewObjectiveTracker creates a new tracker.
func NewObjectiveTracker() *ObjectiveTracker {
	return &ObjectiveTracker{
		targets:      make(map[string]*Objective),
		observations: make(map[string][]Observation),
		clock:        time.Now,
	}
}

// WithClock overrides clock for testing.
func (t *ObjectiveTracker) WithClock(clock func() time.Time) *ObjectiveTracker {
	t.clock = clock
	return t
}

// SetObjective sets the target for an organ.
func (t *ObjectiveTracker) SetObjective(target *Objective) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targets[target.Organ] = target
}

// Record records an observation.
func (t *ObjectiveTracker) Record(obs Observation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if obs.Timestamp.IsZero() {
		obs.Timestamp = t.clock()
	}
	t.observations[obs.Organ] = append(t.observations[obs.Organ], obs)
}

// Status computes current compliance for an organ.
func (t *ObjectiveTracker) Status(organ string) (*ObjectiveStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	target, ok := t.targets[organ]
	if !ok {
		return nil, fmt.Errorf("no objective for organ %q", organ)
	}

	observations := t.observations[organ]
	now := t.clock()
	windowStart := now.Add(-time.Duration(target.WindowHours) * time.Hour)

	// Filter to window
	var windowed []Observation
	for _, obs := range observations {
		if obs.Timestamp.After(windowStart) {
			windowed = append(windowed, obs)
		}
	}

	if len(windowed) == 0 {
		return &ObjectiveStatus{
			ObjectiveID:      target.ObjectiveID,
			Organ:            organ,
			InCompliance:     true,
			ErrorBudgetLeft:  100.0,
			ObservationCount: 0,
		}, nil
	}

	// Compute success rate
	successCount := 0
	for _, obs := range windowed {
		if obs.Success {
			successCount++
		}
	}
	successRate := float64(successCount) / float64(len(windowed))

	// Compute p99 latency (approximate)
	latencies := make([]float64, len(windowed))
	for i, obs := range windowed {
		latencies[i] = float64(obs.Latency.Milliseconds())
	}
	// Sort for p99
	for i := range latencies {
		for j := i + 1; j < len(latencies); j++ {
			if latencies[j] < latencies[i] {
				latencies[i], latencies[j] = latencies[j], latencies[i]
			}
		}
	}
	p99Index := int(float64(len(latencies)) * 0.99)
	if p99Index >= len(latencies) {
		p99Index = len(latencies) - 1
	}
	p99 := latencies[p99Index]

	// Check compliance
	latencyOK := p99 <= float64(target.LatencyP99.Milliseconds())
	successOK := successRate >= target.SuccessRate
	inCompliance := latencyOK && successOK

	// Compute error budget and burn rate
	errorBudget := 1.0 - target.SuccessRate
	errorRate := 1.0 - successRate
	var burnRate float64
	if errorBudget > 0 {
		burnRate = errorRate / errorBudget
	}
	budgetLeft := 100.0 * (1.0 - (errorRate / errorBudget))
	if budgetLeft < 0 {
		budgetLeft = 0
	}

	return &ObjectiveStatus{
		ObjectiveID:      target.ObjectiveID,
		Organ:            organ,
		CurrentP99:       p99,
		CurrentSuccess:   successRate,
		InCompliance:     inCompliance,
		BurnRate:         burnRate,
		ErrorBudgetLeft:  budgetLeft,
		ObservationCount: len(windowed),
	}, nil
}

// Organs returns the organs that have objectives set.
func (t *ObjectiveTracker) Organs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.targets))
	for name := range t.targets {
		names = append(names, name)
	}
	return names
}
