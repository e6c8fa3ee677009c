// Package resilience provides the failure-handling stack around organ
// invocation: circuit breakers, per-borg rate limits, fallback chains, and
// last-known-good result caching.
package resilience

import (
	"fmt"
	"time"
)

// OpenError is returned when a breaker rejects a call without attempting
// the network. RetryAfter is the remaining time until the breaker will let
// a trial call through.
type OpenError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s (retry after %s)", e.Endpoint, e.RetryAfter)
}

// LimitExceededError is returned when a (borg, organ) pair has exhausted
// its invocation budget. Rejections never touch breaker or ledger state.
type LimitExceededError struct {
	BorgID string
	Organ  string
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for borg %s on organ %s", e.BorgID, e.Organ)
}

// ExhaustedError is returned when every level of a fallback chain failed
// and no cached result was eligible.
type ExhaustedError struct {
	Attempted []string
	cause     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all fallback levels exhausted (%v): %v", e.Attempted, e.cause)
}

func (e *ExhaustedError) Unwrap() error { return e.cause }
