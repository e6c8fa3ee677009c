package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestFallbackSkipsOpenPrimary(t *testing.T) {
	clock := newFakeClock()
	primary := NewBreaker("primary", BreakerSettings{Threshold: 1, RecoveryTimeout: time.Hour},
		WithBreakerClock(clock.Now))
	primary.Failure()

	primaryCalled := false
	chain := NewFallbackChain([]Level{
		{Name: "primary", Breaker: primary, Call: func(context.Context) ([]byte, error) {
			primaryCalled = true
			return []byte("primary"), nil
		}},
		{Name: "secondary", Breaker: NewBreaker("secondary", BreakerSettings{}), Call: func(context.Context) ([]byte, error) {
			return []byte("secondary"), nil
		}},
	}, true)

	res, err := chain.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if primaryCalled {
		t.Error("primary was invoked despite open breaker")
	}
	if res.Source != "secondary" || string(res.Payload) != "secondary" {
		t.Errorf("result = %q from %q, want secondary", res.Payload, res.Source)
	}
}

func TestFallbackSuccessShortCircuits(t *testing.T) {
	secondaryCalled := false
	chain := NewFallbackChain([]Level{
		{Name: "primary", Breaker: NewBreaker("p", BreakerSettings{}), Call: func(context.Context) ([]byte, error) {
			return []byte("ok"), nil
		}},
		{Name: "secondary", Breaker: NewBreaker("s", BreakerSettings{}), Call: func(context.Context) ([]byte, error) {
			secondaryCalled = true
			return nil, errors.New("unreachable")
		}},
	}, false)

	res, err := chain.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != "primary" || secondaryCalled {
		t.Error("secondary attempted after primary success")
	}
}

func TestFallbackCacheOnlyForIdempotent(t *testing.T) {
	boom := func(context.Context) ([]byte, error) { return nil, fmt.Errorf("down") }
	cache := NewMemoryCache()
	if err := cache.Put(context.Background(), "k", []byte("cached")); err != nil {
		t.Fatal(err)
	}

	// Idempotent: cached result is served.
	idem := NewFallbackChain(
		[]Level{{Name: "primary", Breaker: NewBreaker("p1", BreakerSettings{}), Call: boom}},
		true, WithCache(cache, "k", time.Minute))
	res, err := idem.Execute(context.Background())
	if err != nil {
		t.Fatalf("idempotent chain should hit cache: %v", err)
	}
	if !res.FromCache || string(res.Payload) != "cached" {
		t.Errorf("unexpected cache result: %+v", res)
	}

	// Non-idempotent: the same cache never substitutes.
	write := NewFallbackChain(
		[]Level{{Name: "primary", Breaker: NewBreaker("p2", BreakerSettings{}), Call: boom}},
		false, WithCache(cache, "k", time.Minute))
	_, err = write.Execute(context.Background())
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("want *ExhaustedError for write capability, got %v", err)
	}
}

func TestFallbackRejectsStaleCache(t *testing.T) {
	clock := newFakeClock()
	cache := NewMemoryCache().WithClock(clock.Now)
	if err := cache.Put(context.Background(), "k", []byte("old")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(10 * time.Minute)

	chain := NewFallbackChain(
		[]Level{{Name: "primary", Breaker: NewBreaker("p", BreakerSettings{}), Call: func(context.Context) ([]byte, error) {
			return nil, errors.New("down")
		}}},
		true,
		WithCache(cache, "k", time.Minute),
		WithChainClock(clock.Now))

	_, err := chain.Execute(context.Background())
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("stale cache must not be served, got %v", err)
	}
}

func TestFallbackRefreshesCacheOnSuccess(t *testing.T) {
	cache := NewMemoryCache()
	chain := NewFallbackChain(
		[]Level{{Name: "primary", Breaker: NewBreaker("p", BreakerSettings{}), Call: func(context.Context) ([]byte, error) {
			return []byte("fresh"), nil
		}}},
		true, WithCache(cache, "k", time.Minute))

	if _, err := chain.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	res, ok, err := cache.Get(context.Background(), "k")
	if err != nil || !ok {
		t.Fatalf("cache not refreshed: ok=%v err=%v", ok, err)
	}
	if string(res.Payload) != "fresh" {
		t.Errorf("cached payload = %q", res.Payload)
	}
}

func TestFallbackFailureFeedsBreaker(t *testing.T) {
	b := NewBreaker("p", BreakerSettings{Threshold: 1, RecoveryTimeout: time.Hour})
	chain := NewFallbackChain(
		[]Level{{Name: "primary", Breaker: b, Call: func(context.Context) ([]byte, error) {
			return nil, errors.New("down")
		}}},
		false)

	_, _ = chain.Execute(context.Background())
	if b.State() != StateOpen {
		t.Error("level failure did not feed its breaker")
	}
}

func TestFallbackRateLimitedTrialReleasesSlot(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker("p", BreakerSettings{Threshold: 1, RecoveryTimeout: 30 * time.Second},
		WithBreakerClock(clock.Now))
	b.Failure()
	clock.Advance(time.Minute)

	// The admitted trial never reaches the endpoint.
	chain := NewFallbackChain(
		[]Level{{Name: "primary", Breaker: b, Call: func(context.Context) ([]byte, error) {
			return nil, &LimitExceededError{BorgID: "borg-1", Organ: "web_search"}
		}}},
		false)
	if _, err := chain.Execute(context.Background()); err == nil {
		t.Fatal("chain should exhaust")
	}

	// Once the rate window refills, the next caller must get the trial
	// slot instead of an open error.
	if err := b.Allow(); err != nil {
		t.Fatalf("trial slot leaked: %v", err)
	}
	b.Success()
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed", b.State())
	}
}
