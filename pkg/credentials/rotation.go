// Key rotation. A RotatingProvider wraps an inner Provider and maps
// each logical key alias to a generation-qualified key ID, so rotating
// an alias yields a fresh keypair without touching the master seed.
package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// KeyState tracks the lifecycle state of a signing key.
type KeyState string

const (
	KeyActive  KeyState = "ACTIVE"
	KeyExpired KeyState = "EXPIRED"
	KeyRevoked KeyState = "REVOKED"
	KeyRotated KeyState = "ROTATED"
)

// ManagedKey tracks one generation of a signing key.
type ManagedKey struct {
	Alias      string     `json:"alias"`
	State      KeyState   `json:"state"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RotatedAt  *time.Time `json:"rotated_at,omitempty"`
	Generation int        `json:"generation"`
}

// RotationPolicy defines rotation rules.
type RotationPolicy struct {
	MaxAge      time.Duration `json:"max_age"`
	AutoRotate  bool          `json:"auto_rotate"`
	GracePeriod time.Duration `json:"grace_period"`
}

// RotatingProvider derives signers through an inner provider while
// enforcing key lifecycle per alias. It implements Provider.
type RotatingProvider struct {
	mu     sync.Mutex
	inner  Provider
	policy RotationPolicy
	keys   map[string]*ManagedKey // alias → current generation
	clock  func() time.Time
}

// NewRotatingProvider creates a rotating provider over inner.
func NewRotatingProvider(inner Provider, policy RotationPolicy) *RotatingProvider {
	return &RotatingProvider{
		inner:  inner,
		policy: policy,
		keys:   make(map[string]*ManagedKey),
		clock:  time.Now,
	}
}

// WithClock overrides clock for testing.
func (p *RotatingProvider) WithClock(clock func() time.Time) *RotatingProvider {
	p.clock = clock
	return p
}

// Acquire hands out a signer for the current generation of alias,
// issuing generation 1 on first use. An expired key fails unless the
// policy auto-rotates; a revoked key always fails.
func (p *RotatingProvider) Acquire(ctx context.Context, alias string) (Signer, error) {
	p.mu.Lock()
	key, ok := p.keys[alias]
	if !ok {
		key = p.issueLocked(alias, 1)
	}

	if key.State == KeyRevoked {
		p.mu.Unlock()
		return nil, fmt.Errorf("credentials: key %q revoked", alias)
	}
	if p.clock().After(key.ExpiresAt) {
		if !p.policy.AutoRotate {
			key.State = KeyExpired
			p.mu.Unlock()
			return nil, fmt.Errorf("credentials: key %q expired", alias)
		}
		key = p.rotateLocked(alias, key)
	}
	generation := key.Generation
	p.mu.Unlock()

	return p.inner.Acquire(ctx, generationID(alias, generation))
}

// Rotate retires the current generation of alias and issues the next.
func (p *RotatingProvider) Rotate(alias string) (*ManagedKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	old, ok := p.keys[alias]
	if !ok {
		return nil, fmt.Errorf("credentials: key %q not found", alias)
	}
	return p.rotateLocked(alias, old), nil
}

// Revoke permanently blocks acquisition for alias.
func (p *RotatingProvider) Revoke(alias string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key, ok := p.keys[alias]
	if !ok {
		return fmt.Errorf("credentials: key %q not found", alias)
	}
	key.State = KeyRevoked
	return nil
}

// Status returns the current generation for alias.
func (p *RotatingProvider) Status(alias string) (*ManagedKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key, ok := p.keys[alias]
	if !ok {
		return nil, fmt.Errorf("credentials: key %q not found", alias)
	}
	snapshot := *key
	return &snapshot, nil
}

// Expiring returns active keys inside their grace window or past expiry.
func (p *RotatingProvider) Expiring() []*ManagedKey {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	var out []*ManagedKey
	for _, key := range p.keys {
		if key.State != KeyActive {
			continue
		}
		if now.After(key.ExpiresAt.Add(-p.policy.GracePeriod)) {
			snapshot := *key
			out = append(out, &snapshot)
		}
	}
	return out
}

func (p *RotatingProvider) issueLocked(alias string, generation int) *ManagedKey {
	now := p.clock()
	key := &ManagedKey{
		Alias:      alias,
		State:      KeyActive,
		IssuedAt:   now,
		ExpiresAt:  now.Add(p.policy.MaxAge),
		Generation: generation,
	}
	p.keys[alias] = key
	return key
}

func (p *RotatingProvider) rotateLocked(alias string, old *ManagedKey) *ManagedKey {
	now := p.clock()
	old.State = KeyRotated
	old.RotatedAt = &now
	return p.issueLocked(alias, old.Generation+1)
}

func generationID(alias string, generation int) string {
	return fmt.Sprintf("%s#g%d", alias, generation)
}
