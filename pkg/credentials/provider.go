// Package credentials provides scoped signing keys. A key is acquired for
// one operation and released afterwards; nothing in the process holds an
// ambient long-lived signer.
package credentials

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// Signer signs payloads for exactly one acquisition. Release must be
// called when the operation completes; Sign after Release fails.
type Signer interface {
	Sign(msg []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
	Release()
}

// Provider hands out scoped signers by key ID.
type Provider interface {
	Acquire(ctx context.Context, keyID string) (Signer, error)
}

// MemoryProvider derives per-key Ed25519 signers from a master seed via
// HKDF-SHA256, so each key ID yields a stable, distinct keypair without
// any of them being stored.
type MemoryProvider struct {
	mu   sync.Mutex
	seed []byte
}

// NewMemoryProvider creates a provider with a random master seed.
func NewMemoryProvider() (*MemoryProvider, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("credentials: seed generation: %w", err)
	}
	return &MemoryProvider{seed: seed}, nil
}

// NewMemoryProviderFromSeed creates a provider with a fixed seed. Used by
// tests that need deterministic keys.
func NewMemoryProviderFromSeed(seed []byte) (*MemoryProvider, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("credentials: seed must be %d bytes", ed25519.SeedSize)
	}
	p := &MemoryProvider{seed: make([]byte, len(seed))}
	copy(p.seed, seed)
	return p, nil
}

func (p *MemoryProvider) Acquire(ctx context.Context, keyID string) (Signer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if keyID == "" {
		return nil, fmt.Errorf("credentials: empty key id")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	derived := make([]byte, ed25519.SeedSize)
	r := hkdf.New(sha256.New, p.seed, []byte("borglife-key-kdf"), []byte(keyID))
	if _, err := io.ReadFull(r, derived); err != nil {
		return nil, fmt.Errorf("credentials: derive %s: %w", keyID, err)
	}

	priv := ed25519.NewKeyFromSeed(derived)
	return &scopedSigner{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

type scopedSigner struct {
	mu       sync.Mutex
	priv     ed25519.PrivateKey
	pub      ed25519.PublicKey
	released bool
}

func (s *scopedSigner) Sign(msg []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, fmt.Errorf("credentials: signer already released")
	}
	return ed25519.Sign(s.priv, msg), nil
}

func (s *scopedSigner) PublicKey() ed25519.PublicKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pub
}

// Release zeroizes the private key. Idempotent.
func (s *scopedSigner) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	for i := range s.priv {
		s.priv[i] = 0
	}
	s.released = true
}
