package credentials

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"testing"
)

func TestAcquireDerivesStableDistinctKeys(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, ed25519.SeedSize)
	p, err := NewMemoryProviderFromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	a1, err := p.Acquire(ctx, "borg-a")
	if err != nil {
		t.Fatal(err)
	}
	defer a1.Release()
	a2, err := p.Acquire(ctx, "borg-a")
	if err != nil {
		t.Fatal(err)
	}
	defer a2.Release()
	b, err := p.Acquire(ctx, "borg-b")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()

	if !a1.PublicKey().Equal(a2.PublicKey()) {
		t.Error("same key id must derive the same keypair")
	}
	if a1.PublicKey().Equal(b.PublicKey()) {
		t.Error("distinct key ids must derive distinct keypairs")
	}
}

func TestSignAndVerify(t *testing.T) {
	p, err := NewMemoryProvider()
	if err != nil {
		t.Fatal(err)
	}
	s, err := p.Acquire(context.Background(), "borg-a")
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte("genome anchored")
	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !ed25519.Verify(s.PublicKey(), msg, sig) {
		t.Error("signature does not verify")
	}

	s.Release()
	s.Release() // idempotent
	if _, err := s.Sign(msg); err == nil {
		t.Error("Sign after Release must fail")
	}
}

func TestAcquireValidation(t *testing.T) {
	p, err := NewMemoryProvider()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Acquire(context.Background(), ""); err == nil {
		t.Error("empty key id should be rejected")
	}
	if _, err := NewMemoryProviderFromSeed([]byte("short")); err == nil {
		t.Error("short seed should be rejected")
	}
}
