package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/borglife-labs/borglife/pkg/credentials"
)

// MockJAM simulates a JAM service: submissions are refined statelessly,
// then accumulated into the adapter's state at the close of each epoch.
// It is the Phase-1 stand-in for a real chain connection.
type MockJAM struct {
	creds  credentials.Provider
	keyID  string
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.Mutex
	epoch   uint64
	anchors map[string]string
}

// MockJAMOption customizes adapter construction.
type MockJAMOption func(*MockJAM)

// WithMockJAMLogger attaches a logger.
func WithMockJAMLogger(logger *slog.Logger) MockJAMOption {
	return func(m *MockJAM) { m.logger = logger }
}

// WithMockJAMClock overrides the time source.
func WithMockJAMClock(clock func() time.Time) MockJAMOption {
	return func(m *MockJAM) { m.clock = clock }
}

// NewMockJAM creates the adapter. Every submission is signed with a key
// acquired from creds under keyID and released before returning.
func NewMockJAM(creds credentials.Provider, keyID string, opts ...MockJAMOption) *MockJAM {
	m := &MockJAM{
		creds:   creds,
		keyID:   keyID,
		logger:  slog.Default(),
		clock:   time.Now,
		anchors: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// refined is the stateless output of the refine phase for one record.
type refined struct {
	Kind        RecordKind `json:"kind"`
	BorgAddress string     `json:"borg_address"`
	GenomeHash  string     `json:"genome_hash,omitempty"`
	From        string     `json:"from,omitempty"`
	To          string     `json:"to,omitempty"`
	Amount      string     `json:"amount,omitempty"`
	Epoch       uint64     `json:"epoch"`
}

// SubmitRecord runs one record through refine and accumulate. Accumulate
// advances the epoch and mutates anchor state; refine touches nothing.
func (m *MockJAM) SubmitRecord(ctx context.Context, rec Record) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rec.BorgAddress == "" {
		return nil, fmt.Errorf("mockjam: record has no borg address")
	}

	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	// Refine phase: stateless transformation of the submission.
	r := refined{
		Kind:        rec.Kind,
		BorgAddress: rec.BorgAddress,
		GenomeHash:  rec.GenomeHash,
		From:        rec.From,
		To:          rec.To,
		Epoch:       epoch,
	}
	if !rec.Amount.IsZero() {
		r.Amount = rec.Amount.String()
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("mockjam: refine encode: %w", err)
	}

	signer, err := m.creds.Acquire(ctx, m.keyID)
	if err != nil {
		return nil, fmt.Errorf("mockjam: acquire signing key: %w", err)
	}
	defer signer.Release()

	sig, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("mockjam: sign: %w", err)
	}

	// Accumulate phase: the only place state changes.
	m.mu.Lock()
	switch rec.Kind {
	case RecordGenomeHash:
		if rec.GenomeHash == "" {
			m.mu.Unlock()
			return nil, fmt.Errorf("mockjam: genome record has no hash")
		}
		m.anchors[rec.BorgAddress] = rec.GenomeHash
	case RecordTransfer:
		if rec.From == "" || rec.To == "" || !rec.Amount.IsPositive() {
			m.mu.Unlock()
			return nil, fmt.Errorf("mockjam: malformed transfer record")
		}
	default:
		m.mu.Unlock()
		return nil, fmt.Errorf("mockjam: unknown record kind %q", rec.Kind)
	}
	accepted := m.epoch
	m.epoch++
	m.mu.Unlock()

	m.logger.Debug("record accumulated",
		"kind", rec.Kind,
		"borg_address", rec.BorgAddress,
		"epoch", accepted)

	return &Receipt{
		Epoch:      accepted,
		Signature:  sig,
		PublicKey:  signer.PublicKey(),
		AcceptedAt: m.clock(),
	}, nil
}

// RetrieveHash returns the last anchored genome hash for an address.
func (m *MockJAM) RetrieveHash(ctx context.Context, borgAddress string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.anchors[borgAddress]
	if !ok {
		return "", fmt.Errorf("mockjam: no anchor for %s", borgAddress)
	}
	return h, nil
}

// Epoch reports the current accumulate epoch.
func (m *MockJAM) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}
