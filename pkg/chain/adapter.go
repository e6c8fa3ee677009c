// Package chain anchors borg state to a settlement layer: genome hashes
// after ingestion and wealth transfers after they clear the ledger. The
// concrete chain protocol stays behind the Adapter interface.
package chain

import (
	"context"
	"time"

	"github.com/borglife-labs/borglife/pkg/wealth"
)

// RecordKind tags what a record anchors.
type RecordKind string

const (
	RecordGenomeHash RecordKind = "genome_hash"
	RecordTransfer   RecordKind = "transfer"
)

// Record is one anchoring submission.
type Record struct {
	Kind        RecordKind
	BorgAddress string
	GenomeHash  string
	From        string
	To          string
	Amount      wealth.Amount
}

// Receipt acknowledges an accepted record.
type Receipt struct {
	Epoch      uint64
	Signature  []byte
	PublicKey  []byte
	AcceptedAt time.Time
}

// Adapter is the settlement-layer collaborator. Implementations are
// selected explicitly at construction; there is no fallback from one to
// another.
type Adapter interface {
	SubmitRecord(ctx context.Context, rec Record) (*Receipt, error)
	RetrieveHash(ctx context.Context, borgAddress string) (string, error)
}
