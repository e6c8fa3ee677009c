package genome

import (
	"github.com/borglife-labs/borglife/pkg/canonical"
)

// ComputeHash derives the genome's content-addressed identity. The hash is
// taken over the canonical document form, so a genome and its serialized
// round trip always hash identically.
func ComputeHash(g *Genome) (string, error) {
	return canonical.HashValue(g.toDoc())
}

// ValidateIntegrity recomputes the genome hash and compares it against the
// expected digest. A mismatch means the genome was tampered with or
// corrupted in transit and must not be executed.
func ValidateIntegrity(g *Genome, expected string) error {
	actual, err := ComputeHash(g)
	if err != nil {
		return err
	}
	if actual != expected {
		return &IntegrityMismatchError{Expected: expected, Actual: actual}
	}
	return nil
}
