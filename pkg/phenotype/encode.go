package phenotype

import (
	"fmt"

	"github.com/borglife-labs/borglife/pkg/genome"
)

// Encode re-derives the genome of a live phenotype and verifies that the
// round trip hashes to the digest the phenotype was built from. A
// mismatch means live state diverged from the genome it claims to carry.
func Encode(p *Phenotype) (*genome.Genome, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	g := p.genome
	expected := p.genomeHash

	// Live state must still cover the genome exactly.
	for _, spec := range g.Cells {
		if _, ok := p.cells[spec.Name]; !ok {
			p.mu.Unlock()
			return nil, fmt.Errorf("phenotype encode: cell %s missing from live state", spec.Name)
		}
	}
	for _, organ := range g.Organs {
		if _, ok := p.callables[organ.Name]; !ok {
			p.mu.Unlock()
			return nil, fmt.Errorf("phenotype encode: organ %s missing from live state", organ.Name)
		}
	}
	p.mu.Unlock()

	if err := genome.ValidateIntegrity(g, expected); err != nil {
		return nil, err
	}
	return g, nil
}
