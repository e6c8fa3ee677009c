package phenotype

import (
	"context"
	"fmt"
	"sync"

	"github.com/borglife-labs/borglife/pkg/genome"
	"github.com/borglife-labs/borglife/pkg/observability"
	"github.com/borglife-labs/borglife/pkg/organs"
	"github.com/borglife-labs/borglife/pkg/wealth"
)

// Phenotype is a live borg instance. It exclusively owns its cells and
// bound callables; the breaker and limiter state behind those callables
// is shared per endpoint with every other phenotype on the same service.
type Phenotype struct {
	borgID       string
	serviceIndex string
	genome       *genome.Genome
	genomeHash   string

	bridge         *organs.Bridge
	cells          map[string]CellInstance
	callables      map[string]*organs.BoundCallable
	totalCostBound wealth.Amount
	sandbox        *Sandbox
	telemetry      *observability.Provider

	mu     sync.Mutex
	closed bool
}

// ServiceIndex returns the service identity inherited from the genome.
func (p *Phenotype) ServiceIndex() string { return p.serviceIndex }

// TotalCostBound returns the exact worst-case spend of one full pass:
// every cell at its estimate plus every organ at its cap.
func (p *Phenotype) TotalCostBound() wealth.Amount { return p.totalCostBound }

// GenomeHash returns the digest the phenotype was built against.
func (p *Phenotype) GenomeHash() string { return p.genomeHash }

// CellNames lists the instantiated cells.
func (p *Phenotype) CellNames() []string {
	out := make([]string, 0, len(p.cells))
	for name := range p.cells {
		out = append(out, name)
	}
	return out
}

// ExecuteTask runs one cell over a task. Cells reach organs only through
// the bridge; there is no direct host path.
func (p *Phenotype) ExecuteTask(ctx context.Context, cellName string, task Task) ([]byte, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	cell, ok := p.cells[cellName]
	p.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("phenotype: no cell named %q", cellName)
	}
	if p.telemetry == nil {
		return cell.Execute(ctx, task)
	}

	attrs := observability.CellExecution(p.borgID, cellName, string(cell.LogicType()))
	ctx, done := p.telemetry.TrackOperation(ctx, "task.execute", attrs...)
	out, err := cell.Execute(ctx, task)
	done(err)
	return out, err
}

// Close releases every binding and the sandbox. It is idempotent and
// runs on every exit path of a session.
func (p *Phenotype) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.release()
}

// release tears down whatever has been acquired so far. Used both by
// Close and by the builder when a build fails partway.
func (p *Phenotype) release() error {
	var firstErr error
	for _, cell := range p.cells {
		if err := cell.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.cells = map[string]CellInstance{}
	p.callables = map[string]*organs.BoundCallable{}
	if p.sandbox != nil {
		if err := p.sandbox.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.sandbox = nil
	}
	return firstErr
}
