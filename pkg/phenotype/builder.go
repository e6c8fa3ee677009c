package phenotype

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/borglife-labs/borglife/pkg/genome"
	"github.com/borglife-labs/borglife/pkg/observability"
	"github.com/borglife-labs/borglife/pkg/organs"
	"github.com/borglife-labs/borglife/pkg/resilience"
	"github.com/borglife-labs/borglife/pkg/wealth"
)

// Config carries everything a build needs explicitly. There is no ambient
// environment or keystore fallback; if it is not in here, the builder
// does not know it.
type Config struct {
	BorgID  string
	Sandbox SandboxConfig
}

// Builder synthesizes phenotypes from validated genomes.
type Builder struct {
	host      organs.Host
	bridge    *organs.Bridge
	ledger    *wealth.Ledger
	config    Config
	logger    *slog.Logger
	cache     resilience.ResultCache
	staleness time.Duration
	telemetry *observability.Provider
}

// BuilderOption customizes builder construction.
type BuilderOption func(*Builder)

// WithBuilderLogger attaches a logger.
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = logger }
}

// WithBuilderCache arms the fallback-chain cache rung for every phenotype
// this builder produces. staleness bounds how old a substituted result
// may be.
func WithBuilderCache(cache resilience.ResultCache, staleness time.Duration) BuilderOption {
	return func(b *Builder) {
		b.cache = cache
		b.staleness = staleness
	}
}

// WithBuilderTelemetry opens a span and RED accounting around every task
// execution.
func WithBuilderTelemetry(provider *observability.Provider) BuilderOption {
	return func(b *Builder) { b.telemetry = provider }
}

// NewBuilder wires a builder with its collaborators.
func NewBuilder(host organs.Host, bridge *organs.Bridge, ledger *wealth.Ledger, cfg Config, opts ...BuilderOption) *Builder {
	b := &Builder{
		host:   host,
		bridge: bridge,
		ledger: ledger,
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build synthesizes a phenotype. The order is load-bearing: integrity is
// verified before anything is acquired, organs bind before cells so a
// cell never observes a half-bound organ map, and any failure releases
// everything acquired so far and returns no phenotype.
func (b *Builder) Build(ctx context.Context, g *genome.Genome, expectedHash string) (*Phenotype, error) {
	if err := genome.ValidateIntegrity(g, expectedHash); err != nil {
		return nil, err
	}

	bound, err := b.computeCostBound(g)
	if err != nil {
		return nil, &BuildError{Stage: "admission", Message: "cost bound overflow", cause: err}
	}
	if balance := b.ledger.Balance(b.config.BorgID, genome.Currency); !bound.IsZero() {
		if cmp, err := bound.Cmp(balance); err == nil && cmp > 0 {
			return nil, &BuildError{Stage: "admission",
				Message: fmt.Sprintf("cost bound %s exceeds balance %s", bound, balance)}
		}
	}

	descriptors, err := b.discoverDescriptors(ctx, g)
	if err != nil {
		return nil, err
	}

	p := &Phenotype{
		borgID:         b.config.BorgID,
		serviceIndex:   g.Header.ServiceIndex,
		genome:         g,
		genomeHash:     expectedHash,
		bridge:         b.bridge,
		cells:          make(map[string]CellInstance, len(g.Cells)),
		callables:      make(map[string]*organs.BoundCallable, len(g.Organs)),
		totalCostBound: bound,
		telemetry:      b.telemetry,
	}

	for _, organ := range g.Organs {
		desc, ok := descriptors[organ.CapabilityID]
		if !ok {
			p.release()
			return nil, &BuildError{Stage: "organs",
				Message: fmt.Sprintf("organ %s: host serves no capability %s", organ.Name, organ.CapabilityID)}
		}
		callable, err := b.bridge.RegisterOrgan(organ, desc)
		if err != nil {
			p.release()
			return nil, &BuildError{Stage: "organs", Message: "bind failed", cause: err}
		}
		p.callables[organ.Name] = callable
	}

	if needsSandbox(g) {
		sandbox, err := NewSandbox(ctx, b.config.Sandbox)
		if err != nil {
			p.release()
			return nil, &BuildError{Stage: "cells", Message: "sandbox init failed", cause: err}
		}
		p.sandbox = sandbox
	}

	port := &organPort{
		borgID:    b.config.BorgID,
		bridge:    b.bridge,
		callables: p.callables,
		cache:     b.cache,
		staleness: b.staleness,
	}
	for _, spec := range g.Cells {
		cell, err := newCell(spec, port, p.sandbox)
		if err != nil {
			p.release()
			return nil, err
		}
		p.cells[spec.Name] = cell
	}

	b.logger.Info("phenotype built",
		"borg_id", b.config.BorgID,
		"service_index", p.serviceIndex,
		"cells", len(p.cells),
		"organs", len(p.callables),
		"cost_bound", bound.String())
	return p, nil
}

// computeCostBound sums every cell cost estimate and organ price cap with
// exact arithmetic.
func (b *Builder) computeCostBound(g *genome.Genome) (wealth.Amount, error) {
	bound := wealth.Zero(genome.Currency)
	var err error
	for _, c := range g.Cells {
		if bound, err = bound.Add(c.CostEstimate); err != nil {
			return wealth.Amount{}, err
		}
	}
	for _, o := range g.Organs {
		if bound, err = bound.Add(o.PriceCap); err != nil {
			return wealth.Amount{}, err
		}
	}
	return bound, nil
}

func (b *Builder) discoverDescriptors(ctx context.Context, g *genome.Genome) (map[string]organs.Descriptor, error) {
	if len(g.Organs) == 0 {
		return nil, nil
	}
	listed, err := b.host.ListCapabilities(ctx)
	if err != nil {
		return nil, &BuildError{Stage: "organs", Message: "capability discovery failed", cause: err}
	}
	out := make(map[string]organs.Descriptor, len(listed))
	for _, d := range listed {
		out[d.CapabilityID] = d
	}
	return out, nil
}

func needsSandbox(g *genome.Genome) bool {
	for _, c := range g.Cells {
		if c.LogicType == genome.LogicWASMCompute {
			return true
		}
	}
	return false
}
