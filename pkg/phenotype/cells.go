package phenotype

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/borglife-labs/borglife/pkg/canonical"
	"github.com/borglife-labs/borglife/pkg/genome"
	"github.com/borglife-labs/borglife/pkg/organs"
	"github.com/borglife-labs/borglife/pkg/resilience"
)

// Task is one unit of work handed to a cell.
type Task struct {
	Input  []byte
	Params map[string]string
}

// CellInstance is a live cell. Organ access happens only through the port
// the builder wired in; cells never hold a host reference.
type CellInstance interface {
	Name() string
	LogicType() genome.LogicType
	Execute(ctx context.Context, task Task) ([]byte, error)
	Close() error
}

// organPort is a cell's only path to organs. It carries the borg identity
// and the per-cell cost estimate used for pre-flight cap checks.
type organPort struct {
	borgID    string
	bridge    *organs.Bridge
	callables map[string]*organs.BoundCallable
	cache     resilience.ResultCache
	staleness time.Duration
}

func (p *organPort) invoke(ctx context.Context, organName string, cell genome.Cell, payload []byte) ([]byte, error) {
	callable, ok := p.callables[organName]
	if !ok {
		return nil, fmt.Errorf("cell %s: organ %s is not bound", cell.Name, organName)
	}
	return p.bridge.Invoke(ctx, callable, organs.InvokeRequest{
		BorgID:        p.borgID,
		Payload:       payload,
		EstimatedCost: cell.CostEstimate,
	})
}

// invokeChain resolves the call through a fallback chain over the named
// organs, in order. Used when a cell configures a secondary organ. With a
// cache armed, the chain may substitute a last-known-good result for
// idempotent capabilities, keyed by capability and canonical payload.
func (p *organPort) invokeChain(ctx context.Context, organNames []string, cell genome.Cell, payload []byte) ([]byte, error) {
	callables := make([]*organs.BoundCallable, 0, len(organNames))
	for _, name := range organNames {
		callable, ok := p.callables[name]
		if !ok {
			return nil, fmt.Errorf("cell %s: organ %s is not bound", cell.Name, name)
		}
		callables = append(callables, callable)
	}

	var opts []resilience.ChainOption
	if p.cache != nil {
		key := callables[0].Descriptor().CapabilityID + ":" + canonical.Hash(payload)
		opts = append(opts, resilience.WithCache(p.cache, key, p.staleness))
	}
	res, err := p.bridge.InvokeWithFallback(ctx, callables, organs.InvokeRequest{
		BorgID:        p.borgID,
		Payload:       payload,
		EstimatedCost: cell.CostEstimate,
	}, opts...)
	if err != nil {
		return nil, err
	}
	return res.Payload, nil
}

// newCell instantiates a cell for its logic type. The tag set is closed;
// an unknown tag is a build failure, never a silent no-op.
func newCell(spec genome.Cell, port *organPort, sandbox *Sandbox) (CellInstance, error) {
	switch spec.LogicType {
	case genome.LogicRAGAgent:
		organName := spec.Parameters["organ"]
		if organName == "" {
			return nil, &BuildError{Stage: "cells", Message: fmt.Sprintf("cell %s: rag_agent requires an %q parameter", spec.Name, "organ")}
		}
		organNames := []string{organName}
		if secondary := spec.Parameters["fallback_organ"]; secondary != "" {
			organNames = append(organNames, secondary)
		}
		return &ragAgentCell{spec: spec, port: port, organNames: organNames}, nil
	case genome.LogicDecisionMaker:
		return &decisionMakerCell{spec: spec}, nil
	case genome.LogicDataProcessor:
		return &dataProcessorCell{spec: spec}, nil
	case genome.LogicWASMCompute:
		raw := spec.Parameters["module_b64"]
		if raw == "" {
			return nil, &BuildError{Stage: "cells", Message: fmt.Sprintf("cell %s: wasm_compute requires a %q parameter", spec.Name, "module_b64")}
		}
		module, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, &BuildError{Stage: "cells", Message: fmt.Sprintf("cell %s: module is not valid base64", spec.Name), cause: err}
		}
		if sandbox == nil {
			return nil, &BuildError{Stage: "cells", Message: fmt.Sprintf("cell %s: no sandbox available", spec.Name)}
		}
		return &wasmComputeCell{spec: spec, sandbox: sandbox, module: module}, nil
	default:
		return nil, &BuildError{Stage: "cells", Message: fmt.Sprintf("cell %s: unknown logic type %q", spec.Name, spec.LogicType)}
	}
}

// ragAgentCell retrieves context from its organ and wraps the result for
// downstream generation. A configured fallback organ turns the retrieval
// into a fallback chain.
type ragAgentCell struct {
	spec       genome.Cell
	port       *organPort
	organNames []string
}

func (c *ragAgentCell) Name() string                { return c.spec.Name }
func (c *ragAgentCell) LogicType() genome.LogicType { return genome.LogicRAGAgent }
func (c *ragAgentCell) Close() error                { return nil }

func (c *ragAgentCell) Execute(ctx context.Context, task Task) ([]byte, error) {
	var retrieved []byte
	var err error
	if len(c.organNames) > 1 {
		retrieved, err = c.port.invokeChain(ctx, c.organNames, c.spec, task.Input)
	} else {
		retrieved, err = c.port.invoke(ctx, c.organNames[0], c.spec, task.Input)
	}
	if err != nil {
		return nil, err
	}
	out := struct {
		Query     json.RawMessage `json:"query"`
		Retrieved json.RawMessage `json:"retrieved"`
	}{Query: normalizeJSON(task.Input), Retrieved: normalizeJSON(retrieved)}
	return json.Marshal(out)
}

// decisionMakerCell routes a task by inspecting one field of its JSON
// input. The routing table lives in the cell parameters as
// "route.<value>" -> target.
type decisionMakerCell struct {
	spec genome.Cell
}

func (c *decisionMakerCell) Name() string                { return c.spec.Name }
func (c *decisionMakerCell) LogicType() genome.LogicType { return genome.LogicDecisionMaker }
func (c *decisionMakerCell) Close() error                { return nil }

func (c *decisionMakerCell) Execute(_ context.Context, task Task) ([]byte, error) {
	field := c.spec.Parameters["field"]
	if field == "" {
		field = "intent"
	}

	var doc map[string]any
	if err := json.Unmarshal(task.Input, &doc); err != nil {
		return nil, fmt.Errorf("cell %s: input is not a JSON object: %w", c.spec.Name, err)
	}
	value, _ := doc[field].(string)

	target, ok := c.spec.Parameters["route."+value]
	if !ok {
		target, ok = c.spec.Parameters["route.default"]
		if !ok {
			return nil, fmt.Errorf("cell %s: no route for %s=%q and no default", c.spec.Name, field, value)
		}
	}
	return json.Marshal(struct {
		Decision string `json:"decision"`
		Matched  string `json:"matched"`
	}{Decision: target, Matched: value})
}

// dataProcessorCell applies a deterministic local transform.
type dataProcessorCell struct {
	spec genome.Cell
}

func (c *dataProcessorCell) Name() string                { return c.spec.Name }
func (c *dataProcessorCell) LogicType() genome.LogicType { return genome.LogicDataProcessor }
func (c *dataProcessorCell) Close() error                { return nil }

func (c *dataProcessorCell) Execute(_ context.Context, task Task) ([]byte, error) {
	mode := c.spec.Parameters["mode"]
	switch mode {
	case "", "passthrough":
		return task.Input, nil
	case "uppercase":
		return bytes.ToUpper(task.Input), nil
	case "lowercase":
		return bytes.ToLower(task.Input), nil
	case "trim":
		return bytes.TrimSpace(task.Input), nil
	case "json_compact":
		var buf bytes.Buffer
		if err := json.Compact(&buf, task.Input); err != nil {
			return nil, fmt.Errorf("cell %s: compact: %w", c.spec.Name, err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("cell %s: unknown processing mode %q", c.spec.Name, mode)
	}
}

// wasmComputeCell runs its genome-supplied module in the shared sandbox.
type wasmComputeCell struct {
	spec    genome.Cell
	sandbox *Sandbox
	module  []byte
}

func (c *wasmComputeCell) Name() string                { return c.spec.Name }
func (c *wasmComputeCell) LogicType() genome.LogicType { return genome.LogicWASMCompute }
func (c *wasmComputeCell) Close() error                { return nil }

func (c *wasmComputeCell) Execute(ctx context.Context, task Task) ([]byte, error) {
	return c.sandbox.Run(ctx, c.module, task.Input)
}

// normalizeJSON passes valid JSON through untouched and quotes anything
// else as a JSON string.
func normalizeJSON(raw []byte) json.RawMessage {
	if json.Valid(raw) && len(bytes.TrimSpace(raw)) > 0 {
		return raw
	}
	quoted, err := json.Marshal(strings.ToValidUTF8(string(raw), "�"))
	if err != nil {
		return json.RawMessage(`""`)
	}
	return quoted
}
