package phenotype

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// SandboxConfig bounds a wasm_compute cell's execution.
type SandboxConfig struct {
	MemoryLimitBytes int64
	CPUTimeLimit     time.Duration
}

// Sandbox executes genome-supplied WASM modules deny-by-default: no
// filesystem, no network, no environment, no ambient authority. Input
// arrives on stdin, output leaves on stdout.
type Sandbox struct {
	runtime wazero.Runtime
	config  wazero.ModuleConfig
	limits  SandboxConfig
}

// NewSandbox creates a sandbox runtime with the given resource ceiling.
func NewSandbox(ctx context.Context, cfg SandboxConfig) (*Sandbox, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitBytes > 0 {
		// wazero measures memory in 64KB pages.
		pages := uint32(cfg.MemoryLimitBytes / (64 * 1024))
		if pages == 0 {
			pages = 1
		}
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(pages)
	}

	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	// No WithFSConfig, no WithSysNanotime, no WithRandSource: a cell
	// computes over its stdin and nothing else.
	modCfg := wazero.NewModuleConfig().
		WithName("borg-cell").
		WithStartFunctions("_start")

	return &Sandbox{runtime: r, config: modCfg, limits: cfg}, nil
}

// Run executes one module over the given input.
func (s *Sandbox) Run(ctx context.Context, wasmBytes, input []byte) ([]byte, error) {
	if s.limits.CPUTimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.limits.CPUTimeLimit)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	modCfg := s.config.
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	compiled, err := s.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("sandbox: compilation failed: %w", err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	mod, err := s.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("sandbox: execution timed out after %v", s.limits.CPUTimeLimit)
		}
		return nil, fmt.Errorf("sandbox: execution failed: %w", err)
	}
	defer func() { _ = mod.Close(ctx) }()

	if stderr.Len() > 0 {
		return stdout.Bytes(), fmt.Errorf("sandbox: stderr output: %s", stderr.String())
	}
	return stdout.Bytes(), nil
}

// Close shuts the runtime down, freeing compiled modules and memory.
func (s *Sandbox) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.runtime.Close(ctx)
}
