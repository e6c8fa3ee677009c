package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/borglife-labs/borglife/pkg/chain"
	"github.com/borglife-labs/borglife/pkg/config"
	"github.com/borglife-labs/borglife/pkg/credentials"
	"github.com/borglife-labs/borglife/pkg/genome"
	"github.com/borglife-labs/borglife/pkg/observability"
	"github.com/borglife-labs/borglife/pkg/organs"
	"github.com/borglife-labs/borglife/pkg/phenotype"
	"github.com/borglife-labs/borglife/pkg/resilience"
	"github.com/borglife-labs/borglife/pkg/wealth"

	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver (lite mode)
)

//nolint:gocognit,gocyclo
func runServer() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration load failed", "error", err)
		return 1
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry (disabled unless an OTLP endpoint is configured)
	obsCfg := observability.DefaultConfig()
	if cfg.OTLPEndpoint == "" {
		obsCfg.Enabled = false
	} else {
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		obsCfg.Insecure = true
	}
	provider, err := observability.New(ctx, obsCfg)
	if err != nil {
		logger.Error("telemetry init failed", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	// Ledger store: Postgres when configured, SQLite lite mode otherwise
	db, err := openDatabase(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("database open failed", "error", err)
		return 1
	}
	defer db.Close()

	sink := wealth.NewSQLSink(db)
	if err := sink.Init(ctx); err != nil {
		logger.Error("ledger store init failed", "error", err)
		return 1
	}
	ledger := wealth.NewLedger(sink, logger)
	objectives := observability.NewObjectiveTracker()
	timeline := observability.NewTimeline()

	// Recover the durable entry log before anything reads a balance, so a
	// restart never mistakes a funded borg for a fresh one.
	history, err := sink.Load(ctx, cfg.BorgID, genome.Currency)
	if err != nil {
		logger.Error("ledger recovery failed", "error", err)
		return 1
	}
	ledger.Restore(history)
	if len(history) > 0 {
		logger.Info("ledger recovered",
			"entries", len(history),
			"balance", ledger.Balance(cfg.BorgID, genome.Currency).String())
	}

	if cfg.InitialFunding != "" {
		seed, err := wealth.ParseAmount(cfg.InitialFunding, genome.Currency)
		if err != nil {
			logger.Error("invalid initial funding", "value", cfg.InitialFunding, "error", err)
			return 1
		}
		if ledger.Balance(cfg.BorgID, genome.Currency).IsZero() && seed.IsPositive() {
			entry, err := ledger.Fund(ctx, cfg.BorgID, seed, "startup funding")
			if err != nil {
				logger.Error("startup funding failed", "error", err)
				return 1
			}
			_ = timeline.Record(observability.TimelineEntry{
				EntryType: observability.EntryTypeLedger,
				BorgID:    cfg.BorgID,
				Summary:   "ledger seeded",
				Details:   map[string]any{"amount": seed.String(), "entry_id": entry.ID},
			})
		}
	}

	// Resilience plumbing shared by every organ call
	limiter := resilience.NewLimiter(resilience.LimiterSettings{
		PerMinute: cfg.RatePerMinute,
		Burst:     cfg.RateBurst,
	})
	breakers := resilience.NewRegistry(resilience.BreakerSettings{
		Threshold:       cfg.BreakerThreshold,
		RecoveryTimeout: cfg.BreakerRecovery,
	})
	host := organs.NewHTTPHost(cfg.RegistryURL, cfg.CallTimeout)
	bridge := organs.NewBridge(host, limiter, breakers, ledger,
		organs.WithBridgeLogger(logger),
		organs.WithBridgeObjectives(objectives),
		organs.WithBridgeTelemetry(provider),
		organs.WithBridgeTimeline(timeline))

	// Genome ingest
	g, raw, err := loadGenome(cfg, logger)
	if err != nil {
		logger.Error("genome load failed", "path", cfg.DNAPath, "error", err)
		return 1
	}
	hash, err := genome.ComputeHash(g)
	if err != nil {
		logger.Error("genome hashing failed", "error", err)
		return 1
	}
	_ = timeline.Record(observability.TimelineEntry{
		EntryType:    observability.EntryTypeGenome,
		BorgID:       cfg.BorgID,
		ServiceIndex: g.Header.ServiceIndex,
		Summary:      "genome parsed",
		Details:      map[string]any{"hash": hash, "bytes": len(raw)},
	})

	for _, organ := range g.Organs {
		objectives.SetObjective(&observability.Objective{
			ObjectiveID: "obj-" + organ.Name,
			Organ:       organ.Name,
			LatencyP99:  cfg.CallTimeout,
			SuccessRate: 0.99,
			WindowHours: 24,
		})
	}

	// Anchor the genome hash before any execution. A keystore file keeps
	// the signing identity stable across restarts.
	var creds credentials.Provider
	if cfg.KeystorePath != "" {
		creds, err = credentials.NewFileProvider(cfg.KeystorePath)
	} else {
		creds, err = credentials.NewMemoryProvider()
	}
	if err != nil {
		logger.Error("credential provider init failed", "error", err)
		return 1
	}
	signing := credentials.NewRotatingProvider(creds, credentials.RotationPolicy{
		MaxAge:     24 * time.Hour,
		AutoRotate: true,
	})
	jam := chain.NewMockJAM(signing, cfg.BorgID+"-anchor", chain.WithMockJAMLogger(logger))
	receipt, err := jam.SubmitRecord(ctx, chain.Record{
		Kind:        chain.RecordGenomeHash,
		BorgAddress: cfg.BorgID,
		GenomeHash:  hash,
	})
	if err != nil {
		logger.Error("genome anchor failed", "error", err)
		return 1
	}
	_ = timeline.Record(observability.TimelineEntry{
		EntryType:    observability.EntryTypeAnchor,
		BorgID:       cfg.BorgID,
		ServiceIndex: g.Header.ServiceIndex,
		Summary:      "genome hash anchored",
		Details:      map[string]any{"hash": hash, "epoch": receipt.Epoch},
	})

	// Last-known-good result cache for idempotent organ calls. Redis when
	// configured, in-process otherwise.
	var cache resilience.ResultCache
	if cfg.RedisAddr != "" {
		cache = resilience.NewRedisCache(
			redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}),
			"borgd:results", cfg.CacheStaleness)
		logger.Info("result cache backed by redis", "addr", cfg.RedisAddr)
	} else {
		cache = resilience.NewMemoryCache()
	}

	// Phenotype build
	builder := phenotype.NewBuilder(host, bridge, ledger, phenotype.Config{
		BorgID: cfg.BorgID,
		Sandbox: phenotype.SandboxConfig{
			MemoryLimitBytes: cfg.SandboxMemoryBytes,
			CPUTimeLimit:     cfg.SandboxCPUTime,
		},
	},
		phenotype.WithBuilderLogger(logger),
		phenotype.WithBuilderCache(cache, cfg.CacheStaleness),
		phenotype.WithBuilderTelemetry(provider))

	p, err := builder.Build(ctx, g, hash)
	if err != nil {
		logger.Error("phenotype build failed", "error", err)
		return 1
	}
	defer p.Close()
	_ = timeline.Record(observability.TimelineEntry{
		EntryType:    observability.EntryTypeBuild,
		BorgID:       cfg.BorgID,
		ServiceIndex: p.ServiceIndex(),
		Summary:      "phenotype built",
		Details: map[string]any{
			"cells":      p.CellNames(),
			"cost_bound": p.TotalCostBound().String(),
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newMux(cfg, ledger, bridge, p, objectives, timeline),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("borgd ready",
			"borg_id", cfg.BorgID,
			"service", p.ServiceIndex(),
			"addr", srv.Addr,
			"cost_bound", p.TotalCostBound().String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	_ = timeline.Record(observability.TimelineEntry{
		EntryType: observability.EntryTypeShutdown,
		BorgID:    cfg.BorgID,
		Summary:   "daemon stopped",
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return 0
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openDatabase(ctx context.Context, url string, logger *slog.Logger) (*sql.DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		driver = "postgres"
	}
	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database connected", "driver", driver)
	return db, nil
}

// loadGenome reads the configured DNA file, falling back to a minimal
// genome when the file does not exist.
func loadGenome(cfg *config.Config, logger *slog.Logger) (*genome.Genome, []byte, error) {
	raw, err := os.ReadFile(cfg.DNAPath)
	if os.IsNotExist(err) {
		logger.Warn("dna file missing, using minimal genome", "path", cfg.DNAPath)
		g := genome.MinimalGenome(cfg.BorgID, strings.Repeat("0", 64))
		return g, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	g, err := genome.Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	return g, raw, nil
}

func newMux(cfg *config.Config, ledger *wealth.Ledger, bridge *organs.Bridge, p *phenotype.Phenotype, objectives *observability.ObjectiveTracker, timeline *observability.Timeline) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"borg_id": cfg.BorgID,
			"service": p.ServiceIndex(),
			"organs":  bridge.Health(r.Context()),
		})
	})

	mux.HandleFunc("GET /balance", func(w http.ResponseWriter, r *http.Request) {
		balance := ledger.Balance(cfg.BorgID, genome.Currency)
		writeJSON(w, http.StatusOK, map[string]any{
			"borg_id":  cfg.BorgID,
			"currency": genome.Currency,
			"balance":  balance.String(),
		})
	})

	mux.HandleFunc("GET /objectives", func(w http.ResponseWriter, r *http.Request) {
		statuses := make([]*observability.ObjectiveStatus, 0)
		for _, organ := range objectives.Organs() {
			if st, err := objectives.Status(organ); err == nil {
				statuses = append(statuses, st)
			}
		}
		writeJSON(w, http.StatusOK, statuses)
	})

	mux.HandleFunc("GET /timeline", func(w http.ResponseWriter, r *http.Request) {
		q := observability.TimelineQuery{BorgID: r.URL.Query().Get("borg_id")}
		if q.BorgID == "" {
			q.BorgID = cfg.BorgID
		}
		writeJSON(w, http.StatusOK, timeline.Query(q))
	})

	mux.HandleFunc("POST /tasks", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Cell   string            `json:"cell"`
			Input  string            `json:"input"`
			Params map[string]string `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		out, err := p.ExecuteTask(r.Context(), req.Cell, phenotype.Task{
			Input:  []byte(req.Input),
			Params: req.Params,
		})
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
			return
		}
		_ = timeline.Record(observability.TimelineEntry{
			EntryType: observability.EntryTypeTask,
			BorgID:    cfg.BorgID,
			Summary:   "task executed",
			Details:   map[string]any{"cell": req.Cell},
		})
		writeJSON(w, http.StatusOK, map[string]any{"cell": req.Cell, "output": string(out)})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "write response: %v\n", err)
	}
}
