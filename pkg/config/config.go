// Package config assembles the daemon configuration from environment
// variables and optional YAML deployment profiles. Everything downstream
// receives an explicit Config value; no other package reads the
// environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds daemon configuration.
type Config struct {
	BorgID       string
	Port         string
	LogLevel     string
	DatabaseURL  string
	DNAPath      string
	RegistryURL  string
	RedisAddr    string
	OTLPEndpoint string

	// Profile names a deployment profile overlaid onto the environment
	// values; empty means environment only. KeystorePath points at the
	// signing keystore file; empty means an ephemeral in-memory seed.
	Profile      string
	ProfilesDir  string
	KeystorePath string

	// InitialFunding seeds the ledger at startup when the borg has no
	// balance yet. Canonical decimal string, empty means no seed.
	InitialFunding string

	BreakerThreshold int
	BreakerRecovery  time.Duration
	RatePerMinute    int
	RateBurst        int

	CacheStaleness time.Duration
	CallTimeout    time.Duration

	SandboxMemoryBytes int64
	SandboxCPUTime     time.Duration
}

// Load reads configuration from environment variables with defaults
// suitable for a local single-node run, then overlays the deployment
// profile named by BORG_PROFILE, if any.
func Load() (*Config, error) {
	cfg := &Config{
		BorgID:       getenv("BORG_ID", "borg-local"),
		Port:         getenv("PORT", "8080"),
		LogLevel:     getenv("LOG_LEVEL", "INFO"),
		DatabaseURL:  getenv("DATABASE_URL", "file:borglife.db?cache=shared"),
		DNAPath:      getenv("BORG_DNA_PATH", "borg_dna.yaml"),
		RegistryURL:  getenv("ORGAN_REGISTRY_URL", "http://localhost:9090"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),

		Profile:      os.Getenv("BORG_PROFILE"),
		ProfilesDir:  getenv("BORG_PROFILES_DIR", "profiles"),
		KeystorePath: os.Getenv("BORG_KEYSTORE"),

		InitialFunding: os.Getenv("BORG_INITIAL_FUNDING"),

		BreakerThreshold: getenvInt("BREAKER_THRESHOLD", 5),
		BreakerRecovery:  getenvDuration("BREAKER_RECOVERY", 300*time.Second),
		RatePerMinute:    getenvInt("RATE_PER_MINUTE", 60),
		RateBurst:        getenvInt("RATE_BURST", 10),

		CacheStaleness: getenvDuration("CACHE_STALENESS", 5*time.Minute),
		CallTimeout:    getenvDuration("CALL_TIMEOUT", 30*time.Second),

		SandboxMemoryBytes: int64(getenvInt("SANDBOX_MEMORY_BYTES", 16*1024*1024)),
		SandboxCPUTime:     getenvDuration("SANDBOX_CPU_TIME", 5*time.Second),
	}

	if cfg.Profile != "" {
		profile, err := LoadProfile(cfg.ProfilesDir, cfg.Profile)
		if err != nil {
			return nil, err
		}
		profile.Apply(cfg)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
