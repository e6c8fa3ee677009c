package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DeploymentProfile is a named YAML overlay for one environment. Profiles
// override the resilience and economics tuning of the base Config without
// touching identity or wiring fields.
type DeploymentProfile struct {
	Name string `yaml:"name" json:"name"`
	Code string `yaml:"code" json:"code"`

	Resilience ResilienceProfile `yaml:"resilience" json:"resilience"`
	Economics  EconomicsProfile  `yaml:"economics" json:"economics"`
	Sandbox    SandboxProfile    `yaml:"sandbox" json:"sandbox"`
}

// ResilienceProfile tunes breakers, limits, and fallback caching.
type ResilienceProfile struct {
	BreakerThreshold int           `yaml:"breaker_threshold" json:"breaker_threshold"`
	BreakerRecovery  time.Duration `yaml:"breaker_recovery" json:"breaker_recovery"`
	RatePerMinute    int           `yaml:"rate_per_minute" json:"rate_per_minute"`
	RateBurst        int           `yaml:"rate_burst" json:"rate_burst"`
	CacheStaleness   time.Duration `yaml:"cache_staleness" json:"cache_staleness"`
	CallTimeout      time.Duration `yaml:"call_timeout" json:"call_timeout"`
}

// EconomicsProfile tunes spend accounting.
type EconomicsProfile struct {
	Currency       string `yaml:"currency,omitempty" json:"currency,omitempty"`
	FundingAccount string `yaml:"funding_account,omitempty" json:"funding_account,omitempty"`
}

// SandboxProfile bounds wasm_compute execution.
type SandboxProfile struct {
	MemoryBytes int64         `yaml:"memory_bytes" json:"memory_bytes"`
	CPUTime     time.Duration `yaml:"cpu_time" json:"cpu_time"`
}

// LoadProfile loads a deployment profile by code. It looks for
// profile_<code>.yaml in the profiles directory.
func LoadProfile(profilesDir, code string) (*DeploymentProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile DeploymentProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}
	if profile.Code == "" {
		profile.Code = code
	}
	return &profile, nil
}

// LoadAllProfiles loads every profile_*.yaml in the profiles directory,
// keyed by code.
func LoadAllProfiles(profilesDir string) (map[string]*DeploymentProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*DeploymentProfile, len(matches))
	for _, path := range matches {
		base := filepath.Base(path)
		code := strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		p, err := LoadProfile(profilesDir, code)
		if err != nil {
			return nil, err
		}
		profiles[p.Code] = p
	}
	return profiles, nil
}

// Apply overlays the profile onto a Config. Zero-valued profile fields
// leave the base value alone.
func (p *DeploymentProfile) Apply(cfg *Config) {
	if p.Resilience.BreakerThreshold > 0 {
		cfg.BreakerThreshold = p.Resilience.BreakerThreshold
	}
	if p.Resilience.BreakerRecovery > 0 {
		cfg.BreakerRecovery = p.Resilience.BreakerRecovery
	}
	if p.Resilience.RatePerMinute > 0 {
		cfg.RatePerMinute = p.Resilience.RatePerMinute
	}
	if p.Resilience.RateBurst > 0 {
		cfg.RateBurst = p.Resilience.RateBurst
	}
	if p.Resilience.CacheStaleness > 0 {
		cfg.CacheStaleness = p.Resilience.CacheStaleness
	}
	if p.Resilience.CallTimeout > 0 {
		cfg.CallTimeout = p.Resilience.CallTimeout
	}
	if p.Sandbox.MemoryBytes > 0 {
		cfg.SandboxMemoryBytes = p.Sandbox.MemoryBytes
	}
	if p.Sandbox.CPUTime > 0 {
		cfg.SandboxCPUTime = p.Sandbox.CPUTime
	}
}
