// Package config provides loading and parsing of strata.yaml configuration
// files. The configuration covers the three tier backends, the embedding
// provider, and the background engine schedules.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a strata.yaml configuration file.
type Config struct {
	Hot       HotConfig       `yaml:"hot"`
	Warm      WarmConfig      `yaml:"warm"`
	Cold      ColdConfig      `yaml:"cold"`
	Embedding EmbeddingConfig `yaml:"embedding,omitempty"`
	Migration MigrationConfig `yaml:"migration,omitempty"`

	Consolidation ConsolidationConfig `yaml:"consolidation,omitempty"`
}

// HotConfig configures the Redis cache tier.
type HotConfig struct {
	// URL is the Redis connection string (e.g. "redis://localhost:6379").
	URL string `yaml:"url"`

	// TTL bounds cache entry lifetime. Format: Go duration string.
	// Default: 24h.
	TTL string `yaml:"ttl,omitempty"`
}

// GetTTL parses the TTL or returns the default.
func (h *HotConfig) GetTTL() time.Duration {
	return parseDuration(h.TTL, 24*time.Hour)
}

// WarmConfig configures the SQLite authoritative tier.
type WarmConfig struct {
	// Path is the database file location.
	Path string `yaml:"path"`
}

// ColdConfig configures the filesystem archive tier.
type ColdConfig struct {
	// Dir is the archive root directory.
	Dir string `yaml:"dir"`

	// Expiry is the hard retention window. Default: 8760h (365 days).
	Expiry string `yaml:"expiry,omitempty"`

	// BatchSize and BatchDelay pace bulk archival.
	BatchSize  int    `yaml:"batch_size,omitempty"`
	BatchDelay string `yaml:"batch_delay,omitempty"`
}

// GetExpiry parses the retention window or returns the default.
func (c *ColdConfig) GetExpiry() time.Duration {
	return parseDuration(c.Expiry, 365*24*time.Hour)
}

// GetBatchDelay parses the bulk-archive pause or returns the default.
func (c *ColdConfig) GetBatchDelay() time.Duration {
	return parseDuration(c.BatchDelay, 100*time.Millisecond)
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "http" or "simulated". Default: "simulated".
	Provider string `yaml:"provider,omitempty"`

	// BaseURL, APIKey, and Model configure the http provider.
	BaseURL string `yaml:"base_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
	Model   string `yaml:"model,omitempty"`

	// Dims is the vector dimension. Default: 1536 for http, 128 for
	// simulated.
	Dims int `yaml:"dims,omitempty"`
}

// MigrationConfig tunes the tier migration engine.
type MigrationConfig struct {
	// Interval is the sweep schedule. Default: 1h.
	Interval string `yaml:"interval,omitempty"`

	// HotToWarmAge, WarmToColdAge, and TransientIdle are the demotion
	// thresholds. Defaults: 24h, 720h, 24h.
	HotToWarmAge  string `yaml:"hot_to_warm_age,omitempty"`
	WarmToColdAge string `yaml:"warm_to_cold_age,omitempty"`
	TransientIdle string `yaml:"transient_idle,omitempty"`

	// BurstCount and BurstWindow control cold promotion.
	BurstCount  int64  `yaml:"burst_count,omitempty"`
	BurstWindow string `yaml:"burst_window,omitempty"`

	// BatchSize, BatchDelay, and Concurrency pace sweep execution.
	BatchSize   int    `yaml:"batch_size,omitempty"`
	BatchDelay  string `yaml:"batch_delay,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
}

// GetInterval parses the sweep interval or returns the default.
func (m *MigrationConfig) GetInterval() time.Duration {
	return parseDuration(m.Interval, time.Hour)
}

// GetHotToWarmAge parses the hot demotion age or returns the default.
func (m *MigrationConfig) GetHotToWarmAge() time.Duration {
	return parseDuration(m.HotToWarmAge, 24*time.Hour)
}

// GetWarmToColdAge parses the archival age or returns the default.
func (m *MigrationConfig) GetWarmToColdAge() time.Duration {
	return parseDuration(m.WarmToColdAge, 30*24*time.Hour)
}

// GetTransientIdle parses the transient idle window or returns the default.
func (m *MigrationConfig) GetTransientIdle() time.Duration {
	return parseDuration(m.TransientIdle, 24*time.Hour)
}

// GetBurstWindow parses the promotion recency window or returns the
// default.
func (m *MigrationConfig) GetBurstWindow() time.Duration {
	return parseDuration(m.BurstWindow, time.Hour)
}

// GetBatchDelay parses the inter-batch pause or returns the default.
func (m *MigrationConfig) GetBatchDelay() time.Duration {
	return parseDuration(m.BatchDelay, 200*time.Millisecond)
}

// ConsolidationConfig tunes the consolidation engine.
type ConsolidationConfig struct {
	// Interval is the run schedule. Default: 6h.
	Interval string `yaml:"interval,omitempty"`

	// Types overrides the per-type policies. A type absent from a
	// non-empty map is skipped.
	Types map[string]TypePolicyConfig `yaml:"types,omitempty"`
}

// GetInterval parses the run interval or returns the default.
func (c *ConsolidationConfig) GetInterval() time.Duration {
	return parseDuration(c.Interval, 6*time.Hour)
}

// TypePolicyConfig is one memory type's consolidation policy.
type TypePolicyConfig struct {
	// MinAge excludes younger records. Format: Go duration string.
	MinAge string `yaml:"min_age"`

	// SimilarityThreshold is the grouping cutoff, in (0, 1].
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// GetMinAge parses the minimum age or returns the default.
func (p *TypePolicyConfig) GetMinAge() time.Duration {
	return parseDuration(p.MinAge, 24*time.Hour)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Load reads and parses a strata.yaml file from the given path. If the path
// is a directory, it looks for strata.yaml or strata.yml in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		for _, name := range []string{"strata.yaml", "strata.yml"} {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == path {
			return nil, fmt.Errorf("config: no strata.yaml or strata.yml found in %s", path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations missing a tier backend or carrying
// out-of-range tunables.
func (c *Config) Validate() error {
	if c.Hot.URL == "" {
		return fmt.Errorf("config: hot.url is required")
	}
	if c.Warm.Path == "" {
		return fmt.Errorf("config: warm.path is required")
	}
	if c.Cold.Dir == "" {
		return fmt.Errorf("config: cold.dir is required")
	}
	switch c.Embedding.Provider {
	case "", "simulated":
	case "http":
		if c.Embedding.BaseURL == "" {
			return fmt.Errorf("config: embedding.base_url is required for the http provider")
		}
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	for name, policy := range c.Consolidation.Types {
		if policy.SimilarityThreshold <= 0 || policy.SimilarityThreshold > 1 {
			return fmt.Errorf("config: consolidation type %s: similarity_threshold must be in (0, 1]", name)
		}
	}
	return nil
}
