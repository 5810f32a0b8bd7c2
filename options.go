package strata

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/strata-ai/strata/config"
	"github.com/strata-ai/strata/embedding"
)

// Option configures an Engine.
type Option func(*engineConfig)

// engineConfig holds configuration for an Engine instance.
type engineConfig struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	meter      metric.MeterProvider
	embedder   embedding.Provider
}

// WithConfig sets the strata.yaml path. The file names the tier backends
// and the background engine tunables.
func WithConfig(path string) Option {
	return func(c *engineConfig) {
		c.configPath = path
	}
}

// WithConfigValues supplies an already-parsed configuration, bypassing the
// file load. It takes precedence over WithConfig.
func WithConfigValues(cfg *config.Config) Option {
	return func(c *engineConfig) {
		c.cfg = cfg
	}
}

// WithLogger sets a custom logger. If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithMeterProvider sets an OpenTelemetry meter provider for operation
// counters and latency histograms. Metrics are disabled when absent.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *engineConfig) {
		c.meter = provider
	}
}

// WithEmbedder overrides the configured embedding provider, e.g. to plug in
// a model client the config file cannot describe.
func WithEmbedder(provider embedding.Provider) Option {
	return func(c *engineConfig) {
		c.embedder = provider
	}
}
