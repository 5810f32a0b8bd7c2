package strata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/strata-ai/strata/cold"
	"github.com/strata-ai/strata/config"
	"github.com/strata-ai/strata/consolidate"
	"github.com/strata-ai/strata/embedding"
	"github.com/strata-ai/strata/hot"
	"github.com/strata-ai/strata/migration"
	"github.com/strata-ai/strata/record"
	"github.com/strata-ai/strata/scheduler"
	"github.com/strata-ai/strata/storage"
	"github.com/strata-ai/strata/warm"
)

// Engine is the composed memory-storage engine: three tier stores, a
// storage manager, and the two background engines on a shared schedule.
type Engine struct {
	manager       *storage.Manager
	migration     *migration.Engine
	consolidation *consolidate.Engine
	runner        *scheduler.Runner
	logger        *slog.Logger
}

// New builds an Engine from the configuration. The background engines are
// constructed but idle until Start is called.
//
// Example:
//
//	engine, err := strata.New(strata.WithConfig("strata.yaml"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Shutdown(context.Background())
func New(opts ...Option) (*Engine, error) {
	ec := &engineConfig{}
	for _, opt := range opts {
		opt(ec)
	}
	if ec.logger == nil {
		ec.logger = slog.Default()
	}

	cfg := ec.cfg
	if cfg == nil {
		if ec.configPath == "" {
			return nil, errors.New("strata: a configuration is required (WithConfig or WithConfigValues)")
		}
		loaded, err := config.Load(ec.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hotStore, err := hot.NewStore(hot.Options{URL: cfg.Hot.URL, TTL: cfg.Hot.GetTTL()})
	if err != nil {
		return nil, fmt.Errorf("strata: hot tier: %w", err)
	}
	warmStore, err := warm.NewStore(warm.Options{Path: cfg.Warm.Path})
	if err != nil {
		return nil, fmt.Errorf("strata: warm tier: %w", err)
	}
	coldStore, err := cold.NewStore(cold.Options{
		Dir:        cfg.Cold.Dir,
		Expiry:     cfg.Cold.GetExpiry(),
		BatchSize:  cfg.Cold.BatchSize,
		BatchDelay: cfg.Cold.GetBatchDelay(),
	})
	if err != nil {
		return nil, fmt.Errorf("strata: cold tier: %w", err)
	}

	embedder := ec.embedder
	if embedder == nil {
		embedder = buildEmbedder(cfg.Embedding)
	}

	manager, err := storage.NewManager(storage.Options{
		Hot:           hotStore,
		Warm:          warmStore,
		Cold:          coldStore,
		Embedder:      embedder,
		Logger:        ec.logger,
		MeterProvider: ec.meter,
	})
	if err != nil {
		return nil, err
	}

	migrator, err := migration.NewEngine(migration.Options{
		Scanner: warmStore,
		Mover:   manager,
		Thresholds: migration.Thresholds{
			HotToWarmAge:  cfg.Migration.GetHotToWarmAge(),
			WarmToColdAge: cfg.Migration.GetWarmToColdAge(),
			TransientIdle: cfg.Migration.GetTransientIdle(),
			BurstCount:    cfg.Migration.BurstCount,
			BurstWindow:   cfg.Migration.GetBurstWindow(),
		},
		BatchSize:   cfg.Migration.BatchSize,
		BatchDelay:  cfg.Migration.GetBatchDelay(),
		Concurrency: cfg.Migration.Concurrency,
		Logger:      ec.logger,
	})
	if err != nil {
		return nil, err
	}

	consolidator, err := consolidate.NewEngine(consolidate.Options{
		Scanner:  warmStore,
		Storage:  manager,
		Policies: consolidationPolicies(cfg.Consolidation),
		Logger:   ec.logger,
	})
	if err != nil {
		return nil, err
	}

	runner, err := scheduler.NewRunner(scheduler.Options{
		Logger: ec.logger,
		Jobs: []scheduler.Job{
			{
				Name:     "migration",
				Interval: cfg.Migration.GetInterval(),
				Run: func(ctx context.Context) error {
					_, err := migrator.RunNow(ctx)
					if errors.Is(err, migration.ErrAlreadyRunning) {
						return nil
					}
					return err
				},
			},
			{
				Name:     "consolidation",
				Interval: cfg.Consolidation.GetInterval(),
				Run: func(ctx context.Context) error {
					_, err := consolidator.RunNow(ctx)
					if errors.Is(err, consolidate.ErrAlreadyRunning) {
						return nil
					}
					return err
				},
			},
			{
				Name:     "cold-cleanup",
				Interval: 24 * time.Hour,
				Run: func(ctx context.Context) error {
					_, err := coldStore.Cleanup(ctx)
					return err
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		manager:       manager,
		migration:     migrator,
		consolidation: consolidator,
		runner:        runner,
		logger:        ec.logger,
	}, nil
}

func buildEmbedder(cfg config.EmbeddingConfig) embedding.Provider {
	if cfg.Provider == "http" {
		return embedding.NewHTTPProvider(embedding.HTTPOptions{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Dims:    cfg.Dims,
		})
	}
	return embedding.NewSimulatedProvider(cfg.Dims)
}

func consolidationPolicies(cfg config.ConsolidationConfig) map[record.MemoryType]consolidate.TypePolicy {
	if len(cfg.Types) == 0 {
		return nil
	}
	policies := make(map[record.MemoryType]consolidate.TypePolicy, len(cfg.Types))
	for name, policy := range cfg.Types {
		policies[record.MemoryType(name)] = consolidate.TypePolicy{
			MinAge:              policy.GetMinAge(),
			SimilarityThreshold: policy.SimilarityThreshold,
		}
	}
	return policies
}

// Start launches the background schedules. Request-driven operations work
// whether or not the schedules run.
func (e *Engine) Start() error {
	return e.runner.Start()
}

// Shutdown stops the schedules, waits for in-flight background work within
// the scheduler's bound, and closes the tier backends.
func (e *Engine) Shutdown(ctx context.Context) error {
	stopErr := e.runner.Stop()

	done := make(chan error, 1)
	go func() { done <- e.manager.Close() }()
	select {
	case closeErr := <-done:
		return errors.Join(stopErr, closeErr)
	case <-ctx.Done():
		return errors.Join(stopErr, ctx.Err())
	}
}

// Create stores a new record and returns its id.
func (e *Engine) Create(ctx context.Context, input record.CreateInput) (string, error) {
	return e.manager.Create(ctx, input)
}

// Retrieve returns a record by id, falling through the tiers.
func (e *Engine) Retrieve(ctx context.Context, id string) (*record.Record, error) {
	return e.manager.Retrieve(ctx, id)
}

// Update applies a partial patch to a record.
func (e *Engine) Update(ctx context.Context, id string, patch record.UpdatePatch) error {
	return e.manager.Update(ctx, id, patch)
}

// Delete removes a record from every tier it occupies.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.manager.Delete(ctx, id)
}

// Search runs a structured, paginated search.
func (e *Engine) Search(ctx context.Context, filters record.SearchFilters, opts record.SearchOptions) (record.SearchResult, error) {
	return e.manager.Search(ctx, filters, opts)
}

// VectorSearch runs a similarity search across the hot and warm tiers.
func (e *Engine) VectorSearch(ctx context.Context, query []float32, cfg record.VectorSearchConfig, types []record.MemoryType) ([]record.VectorMatch, error) {
	return e.manager.VectorSearch(ctx, query, cfg, types)
}

// MoveTier moves a record to the target tier on demand.
func (e *Engine) MoveTier(ctx context.Context, id string, target record.Tier) error {
	return e.manager.MoveTier(ctx, id, target)
}

// RunMigration triggers one migration sweep outside the schedule.
func (e *Engine) RunMigration(ctx context.Context) (migration.Report, error) {
	return e.migration.RunNow(ctx)
}

// RunConsolidation triggers one consolidation pass outside the schedule.
func (e *Engine) RunConsolidation(ctx context.Context) (consolidate.Report, error) {
	return e.consolidation.RunNow(ctx)
}

// GetStorageStats aggregates per-tier statistics.
func (e *Engine) GetStorageStats(ctx context.Context) (record.StorageStats, error) {
	return e.manager.GetStorageStats(ctx)
}

// HealthCheck probes every tier and combines the results.
func (e *Engine) HealthCheck(ctx context.Context) record.HealthStatus {
	return e.manager.HealthCheck(ctx)
}
