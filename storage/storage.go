package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/strata-ai/strata/cold"
	"github.com/strata-ai/strata/embedding"
	"github.com/strata-ai/strata/record"
	"github.com/strata-ai/strata/warm"
)

// HotTier is the cache tier contract the manager depends on.
type HotTier interface {
	Store(ctx context.Context, rec *record.Record) error
	Retrieve(ctx context.Context, id string) (*record.Record, error)
	Update(ctx context.Context, rec *record.Record) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, filters record.SearchFilters, limit int) ([]*record.Record, int, error)
	VectorSearch(ctx context.Context, query []float32, types []record.MemoryType, threshold float64, maxResults int) ([]record.VectorMatch, error)
	Stats(ctx context.Context) (record.TierStats, error)
	HealthCheck(ctx context.Context) record.HealthStatus
}

// WarmTier is the authoritative tier contract the manager depends on.
type WarmTier interface {
	Create(ctx context.Context, rec *record.Record) error
	Retrieve(ctx context.Context, id string) (*record.Record, error)
	Get(ctx context.Context, id string) (*record.Record, error)
	Touch(ctx context.Context, id string) error
	Update(ctx context.Context, rec *record.Record) error
	Delete(ctx context.Context, id string) error
	SetTier(ctx context.Context, id string, tier record.Tier, archiveKey string) error
	List(ctx context.Context, opts warm.ListOptions) ([]*record.Record, error)
	Search(ctx context.Context, filters record.SearchFilters, opts record.SearchOptions) ([]*record.Record, int, error)
	VectorSearch(ctx context.Context, query []float32, cfg record.VectorSearchConfig, types []record.MemoryType) ([]record.VectorMatch, error)
	Stats(ctx context.Context) (record.TierStats, error)
	HealthCheck(ctx context.Context) record.HealthStatus
}

// ColdTier is the archive tier contract the manager depends on.
type ColdTier interface {
	Archive(ctx context.Context, rec *record.Record) (cold.ArchiveResult, error)
	Retrieve(ctx context.Context, key string) (*record.Record, error)
	Delete(ctx context.Context, key string) error
	Stats(ctx context.Context) (record.TierStats, error)
	HealthCheck(ctx context.Context) record.HealthStatus
}

// Default tuning values applied by NewManager when the option is zero.
const (
	// DefaultHotSearchWindow is how recent a creation-time filter must be
	// for a structured search to be served from the hot tier.
	DefaultHotSearchWindow = 7 * 24 * time.Hour

	// DefaultHotVectorCap bounds the hot tier's share of a merged vector
	// search; the hot scan is brute force.
	DefaultHotVectorCap = 20

	// DefaultMaxResults caps vector search results when the config leaves
	// MaxResults zero.
	DefaultMaxResults = 10

	// DefaultAsyncTimeout bounds fire-and-forget cache population and
	// restore work spawned by reads.
	DefaultAsyncTimeout = 5 * time.Second
)

// Options configures a Manager. Hot, Warm, Cold, and Embedder are required.
type Options struct {
	Hot      HotTier
	Warm     WarmTier
	Cold     ColdTier
	Embedder embedding.Provider

	// Logger receives operational events. Default: slog.Default().
	Logger *slog.Logger

	// MeterProvider supplies the metric instruments. Nil disables metrics.
	MeterProvider metric.MeterProvider

	// HotSearchWindow overrides DefaultHotSearchWindow.
	HotSearchWindow time.Duration

	// HotVectorCap overrides DefaultHotVectorCap.
	HotVectorCap int

	// AsyncTimeout overrides DefaultAsyncTimeout.
	AsyncTimeout time.Duration
}

// Manager coordinates reads and writes across the three tiers.
type Manager struct {
	hot      HotTier
	warm     WarmTier
	cold     ColdTier
	embedder embedding.Provider

	logger  *slog.Logger
	metrics *otelMetrics

	hotSearchWindow time.Duration
	hotVectorCap    int
	asyncTimeout    time.Duration

	// async tracks fire-and-forget cache and restore work so Close can
	// wait for it.
	async sync.WaitGroup
}

// NewManager wires the tiers together and creates the metric instruments.
func NewManager(opts Options) (*Manager, error) {
	if opts.Hot == nil || opts.Warm == nil || opts.Cold == nil {
		return nil, errors.New("storage: Hot, Warm, and Cold tiers are required")
	}
	if opts.Embedder == nil {
		return nil, errors.New("storage: Embedder is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HotSearchWindow <= 0 {
		opts.HotSearchWindow = DefaultHotSearchWindow
	}
	if opts.HotVectorCap <= 0 {
		opts.HotVectorCap = DefaultHotVectorCap
	}
	if opts.AsyncTimeout <= 0 {
		opts.AsyncTimeout = DefaultAsyncTimeout
	}

	metrics, err := initMetrics(opts.MeterProvider)
	if err != nil {
		return nil, err
	}

	// Embedding is best-effort enrichment; generation failures must not
	// fail a write.
	if _, ok := opts.Embedder.(*embedding.ZeroOnError); !ok {
		opts.Embedder = &embedding.ZeroOnError{Inner: opts.Embedder, Logger: opts.Logger}
	}

	return &Manager{
		hot:             opts.Hot,
		warm:            opts.Warm,
		cold:            opts.Cold,
		embedder:        opts.Embedder,
		logger:          opts.Logger.With("component", "storage"),
		metrics:         metrics,
		hotSearchWindow: opts.HotSearchWindow,
		hotVectorCap:    opts.HotVectorCap,
		asyncTimeout:    opts.AsyncTimeout,
	}, nil
}

// spawn runs fn on a detached context so caller cancellation does not abort
// best-effort background work.
func (m *Manager) spawn(fn func(ctx context.Context)) {
	m.async.Add(1)
	go func() {
		defer m.async.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.asyncTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Close waits for in-flight background cache work and closes any tier that
// implements io.Closer.
func (m *Manager) Close() error {
	m.async.Wait()

	var errs []error
	for _, tier := range []any{m.hot, m.warm, m.cold} {
		if closer, ok := tier.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
