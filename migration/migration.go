package migration

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/strata-ai/strata/record"
	"github.com/strata-ai/strata/warm"
)

// ErrAlreadyRunning is returned by RunNow when a sweep is already active.
var ErrAlreadyRunning = errors.New("migration: sweep already running")

// Default tuning values applied by NewEngine when the option is zero.
const (
	DefaultHotToWarmAge  = 24 * time.Hour
	DefaultWarmToColdAge = 30 * 24 * time.Hour
	DefaultTransientIdle = 24 * time.Hour
	DefaultBurstCount    = 5
	DefaultBurstWindow   = time.Hour
	DefaultBatchSize     = 50
	DefaultBatchDelay    = 200 * time.Millisecond
	DefaultConcurrency   = 4
	DefaultScanLimit     = 5000

	// coldPriorityBoost keeps restore-on-demand promotions ahead of every
	// demotion in the execution order.
	coldPriorityBoost = 1e9
)

// Scanner lists records for candidate selection. *warm.Store satisfies it.
type Scanner interface {
	List(ctx context.Context, opts warm.ListOptions) ([]*record.Record, error)
}

// Mover executes a single tier transition. *storage.Manager satisfies it.
type Mover interface {
	MoveTier(ctx context.Context, id string, target record.Tier) error
}

// Thresholds are the rule parameters for one engine.
type Thresholds struct {
	// HotToWarmAge demotes cached records older than this.
	HotToWarmAge time.Duration

	// WarmToColdAge archives non-critical, rarely read records older than
	// this.
	WarmToColdAge time.Duration

	// TransientIdle demotes transient-importance records unread for this
	// long, regardless of age.
	TransientIdle time.Duration

	// BurstCount and BurstWindow promote an archived record once its
	// access count reaches BurstCount with a read inside BurstWindow.
	BurstCount  int64
	BurstWindow time.Duration
}

// Options configures a migration engine.
type Options struct {
	Scanner Scanner
	Mover   Mover

	Thresholds Thresholds

	// BatchSize is how many moves run between pauses. Default: 50.
	BatchSize int

	// BatchDelay is the pause between batches. Default: 200ms.
	BatchDelay time.Duration

	// Concurrency bounds parallel moves inside a batch. Default: 4.
	Concurrency int

	// ScanLimit caps how many records one sweep considers per tier.
	// Default: 5000.
	ScanLimit int

	// Logger receives sweep events. Default: slog.Default().
	Logger *slog.Logger
}

// Engine runs migration sweeps.
type Engine struct {
	scanner Scanner
	mover   Mover

	thresholds  Thresholds
	batchSize   int
	batchDelay  time.Duration
	concurrency int
	scanLimit   int
	logger      *slog.Logger

	running atomic.Bool
}

// NewEngine validates the options and applies defaults.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Scanner == nil || opts.Mover == nil {
		return nil, errors.New("migration: Scanner and Mover are required")
	}
	if opts.Thresholds.HotToWarmAge <= 0 {
		opts.Thresholds.HotToWarmAge = DefaultHotToWarmAge
	}
	if opts.Thresholds.WarmToColdAge <= 0 {
		opts.Thresholds.WarmToColdAge = DefaultWarmToColdAge
	}
	if opts.Thresholds.TransientIdle <= 0 {
		opts.Thresholds.TransientIdle = DefaultTransientIdle
	}
	if opts.Thresholds.BurstCount <= 0 {
		opts.Thresholds.BurstCount = DefaultBurstCount
	}
	if opts.Thresholds.BurstWindow <= 0 {
		opts.Thresholds.BurstWindow = DefaultBurstWindow
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = DefaultBatchDelay
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.ScanLimit <= 0 {
		opts.ScanLimit = DefaultScanLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		scanner:     opts.Scanner,
		mover:       opts.Mover,
		thresholds:  opts.Thresholds,
		batchSize:   opts.BatchSize,
		batchDelay:  opts.BatchDelay,
		concurrency: opts.Concurrency,
		scanLimit:   opts.ScanLimit,
		logger:      opts.Logger.With("component", "migration"),
	}, nil
}

// candidate is one planned move with its execution priority.
type candidate struct {
	id       string
	target   record.Tier
	priority float64
}

// ItemError records one failed move inside a sweep.
type ItemError struct {
	ID     string      `json:"id"`
	Target record.Tier `json:"target"`
	Err    string      `json:"error"`
}

// Report summarizes one sweep.
type Report struct {
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Scanned  int           `json:"scanned"`
	Migrated int           `json:"migrated"`
	Failed   int           `json:"failed"`
	Errors   []ItemError   `json:"errors,omitempty"`
}

// RunNow executes one sweep. A sweep already in flight returns
// ErrAlreadyRunning with an empty report rather than queuing.
func (e *Engine) RunNow(ctx context.Context) (Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyRunning
	}
	defer e.running.Store(false)

	report := Report{
		RunID:   ulid.Make().String(),
		Started: time.Now().UTC(),
	}
	logger := e.logger.With("run_id", report.RunID)

	candidates, scanned, err := e.collect(ctx)
	report.Scanned = scanned
	if err != nil {
		report.Duration = time.Since(report.Started)
		return report, err
	}

	// Highest priority first; the cold promotion boost keeps revived
	// records ahead of every demotion.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].priority > candidates[j].priority })

	var mu sync.Mutex
	for start := 0; start < len(candidates); start += e.batchSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				report.Duration = time.Since(report.Started)
				return report, ctx.Err()
			case <-time.After(e.batchDelay):
			}
		}

		end := start + e.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(e.concurrency)
		for _, cand := range candidates[start:end] {
			cand := cand
			group.Go(func() error {
				err := e.mover.MoveTier(groupCtx, cand.id, cand.target)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Failed++
					report.Errors = append(report.Errors, ItemError{ID: cand.id, Target: cand.target, Err: err.Error()})
					return nil
				}
				report.Migrated++
				return nil
			})
		}
		// Goroutines never return errors; Wait only observes context
		// cancellation.
		if err := group.Wait(); err != nil {
			report.Duration = time.Since(report.Started)
			return report, err
		}
	}

	report.Duration = time.Since(report.Started)
	logger.Info("migration sweep finished",
		"scanned", report.Scanned,
		"migrated", report.Migrated,
		"failed", report.Failed,
		"duration", report.Duration)
	return report, nil
}

// collect scans each tier's placement and applies the transition rules.
func (e *Engine) collect(ctx context.Context) ([]candidate, int, error) {
	now := time.Now()
	var candidates []candidate
	scanned := 0

	hotRecs, err := e.scanner.List(ctx, warm.ListOptions{
		Tiers: []record.Tier{record.TierHot},
		Limit: e.scanLimit,
	})
	if err != nil {
		return nil, scanned, err
	}
	scanned += len(hotRecs)
	for _, rec := range hotRecs {
		if target, ok := e.evaluateHot(rec, now); ok {
			candidates = append(candidates, candidate{id: rec.ID, target: target, priority: priority(rec, now)})
		}
	}

	warmRecs, err := e.scanner.List(ctx, warm.ListOptions{
		Tiers: []record.Tier{record.TierWarm},
		Limit: e.scanLimit,
	})
	if err != nil {
		return nil, scanned, err
	}
	scanned += len(warmRecs)
	for _, rec := range warmRecs {
		if target, ok := e.evaluateWarm(rec, now); ok {
			candidates = append(candidates, candidate{id: rec.ID, target: target, priority: priority(rec, now)})
		}
	}

	coldRecs, err := e.scanner.List(ctx, warm.ListOptions{
		Tiers: []record.Tier{record.TierCold},
		Limit: e.scanLimit,
	})
	if err != nil {
		return nil, scanned, err
	}
	scanned += len(coldRecs)
	for _, rec := range coldRecs {
		if target, ok := e.evaluateCold(rec, now); ok {
			candidates = append(candidates, candidate{
				id:       rec.ID,
				target:   target,
				priority: priority(rec, now) + coldPriorityBoost,
			})
		}
	}
	return candidates, scanned, nil
}

// evaluateHot demotes cached records past the hot age window, and transient
// records that nobody has read for a day.
func (e *Engine) evaluateHot(rec *record.Record, now time.Time) (record.Tier, bool) {
	if now.Sub(rec.CreatedAt) >= e.thresholds.HotToWarmAge {
		return record.TierWarm, true
	}
	if rec.Importance == record.ImportanceTransient {
		lastTouch := rec.LastAccessedAt
		if lastTouch.IsZero() {
			lastTouch = rec.CreatedAt
		}
		if now.Sub(lastTouch) > e.thresholds.TransientIdle {
			return record.TierWarm, true
		}
	}
	return "", false
}

// evaluateWarm archives old, non-critical records whose reads classify as
// rare.
func (e *Engine) evaluateWarm(rec *record.Record, now time.Time) (record.Tier, bool) {
	if rec.Importance == record.ImportanceCritical {
		return "", false
	}
	if now.Sub(rec.CreatedAt) < e.thresholds.WarmToColdAge {
		return "", false
	}
	if record.ClassifyAccess(rec.AccessCount) != record.AccessRare {
		return "", false
	}
	return record.TierCold, true
}

// evaluateCold promotes archived records revived by a recent access burst.
func (e *Engine) evaluateCold(rec *record.Record, now time.Time) (record.Tier, bool) {
	if rec.AccessCount < e.thresholds.BurstCount {
		return "", false
	}
	if rec.LastAccessedAt.IsZero() || now.Sub(rec.LastAccessedAt) > e.thresholds.BurstWindow {
		return "", false
	}
	return record.TierWarm, true
}

// priority orders candidates within a sweep: older, less important, less
// accessed records move first.
func priority(rec *record.Record, now time.Time) float64 {
	ageDays := now.Sub(rec.CreatedAt).Hours() / 24
	pattern := record.ClassifyAccess(rec.AccessCount)
	return ageDays * (1 - rec.Importance.Weight()) * (1 - pattern.Weight())
}

// IsRunning reports whether a sweep is in flight.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}
