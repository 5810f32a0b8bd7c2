package consolidate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/strata-ai/strata/embedding"
	"github.com/strata-ai/strata/record"
	"github.com/strata-ai/strata/warm"
)

// ErrAlreadyRunning is returned by RunNow when a run is already active.
var ErrAlreadyRunning = errors.New("consolidate: run already active")

// Strategy names reported per group.
const (
	StrategyMerge      = "merge"
	StrategySummarize  = "summarize"
	StrategyPrioritize = "prioritize"
)

// Group-size and similarity boundaries for strategy selection.
const (
	mergeMaxGroup      = 5
	mergeMinSimilarity = 0.9
	prioritizeMinGroup = 11
	prioritizeKeep     = 0.3
)

// TypePolicy sets the per-type consolidation parameters.
type TypePolicy struct {
	// MinAge excludes records younger than this from consolidation.
	MinAge time.Duration

	// SimilarityThreshold is the minimum cosine similarity for two
	// records to land in the same group.
	SimilarityThreshold float64
}

// DefaultPolicies returns the per-type defaults. Short-lived working
// memories consolidate aggressively; durable semantic knowledge needs less
// similarity to be worth folding together.
func DefaultPolicies() map[record.MemoryType]TypePolicy {
	return map[record.MemoryType]TypePolicy{
		record.TypeWorking:    {MinAge: 24 * time.Hour, SimilarityThreshold: 0.9},
		record.TypeEpisodic:   {MinAge: 7 * 24 * time.Hour, SimilarityThreshold: 0.8},
		record.TypeSemantic:   {MinAge: 30 * 24 * time.Hour, SimilarityThreshold: 0.7},
		record.TypeProcedural: {MinAge: 30 * 24 * time.Hour, SimilarityThreshold: 0.8},
		record.TypeShared:     {MinAge: 7 * 24 * time.Hour, SimilarityThreshold: 0.8},
		record.TypeBusiness:   {MinAge: 30 * 24 * time.Hour, SimilarityThreshold: 0.75},
	}
}

// Scanner lists candidate records. *warm.Store satisfies it.
type Scanner interface {
	List(ctx context.Context, opts warm.ListOptions) ([]*record.Record, error)
}

// Storage is the record mutation surface a run needs. *storage.Manager
// satisfies it.
type Storage interface {
	Create(ctx context.Context, input record.CreateInput) (string, error)
	Update(ctx context.Context, id string, patch record.UpdatePatch) error
	Delete(ctx context.Context, id string) error
}

// Options configures a consolidation engine.
type Options struct {
	Scanner Scanner
	Storage Storage

	// Policies overrides DefaultPolicies; a type absent from the map is
	// skipped entirely.
	Policies map[record.MemoryType]TypePolicy

	// ScanLimit caps how many records one run considers per type.
	// Default: 5000.
	ScanLimit int

	// Logger receives run events. Default: slog.Default().
	Logger *slog.Logger
}

// Engine runs consolidation passes.
type Engine struct {
	scanner   Scanner
	storage   Storage
	policies  map[record.MemoryType]TypePolicy
	scanLimit int
	logger    *slog.Logger

	running atomic.Bool
}

// NewEngine validates the options and applies defaults.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Scanner == nil || opts.Storage == nil {
		return nil, errors.New("consolidate: Scanner and Storage are required")
	}
	if opts.Policies == nil {
		opts.Policies = DefaultPolicies()
	}
	if opts.ScanLimit <= 0 {
		opts.ScanLimit = 5000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		scanner:   opts.Scanner,
		storage:   opts.Storage,
		policies:  opts.Policies,
		scanLimit: opts.ScanLimit,
		logger:    opts.Logger.With("component", "consolidate"),
	}, nil
}

// ItemError records one failed mutation inside a run.
type ItemError struct {
	ID  string `json:"id"`
	Op  string `json:"op"`
	Err string `json:"error"`
}

// Report summarizes one run.
type Report struct {
	RunID      string         `json:"run_id"`
	Started    time.Time      `json:"started"`
	Duration   time.Duration  `json:"duration"`
	Scanned    int            `json:"scanned"`
	Groups     int            `json:"groups"`
	ByStrategy map[string]int `json:"by_strategy,omitempty"`
	Deleted    int            `json:"deleted"`
	Created    int            `json:"created"`
	SpaceSaved int64          `json:"space_saved_bytes"`
	Errors     []ItemError    `json:"errors,omitempty"`
}

// RunNow executes one consolidation pass. A pass already in flight returns
// ErrAlreadyRunning with an empty report rather than queuing.
func (e *Engine) RunNow(ctx context.Context) (Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyRunning
	}
	defer e.running.Store(false)

	report := Report{
		RunID:      ulid.Make().String(),
		Started:    time.Now().UTC(),
		ByStrategy: make(map[string]int),
	}
	logger := e.logger.With("run_id", report.RunID)

	for _, mt := range record.AllMemoryTypes() {
		policy, ok := e.policies[mt]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(report.Started)
			return report, err
		}

		cutoff := time.Now().Add(-policy.MinAge)
		recs, err := e.scanner.List(ctx, warm.ListOptions{
			Types:         []record.MemoryType{mt},
			Tiers:         []record.Tier{record.TierHot, record.TierWarm},
			CreatedBefore: &cutoff,
			Limit:         e.scanLimit,
		})
		if err != nil {
			report.Duration = time.Since(report.Started)
			return report, fmt.Errorf("consolidate: scan %s: %w", mt, err)
		}
		report.Scanned += len(recs)

		for _, group := range groupBySimilarity(recs, policy.SimilarityThreshold) {
			report.Groups++
			e.consolidateGroup(ctx, group, &report)
		}
	}

	report.Duration = time.Since(report.Started)
	logger.Info("consolidation run finished",
		"scanned", report.Scanned,
		"groups", report.Groups,
		"deleted", report.Deleted,
		"created", report.Created,
		"space_saved", report.SpaceSaved,
		"failed", len(report.Errors))
	return report, nil
}

// IsRunning reports whether a pass is in flight.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// groupBySimilarity clusters records greedily: each ungrouped record seeds
// a group and absorbs every later ungrouped record whose similarity to the
// seed meets the threshold. CRITICAL records and records without a usable
// embedding never enter a group.
func groupBySimilarity(recs []*record.Record, threshold float64) [][]*record.Record {
	var groups [][]*record.Record
	used := make([]bool, len(recs))

	for i, seed := range recs {
		if used[i] || !consolidatable(seed) {
			continue
		}
		group := []*record.Record{seed}
		used[i] = true

		for j := i + 1; j < len(recs); j++ {
			if used[j] || !consolidatable(recs[j]) {
				continue
			}
			sim, err := embedding.Cosine(seed.Embedding, recs[j].Embedding)
			if err != nil || sim < threshold {
				continue
			}
			group = append(group, recs[j])
			used[j] = true
		}
		if len(group) >= 2 {
			groups = append(groups, group)
		}
	}
	return groups
}

func consolidatable(rec *record.Record) bool {
	if rec.Importance == record.ImportanceCritical {
		return false
	}
	if len(rec.Embedding) == 0 {
		return false
	}
	for _, v := range rec.Embedding {
		if v != 0 {
			return true
		}
	}
	return false
}

// consolidateGroup selects and applies a strategy, accumulating the
// report's counters. Failures are collected per record; a failed delete
// leaves that record in place but never aborts the run.
func (e *Engine) consolidateGroup(ctx context.Context, group []*record.Record, report *Report) {
	avg := averagePairwiseSimilarity(group)

	var strategy string
	switch {
	case len(group) >= prioritizeMinGroup:
		strategy = StrategyPrioritize
	case len(group) <= mergeMaxGroup && avg > mergeMinSimilarity:
		strategy = StrategyMerge
	default:
		strategy = StrategySummarize
	}
	report.ByStrategy[strategy]++

	switch strategy {
	case StrategyMerge:
		e.merge(ctx, group, report)
	case StrategySummarize:
		e.summarize(ctx, group, report)
	case StrategyPrioritize:
		e.prioritize(ctx, group, report)
	}
}

func averagePairwiseSimilarity(group []*record.Record) float64 {
	var sum float64
	var n int
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			sim, err := embedding.Cosine(group[i].Embedding, group[j].Embedding)
			if err != nil {
				continue
			}
			sum += sim
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// merge keeps the most recent record as primary, folds the others in as
// structured references, and deletes them.
func (e *Engine) merge(ctx context.Context, group []*record.Record, report *Report) {
	sort.Slice(group, func(i, j int) bool { return group[i].UpdatedAt.After(group[j].UpdatedAt) })
	primary, rest := group[0], group[1:]

	refs := make([]map[string]any, 0, len(rest))
	ids := make([]string, 0, len(rest))
	for _, rec := range rest {
		refs = append(refs, map[string]any{
			"id":    rec.ID,
			"title": rec.Title,
		})
		ids = append(ids, rec.ID)
	}

	metadata := map[string]any{}
	for k, v := range primary.Metadata {
		metadata[k] = v
	}
	metadata["consolidated_from"] = ids
	metadata["consolidation_strategy"] = StrategyMerge

	content := map[string]any{}
	for k, v := range primary.Content {
		content[k] = v
	}
	content["merged_references"] = refs

	if err := e.storage.Update(ctx, primary.ID, record.UpdatePatch{
		Content:  content,
		Metadata: metadata,
	}); err != nil {
		report.Errors = append(report.Errors, ItemError{ID: primary.ID, Op: "merge", Err: err.Error()})
		return
	}
	e.deleteAll(ctx, rest, "merge", report)
}

// summarize replaces the whole group with one synthetic record referencing
// the source ids.
func (e *Engine) summarize(ctx context.Context, group []*record.Record, report *Report) {
	ids := make([]string, 0, len(group))
	titles := make([]string, 0, len(group))
	importance := record.ImportanceTransient
	for _, rec := range group {
		ids = append(ids, rec.ID)
		titles = append(titles, rec.Title)
		if rec.Importance.Weight() > importance.Weight() {
			importance = rec.Importance
		}
	}

	input := record.CreateInput{
		Type:  group[0].Type,
		Title: fmt.Sprintf("Summary of %d %s memories", len(group), group[0].Type),
		Content: map[string]any{
			"source_ids":    ids,
			"source_titles": titles,
		},
		Metadata: map[string]any{
			"consolidated_from":      ids,
			"consolidation_strategy": StrategySummarize,
		},
		OwnerAgentID: group[0].OwnerAgentID,
		Importance:   importance,
	}
	if _, err := e.storage.Create(ctx, input); err != nil {
		report.Errors = append(report.Errors, ItemError{ID: group[0].ID, Op: "summarize", Err: err.Error()})
		return
	}
	report.Created++
	report.SpaceSaved -= estimateSize(&record.Record{Title: input.Title, Content: input.Content, Metadata: input.Metadata})
	e.deleteAll(ctx, group, "summarize", report)
}

// prioritize keeps the top share of a large group by recency and size and
// deletes the rest.
func (e *Engine) prioritize(ctx context.Context, group []*record.Record, report *Report) {
	now := time.Now()
	sort.Slice(group, func(i, j int) bool {
		return prioritizeScore(group[i], now) > prioritizeScore(group[j], now)
	})

	keep := int(float64(len(group)) * prioritizeKeep)
	if keep < 1 {
		keep = 1
	}
	e.deleteAll(ctx, group[keep:], "prioritize", report)
}

// prioritizeScore favors recently touched, information-dense records. Both
// terms are normalized so neither dominates.
func prioritizeScore(rec *record.Record, now time.Time) float64 {
	ageDays := now.Sub(rec.UpdatedAt).Hours() / 24
	recency := 1 / (1 + ageDays)
	density := float64(estimateSize(rec)) / 4096
	if density > 1 {
		density = 1
	}
	return 0.7*recency + 0.3*density
}

func (e *Engine) deleteAll(ctx context.Context, recs []*record.Record, op string, report *Report) {
	for _, rec := range recs {
		if err := e.storage.Delete(ctx, rec.ID); err != nil {
			report.Errors = append(report.Errors, ItemError{ID: rec.ID, Op: op, Err: err.Error()})
			continue
		}
		report.Deleted++
		report.SpaceSaved += estimateSize(rec)
	}
}

// estimateSize approximates a record's serialized footprint for the
// space-saved accounting.
func estimateSize(rec *record.Record) int64 {
	raw, err := json.Marshal(rec)
	if err != nil {
		return 0
	}
	return int64(len(raw))
}
