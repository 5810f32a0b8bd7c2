package storage

import (
	"context"
	"sort"
	"time"

	"github.com/strata-ai/strata/record"
)

// Search runs a structured search on the most appropriate tier. Filters
// restricted to a recent creation window with no text criteria are served
// from the hot tier; everything else goes to the warm tier, which is also
// the fallback when the hot tier fails. The result reports the tier that
// actually served the query. The cold tier is never searched.
func (m *Manager) Search(ctx context.Context, filters record.SearchFilters, opts record.SearchOptions) (record.SearchResult, error) {
	start := time.Now()
	if err := filters.Validate(); err != nil {
		return record.SearchResult{}, err
	}

	if m.preferHot(filters, opts) {
		recs, total, err := m.hot.Search(ctx, filters, opts.Limit)
		if err == nil {
			m.metrics.observe(ctx, "search", "hot", start, nil)
			// Total counts all cached matches, not just the returned page.
			return record.SearchResult{
				Records:  recs,
				Total:    total,
				TierUsed: record.TierHot,
			}, nil
		}
		m.logger.Warn("hot tier search failed, falling back", "error", err)
	}

	recs, total, err := m.warm.Search(ctx, filters, opts)
	if err != nil {
		err = record.NewStorageError(record.TierWarm, "search", err)
		m.metrics.observe(ctx, "search", "warm", start, err)
		return record.SearchResult{}, err
	}
	m.metrics.observe(ctx, "search", "warm", start, nil)
	return record.SearchResult{
		Records:  recs,
		Total:    total,
		TierUsed: record.TierWarm,
	}, nil
}

// preferHot reports whether a search can be served from the cache tier: a
// creation window inside the hot TTL horizon, no text matching, and no
// pagination or custom ordering, since the hot tier supports neither.
func (m *Manager) preferHot(filters record.SearchFilters, opts record.SearchOptions) bool {
	if filters.TextSearch != "" || filters.CreatedAfter == nil {
		return false
	}
	if opts.Offset != 0 || (opts.SortBy != "" && opts.SortBy != record.SortByCreatedAt) {
		return false
	}
	return time.Since(*filters.CreatedAfter) <= m.hotSearchWindow
}

// VectorSearch runs a similarity query against the hot tier first, then the
// warm tier, merging and de-duplicating by id and ranking by similarity
// descending. A failure in one tier is logged and the other tier's results
// are still returned.
func (m *Manager) VectorSearch(ctx context.Context, query []float32, cfg record.VectorSearchConfig, types []record.MemoryType) ([]record.VectorMatch, error) {
	start := time.Now()
	if cfg.Algorithm == "" {
		cfg.Algorithm = record.SimilarityCosine
	}
	if err := cfg.Algorithm.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}

	seen := make(map[string]record.VectorMatch)
	hotServed := false

	// The hot scan is brute force over cached embeddings, so it runs under
	// a smaller cap. Cosine is the only formula the cache supports; other
	// algorithms go straight to the warm tier.
	if cfg.Algorithm == record.SimilarityCosine {
		hotCap := cfg.MaxResults
		if hotCap > m.hotVectorCap {
			hotCap = m.hotVectorCap
		}
		matches, err := m.hot.VectorSearch(ctx, query, types, cfg.Threshold, hotCap)
		if err != nil {
			m.logger.Warn("hot tier vector search failed", "error", err)
		} else {
			hotServed = true
			for _, match := range matches {
				seen[match.Record.ID] = match
			}
		}
	}

	if len(seen) < cfg.MaxResults {
		matches, err := m.warm.VectorSearch(ctx, query, cfg, types)
		if err != nil {
			// A warm failure is fatal only when the hot tier did not
			// produce an answer either.
			if !hotServed {
				err = record.NewStorageError(record.TierWarm, "vector_search", err)
				m.metrics.observe(ctx, "vector_search", "all", start, err)
				return nil, err
			}
			m.logger.Warn("warm tier vector search failed", "error", err)
		}
		for _, match := range matches {
			if _, dup := seen[match.Record.ID]; !dup {
				seen[match.Record.ID] = match
			}
		}
	}

	merged := make([]record.VectorMatch, 0, len(seen))
	for _, match := range seen {
		merged = append(merged, match)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Similarity > merged[j].Similarity })
	if len(merged) > cfg.MaxResults {
		merged = merged[:cfg.MaxResults]
	}

	m.metrics.observe(ctx, "vector_search", "all", start, nil)
	return merged, nil
}
