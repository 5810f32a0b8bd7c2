package hot

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/strata-ai/strata/embedding"
	"github.com/strata-ai/strata/record"
)

// VectorSearch ranks cached records by cosine similarity to the query
// vector, filtered by memory types when given. The scan is brute-force over
// the embedding hash, so callers should keep maxResults small; the warm tier
// is the place for large similarity queries.
//
// Embedding-hash entries whose record value has been evicted by TTL are
// lazily removed during the scan.
func (s *Store) VectorSearch(ctx context.Context, query []float32, types []record.MemoryType, threshold float64, maxResults int) ([]record.VectorMatch, error) {
	if len(query) == 0 {
		return nil, record.NewValidationError("query", "embedding must not be empty")
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	entries, err := s.client.HGetAll(ctx, embHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hot: read embedding hash: %w", err)
	}

	wantType := make(map[record.MemoryType]struct{}, len(types))
	for _, t := range types {
		wantType[t] = struct{}{}
	}

	var stale []string
	var matches []record.VectorMatch
	for id, blob := range entries {
		vec, err := embedding.Decode([]byte(blob))
		if err != nil {
			stale = append(stale, id)
			continue
		}
		sim, err := embedding.Cosine(query, vec)
		if err != nil || sim < threshold {
			continue
		}

		data, err := s.client.Get(ctx, recKeyPrefix+id).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				stale = append(stale, id)
			}
			continue
		}
		rec, err := s.decode(ctx, id, data)
		if err != nil || rec.IsDeleted {
			continue
		}
		if len(wantType) > 0 {
			if _, ok := wantType[rec.Type]; !ok {
				continue
			}
		}
		rec.Embedding = vec
		matches = append(matches, record.VectorMatch{Record: rec, Similarity: sim, Tier: record.TierHot})
	}

	if len(stale) > 0 {
		s.client.HDel(ctx, embHashKey, stale...)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches, nil
}
