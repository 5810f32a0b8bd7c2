package hot

import (
	"context"
	"fmt"
	"time"

	"github.com/strata-ai/strata/record"
)

// Stats reports entry counts, per-type and per-importance breakdowns, the
// approximate hit rate, and a memory estimate based on serialized record
// sizes.
func (s *Store) Stats(ctx context.Context) (record.TierStats, error) {
	stats := record.TierStats{
		ByType:       make(map[record.MemoryType]int64),
		ByImportance: make(map[record.ImportanceLevel]int64),
	}

	for _, mt := range record.AllMemoryTypes() {
		n, err := s.client.SCard(ctx, typeIndexPrefix+string(mt)).Result()
		if err != nil {
			return stats, fmt.Errorf("hot: count type index %s: %w", mt, err)
		}
		if n > 0 {
			stats.ByType[mt] = n
		}
	}
	for _, level := range allImportance() {
		n, err := s.client.SCard(ctx, importanceIdxPrefix+string(level)).Result()
		if err != nil {
			return stats, fmt.Errorf("hot: count importance index %s: %w", level, err)
		}
		if n > 0 {
			stats.ByImportance[level] = n
		}
	}

	// Entry count and size come from the live record keys; index sets may
	// briefly reference evicted entries.
	iter := s.client.Scan(ctx, 0, recKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		stats.Records++
		if n, err := s.client.StrLen(ctx, iter.Val()).Result(); err == nil {
			stats.SizeBytes += n
		}
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("hot: scan records: %w", err)
	}

	hits, _ := s.client.Get(ctx, hitsKey).Int64()
	misses, _ := s.client.Get(ctx, missesKey).Int64()
	if hits+misses > 0 {
		stats.HitRate = float64(hits) / float64(hits+misses)
	}
	return stats, nil
}

// HealthCheck pings the backend. A ping slower than 250ms reports degraded.
func (s *Store) HealthCheck(ctx context.Context) record.HealthStatus {
	start := time.Now()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return record.NewUnhealthyStatus("redis ping failed", map[string]any{"error": err.Error()})
	}
	elapsed := time.Since(start)
	if elapsed > 250*time.Millisecond {
		return record.NewDegradedStatus("redis ping slow", map[string]any{"latency_ms": elapsed.Milliseconds()})
	}
	return record.NewHealthyStatus("redis reachable")
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
