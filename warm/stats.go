package warm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/strata-ai/strata/record"
)

// Stats reports record counts, per-type and per-importance breakdowns, and
// an estimated storage footprint based on serialized field sizes.
// Soft-deleted rows are excluded; cold-tier stubs are excluded from the
// count since the cold tier reports those records itself.
func (s *Store) Stats(ctx context.Context) (record.TierStats, error) {
	stats := record.TierStats{
		ByType:       make(map[record.MemoryType]int64),
		ByImportance: make(map[record.ImportanceLevel]int64),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(LENGTH(title) + LENGTH(COALESCE(description, '')) +
		                    LENGTH(COALESCE(content, '')) + LENGTH(COALESCE(embedding, ''))), 0)
		FROM memories WHERE is_deleted = 0 AND current_tier != 'cold'`).
		Scan(&stats.Records, &stats.SizeBytes)
	if err != nil {
		return stats, fmt.Errorf("warm: count records: %w", err)
	}

	if err := s.groupCount(ctx, `type`, func(key string, n int64) {
		stats.ByType[record.MemoryType(key)] = n
	}); err != nil {
		return stats, err
	}
	if err := s.groupCount(ctx, `importance`, func(key string, n int64) {
		stats.ByImportance[record.ImportanceLevel(key)] = n
	}); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Store) groupCount(ctx context.Context, column string, emit func(key string, n int64)) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM memories
		 WHERE is_deleted = 0 AND current_tier != 'cold' GROUP BY `+column)
	if err != nil {
		return fmt.Errorf("warm: group by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key sql.NullString
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("warm: scan group row: %w", err)
		}
		if key.Valid {
			emit(key.String, n)
		}
	}
	return rows.Err()
}
