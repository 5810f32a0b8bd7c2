package storage

import (
	"context"
	"time"

	"github.com/strata-ai/strata/record"
)

// GetStorageStats aggregates per-tier statistics. A tier whose backend
// fails is logged and left out of the result rather than failing the whole
// call.
func (m *Manager) GetStorageStats(ctx context.Context) (record.StorageStats, error) {
	start := time.Now()
	stats := record.StorageStats{
		Tiers:        make(map[record.Tier]record.TierStats),
		Distribution: make(map[record.Tier]float64),
	}

	collect := func(tier record.Tier, fn func(context.Context) (record.TierStats, error)) {
		ts, err := fn(ctx)
		if err != nil {
			m.logger.Warn("tier stats unavailable", "tier", tier, "error", err)
			return
		}
		stats.Tiers[tier] = ts
		stats.TotalRecords += ts.Records
	}
	collect(record.TierHot, m.hot.Stats)
	collect(record.TierWarm, m.warm.Stats)
	collect(record.TierCold, m.cold.Stats)

	if stats.TotalRecords > 0 {
		for tier, ts := range stats.Tiers {
			stats.Distribution[tier] = float64(ts.Records) / float64(stats.TotalRecords)
		}
	}

	m.metrics.observe(ctx, "stats", "all", start, nil)
	return stats, nil
}

// HealthCheck probes every tier and combines the results; any unhealthy
// tier makes the overall status unhealthy.
func (m *Manager) HealthCheck(ctx context.Context) record.HealthStatus {
	return record.CombineHealth(map[record.Tier]record.HealthStatus{
		record.TierHot:  m.hot.HealthCheck(ctx),
		record.TierWarm: m.warm.HealthCheck(ctx),
		record.TierCold: m.cold.HealthCheck(ctx),
	})
}
