package strata

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-ai/strata/config"
	"github.com/strata-ai/strata/record"
)

func setupTestEngine(t *testing.T) *Engine {
	t.Helper()

	mr := miniredis.RunT(t)
	engine, err := New(WithConfigValues(&config.Config{
		Hot:  config.HotConfig{URL: "redis://" + mr.Addr()},
		Warm: config.WarmConfig{Path: filepath.Join(t.TempDir(), "warm.db")},
		Cold: config.ColdConfig{Dir: t.TempDir()},
	}))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = engine.Shutdown(ctx)
	})
	return engine
}

func TestEngineLifecycle(t *testing.T) {
	engine := setupTestEngine(t)
	ctx := context.Background()

	id, err := engine.Create(ctx, record.CreateInput{
		Type:         record.TypeSemantic,
		Title:        "GDPR retention rules",
		Content:      map[string]any{"retention": "30 days"},
		Tags:         []string{"legal"},
		OwnerAgentID: "agent-1",
		Importance:   record.ImportanceHigh,
		Payload:      &record.SemanticPayload{Domain: "legal", Confidence: 0.9},
	})
	require.NoError(t, err)

	rec, err := engine.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "GDPR retention rules", rec.Title)

	res, err := engine.Search(ctx, record.SearchFilters{TextSearch: "GDPR"}, record.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	matches, err := engine.VectorSearch(ctx, rec.Embedding, record.VectorSearchConfig{Threshold: 0.5}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)

	require.NoError(t, engine.MoveTier(ctx, id, record.TierCold))
	restored, err := engine.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rec.Title, restored.Title)

	assert.True(t, engine.HealthCheck(ctx).IsHealthy())

	stats, err := engine.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Greater(t, stats.TotalRecords, int64(0))

	require.NoError(t, engine.Delete(ctx, id))
	_, err = engine.Retrieve(ctx, id)
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func TestEngineBackgroundRuns(t *testing.T) {
	engine := setupTestEngine(t)
	ctx := context.Background()

	report, err := engine.RunMigration(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)

	consolidation, err := engine.RunConsolidation(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, consolidation.RunID)
}

func TestEngineStartStop(t *testing.T) {
	engine := setupTestEngine(t)
	require.NoError(t, engine.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, engine.Shutdown(ctx))
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
}
