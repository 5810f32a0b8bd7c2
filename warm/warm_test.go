package warm

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-ai/strata/embedding"
	"github.com/strata-ai/strata/record"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(Options{Path: filepath.Join(t.TempDir(), "warm.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestRecord(mt record.MemoryType, title string) *record.Record {
	now := time.Now().UTC()
	return &record.Record{
		ID:           uuid.NewString(),
		Type:         mt,
		Title:        title,
		Content:      map[string]any{"body": "content for " + title},
		Tags:         []string{"test"},
		OwnerAgentID: "agent-1",
		Importance:   record.ImportanceMedium,
		CurrentTier:  record.TierWarm,
		Embedding:    []float32{0.5, 0.5, 0, 0},
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestCreateAndRetrieveAllTypes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	payloads := map[record.MemoryType]record.Payload{
		record.TypeWorking: &record.WorkingPayload{TaskID: "task-1", ContextWindow: []string{"step one"}},
		record.TypeEpisodic: &record.EpisodicPayload{
			Event: "deployed v2", Outcome: "success", OccurredAt: time.Now().UTC().Truncate(time.Second),
		},
		record.TypeSemantic: &record.SemanticPayload{
			Facts: []string{"retention is 30 days"}, Domain: "legal", Confidence: 0.9,
		},
		record.TypeProcedural: &record.ProceduralPayload{
			Steps:        []record.ProcedureStep{{Order: 1, Action: "open incident"}},
			SuccessCount: 4, FailureCount: 1,
		},
		record.TypeShared:   &record.SharedPayload{SourceAgentID: "agent-1", Visibility: "team"},
		record.TypeBusiness: &record.BusinessPayload{MetricName: "mrr", Value: 120000, Trend: "up"},
	}

	for mt, payload := range payloads {
		rec := newTestRecord(mt, "record of type "+string(mt))
		rec.Payload = payload
		require.NoError(t, store.Create(ctx, rec), "create %s", mt)

		got, err := store.Retrieve(ctx, rec.ID)
		require.NoError(t, err, "retrieve %s", mt)
		assert.Equal(t, rec.Title, got.Title)
		assert.Equal(t, mt, got.Type)
		require.NotNil(t, got.Payload, "payload for %s", mt)
		assert.Equal(t, mt, got.Payload.MemoryType())
		assert.Equal(t, rec.Embedding, got.Embedding)
	}
}

func TestRetrieveBumpsAccessStats(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := newTestRecord(record.TypeSemantic, "access tracking")
	require.NoError(t, store.Create(ctx, rec))

	first, err := store.Retrieve(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.AccessCount)

	second, err := store.Retrieve(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.AccessCount)
	assert.False(t, second.LastAccessedAt.IsZero())

	// Get does not bump.
	third, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), third.AccessCount)
}

func TestTouch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := newTestRecord(record.TypeSemantic, "cache-served reads")
	require.NoError(t, store.Create(ctx, rec))

	require.NoError(t, store.Touch(ctx, rec.ID))
	require.NoError(t, store.Touch(ctx, rec.ID))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AccessCount)
	assert.False(t, got.LastAccessedAt.IsZero())

	t.Run("unknown id", func(t *testing.T) {
		assert.ErrorIs(t, store.Touch(ctx, "absent"), record.ErrNotFound)
	})

	t.Run("soft-deleted record", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, rec.ID))
		assert.ErrorIs(t, store.Touch(ctx, rec.ID), record.ErrNotFound)
	})
}

func TestRetrieveNotFound(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.Retrieve(context.Background(), "absent")
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := newTestRecord(record.TypeSemantic, "before")
	rec.Payload = &record.SemanticPayload{Domain: "ops"}
	require.NoError(t, store.Create(ctx, rec))

	rec.Title = "after"
	rec.Version = 2
	rec.UpdatedAt = time.Now().UTC()
	rec.Payload = &record.SemanticPayload{Domain: "legal", Confidence: 0.8}
	require.NoError(t, store.Update(ctx, rec))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
	assert.Equal(t, 2, got.Version)
	payload := got.Payload.(*record.SemanticPayload)
	assert.Equal(t, "legal", payload.Domain)

	t.Run("absent record", func(t *testing.T) {
		missing := newTestRecord(record.TypeSemantic, "missing")
		assert.ErrorIs(t, store.Update(ctx, missing), record.ErrNotFound)
	})
}

func TestSoftDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := newTestRecord(record.TypeWorking, "to delete")
	require.NoError(t, store.Create(ctx, rec))
	require.NoError(t, store.Delete(ctx, rec.ID))

	_, err := store.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, record.ErrNotFound)

	// Deleted rows are excluded from search.
	recs, total, err := store.Search(ctx, record.SearchFilters{}, record.SearchOptions{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, recs)

	assert.ErrorIs(t, store.Delete(ctx, rec.ID), record.ErrNotFound)
}

func TestSearch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	gdpr := newTestRecord(record.TypeSemantic, "GDPR retention rules")
	gdpr.Tags = []string{"legal"}
	gdpr.Category = "compliance"
	require.NoError(t, store.Create(ctx, gdpr))

	deploy := newTestRecord(record.TypeEpisodic, "deploy log")
	deploy.OwnerAgentID = "agent-2"
	deploy.Importance = record.ImportanceHigh
	require.NoError(t, store.Create(ctx, deploy))

	t.Run("text search matches", func(t *testing.T) {
		recs, total, err := store.Search(ctx, record.SearchFilters{
			Types:      []record.MemoryType{record.TypeSemantic},
			TextSearch: "GDPR",
		}, record.SearchOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, recs, 1)
		assert.Equal(t, gdpr.ID, recs[0].ID)
	})

	t.Run("text search misses", func(t *testing.T) {
		_, total, err := store.Search(ctx, record.SearchFilters{
			Types:      []record.MemoryType{record.TypeSemantic},
			TextSearch: "unrelated-term",
		}, record.SearchOptions{})
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("tag filter", func(t *testing.T) {
		recs, _, err := store.Search(ctx, record.SearchFilters{Tags: []string{"legal"}}, record.SearchOptions{})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, gdpr.ID, recs[0].ID)
	})

	t.Run("owner filter", func(t *testing.T) {
		recs, _, err := store.Search(ctx, record.SearchFilters{OwnerAgentID: "agent-2"}, record.SearchOptions{})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, deploy.ID, recs[0].ID)
	})

	t.Run("importance filter", func(t *testing.T) {
		recs, _, err := store.Search(ctx, record.SearchFilters{
			Importance: []record.ImportanceLevel{record.ImportanceHigh},
		}, record.SearchOptions{})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, deploy.ID, recs[0].ID)
	})

	t.Run("pagination and total", func(t *testing.T) {
		recs, total, err := store.Search(ctx, record.SearchFilters{}, record.SearchOptions{Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, recs, 1)
	})

	t.Run("sort by importance", func(t *testing.T) {
		recs, _, err := store.Search(ctx, record.SearchFilters{}, record.SearchOptions{
			SortBy: record.SortByImportance, Descending: true,
		})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, deploy.ID, recs[0].ID)
	})
}

func TestVectorSearch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a := newTestRecord(record.TypeSemantic, "vector a")
	a.Embedding = []float32{1, 0, 0, 0}
	b := newTestRecord(record.TypeSemantic, "vector b")
	b.Embedding = []float32{0.9, 0.1, 0, 0}
	c := newTestRecord(record.TypeWorking, "vector c")
	c.Embedding = []float32{0, 1, 0, 0}
	for _, rec := range []*record.Record{a, b, c} {
		require.NoError(t, store.Create(ctx, rec))
	}

	t.Run("cosine ranking", func(t *testing.T) {
		matches, err := store.VectorSearch(ctx, []float32{1, 0, 0, 0},
			record.VectorSearchConfig{Algorithm: record.SimilarityCosine, Threshold: 0.5, MaxResults: 10}, nil)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, a.ID, matches[0].Record.ID)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
		assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
		for _, m := range matches {
			assert.Equal(t, record.TierWarm, m.Tier)
		}
	})

	t.Run("euclidean", func(t *testing.T) {
		matches, err := store.VectorSearch(ctx, []float32{1, 0, 0, 0},
			record.VectorSearchConfig{Algorithm: record.SimilarityEuclidean, Threshold: 0.9, MaxResults: 10}, nil)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, a.ID, matches[0].Record.ID)
	})

	t.Run("dot product", func(t *testing.T) {
		matches, err := store.VectorSearch(ctx, []float32{2, 0, 0, 0},
			record.VectorSearchConfig{Algorithm: record.SimilarityDotProduct, Threshold: 1.5, MaxResults: 10}, nil)
		require.NoError(t, err)
		require.Len(t, matches, 2) // a: 2.0, b: 1.8
		assert.Equal(t, a.ID, matches[0].Record.ID)
	})

	t.Run("type filter", func(t *testing.T) {
		matches, err := store.VectorSearch(ctx, []float32{0, 1, 0, 0},
			record.VectorSearchConfig{Threshold: 0.5, MaxResults: 10},
			[]record.MemoryType{record.TypeWorking})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, c.ID, matches[0].Record.ID)
	})

	t.Run("max results", func(t *testing.T) {
		matches, err := store.VectorSearch(ctx, []float32{1, 0.5, 0.1, 0},
			record.VectorSearchConfig{Threshold: -10, MaxResults: 1}, nil)
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		_, err := store.VectorSearch(ctx, []float32{1, 0, 0, 0},
			record.VectorSearchConfig{Algorithm: "hamming"}, nil)
		assert.Error(t, err)
	})
}

func TestSetTierAndStubExclusion(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := newTestRecord(record.TypeEpisodic, "archived memory")
	require.NoError(t, store.Create(ctx, rec))
	require.NoError(t, store.SetTier(ctx, rec.ID, record.TierCold, "episodic/2026/08/30/"+rec.ID))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, record.TierCold, got.CurrentTier)
	assert.Equal(t, "episodic/2026/08/30/"+rec.ID, got.ArchiveKey())

	// Cold stubs are invisible to search and vector search.
	_, total, err := store.Search(ctx, record.SearchFilters{}, record.SearchOptions{})
	require.NoError(t, err)
	assert.Zero(t, total)

	matches, err := store.VectorSearch(ctx, []float32{0.5, 0.5, 0, 0},
		record.VectorSearchConfig{Threshold: -1, MaxResults: 10}, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)

	// Restoring clears the stub.
	require.NoError(t, store.SetTier(ctx, rec.ID, record.TierWarm, ""))
	got, err = store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, record.TierWarm, got.CurrentTier)
	assert.Empty(t, got.ArchiveKey())
}

func TestList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	old := newTestRecord(record.TypeSemantic, "old record")
	old.CreatedAt = time.Now().UTC().AddDate(0, 0, -30)
	recent := newTestRecord(record.TypeSemantic, "recent record")
	other := newTestRecord(record.TypeBusiness, "metric record")
	for _, rec := range []*record.Record{old, recent, other} {
		require.NoError(t, store.Create(ctx, rec))
	}

	t.Run("by age", func(t *testing.T) {
		cutoff := time.Now().UTC().AddDate(0, 0, -7)
		recs, err := store.List(ctx, ListOptions{CreatedBefore: &cutoff})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, old.ID, recs[0].ID)
	})

	t.Run("by type", func(t *testing.T) {
		recs, err := store.List(ctx, ListOptions{Types: []record.MemoryType{record.TypeBusiness}})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, other.ID, recs[0].ID)
	})

	t.Run("by tier", func(t *testing.T) {
		recs, err := store.List(ctx, ListOptions{Tiers: []record.Tier{record.TierWarm}})
		require.NoError(t, err)
		assert.Len(t, recs, 3)
	})
}

func TestStats(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	s1 := newTestRecord(record.TypeSemantic, "stat one")
	s2 := newTestRecord(record.TypeWorking, "stat two")
	s2.Importance = record.ImportanceCritical
	require.NoError(t, store.Create(ctx, s1))
	require.NoError(t, store.Create(ctx, s2))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Records)
	assert.Equal(t, int64(1), stats.ByType[record.TypeSemantic])
	assert.Equal(t, int64(1), stats.ByImportance[record.ImportanceCritical])
	assert.Greater(t, stats.SizeBytes, int64(0))
}

func TestHealthCheck(t *testing.T) {
	store := setupTestStore(t)
	assert.True(t, store.HealthCheck(context.Background()).IsHealthy())
}

func TestSimilarityAgreesWithHotTier(t *testing.T) {
	// The SQL cosine function and the in-process helper must agree, since
	// the storage manager merges matches from both tiers.
	store := setupTestStore(t)
	ctx := context.Background()

	rec := newTestRecord(record.TypeSemantic, "agreement")
	rec.Embedding = []float32{0.3, -0.5, 0.8, 0.1}
	require.NoError(t, store.Create(ctx, rec))

	query := []float32{0.25, -0.4, 0.7, 0.2}
	matches, err := store.VectorSearch(ctx, query,
		record.VectorSearchConfig{Threshold: -1, MaxResults: 1}, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// Compare against the shared helper the hot tier uses.
	want := cosineHelper(t, query, rec.Embedding)
	assert.InDelta(t, want, matches[0].Similarity, 1e-6)
	assert.GreaterOrEqual(t, matches[0].Similarity, -1.0)
	assert.LessOrEqual(t, matches[0].Similarity, 1.0)
}

func cosineHelper(t *testing.T, a, b []float32) float64 {
	t.Helper()
	sim, err := embedding.Cosine(a, b)
	require.NoError(t, err)
	return sim
}
