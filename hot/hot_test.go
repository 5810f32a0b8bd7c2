package hot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-ai/strata/record"
)

// setupTestStore creates a miniredis instance and returns a connected Store.
func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := NewStore(Options{
		URL: fmt.Sprintf("redis://%s", mr.Addr()),
		TTL: time.Hour,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})
	return store, mr
}

func testRecord(id string, mt record.MemoryType) *record.Record {
	now := time.Now().UTC().Truncate(time.Second)
	return &record.Record{
		ID:           id,
		Type:         mt,
		Title:        "record " + id,
		Content:      map[string]any{"body": "content of " + id},
		Tags:         []string{"test"},
		OwnerAgentID: "agent-1",
		Importance:   record.ImportanceMedium,
		CurrentTier:  record.TierHot,
		Embedding:    []float32{0.1, 0.2, 0.3, 0.4},
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestNewStore(t *testing.T) {
	t.Run("successful connection", func(t *testing.T) {
		mr := miniredis.RunT(t)
		store, err := NewStore(Options{URL: fmt.Sprintf("redis://%s", mr.Addr())})
		require.NoError(t, err)
		require.NotNil(t, store)
		defer store.Close()
	})

	t.Run("invalid URL", func(t *testing.T) {
		_, err := NewStore(Options{URL: "invalid://url"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse Redis URL")
	})

	t.Run("connection failure", func(t *testing.T) {
		_, err := NewStore(Options{
			URL:            "redis://localhost:1",
			ConnectTimeout: 100 * time.Millisecond,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to Redis")
	})
}

func TestStoreRetrieve(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	rec := testRecord("rec-1", record.TypeSemantic)
	rec.Payload = &record.SemanticPayload{Domain: "legal", Facts: []string{"fact one"}}
	require.NoError(t, store.Store(ctx, rec))

	got, err := store.Retrieve(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Title, got.Title)
	assert.Equal(t, rec.Type, got.Type)
	assert.Equal(t, rec.Embedding, got.Embedding)

	payload, ok := got.Payload.(*record.SemanticPayload)
	require.True(t, ok)
	assert.Equal(t, "legal", payload.Domain)
}

func TestRetrieveMiss(t *testing.T) {
	store, _ := setupTestStore(t)
	_, err := store.Retrieve(context.Background(), "absent")
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func TestRetrieveAfterTTLExpiry(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, testRecord("rec-ttl", record.TypeWorking)))
	mr.FastForward(2 * time.Hour)

	_, err := store.Retrieve(ctx, "rec-ttl")
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	t.Run("present entry is replaced", func(t *testing.T) {
		rec := testRecord("rec-2", record.TypeEpisodic)
		require.NoError(t, store.Store(ctx, rec))

		rec.Title = "updated title"
		rec.Version = 2
		require.NoError(t, store.Update(ctx, rec))

		got, err := store.Retrieve(ctx, "rec-2")
		require.NoError(t, err)
		assert.Equal(t, "updated title", got.Title)
		assert.Equal(t, 2, got.Version)
	})

	t.Run("absent entry is not resurrected", func(t *testing.T) {
		err := store.Update(ctx, testRecord("never-cached", record.TypeWorking))
		assert.ErrorIs(t, err, record.ErrNotFound)
	})
}

func TestDelete(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	rec := testRecord("rec-3", record.TypeProcedural)
	require.NoError(t, store.Store(ctx, rec))
	require.NoError(t, store.Delete(ctx, "rec-3"))

	_, err := store.Retrieve(ctx, "rec-3")
	assert.ErrorIs(t, err, record.ErrNotFound)

	// Index entries are gone too.
	recs, _, err := store.Search(ctx, record.SearchFilters{Types: []record.MemoryType{record.TypeProcedural}}, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)

	// Deleting again is a no-op.
	assert.NoError(t, store.Delete(ctx, "rec-3"))
}

func TestSearch(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	a := testRecord("rec-a", record.TypeSemantic)
	b := testRecord("rec-b", record.TypeSemantic)
	b.Importance = record.ImportanceCritical
	b.Tags = []string{"legal"}
	c := testRecord("rec-c", record.TypeWorking)
	for _, rec := range []*record.Record{a, b, c} {
		require.NoError(t, store.Store(ctx, rec))
	}

	t.Run("by type", func(t *testing.T) {
		recs, total, err := store.Search(ctx, record.SearchFilters{Types: []record.MemoryType{record.TypeSemantic}}, 10)
		require.NoError(t, err)
		assert.Len(t, recs, 2)
		assert.Equal(t, 2, total)
	})

	t.Run("by importance", func(t *testing.T) {
		recs, _, err := store.Search(ctx, record.SearchFilters{
			Importance: []record.ImportanceLevel{record.ImportanceCritical},
		}, 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "rec-b", recs[0].ID)
	})

	t.Run("by tag", func(t *testing.T) {
		recs, _, err := store.Search(ctx, record.SearchFilters{Tags: []string{"legal"}}, 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "rec-b", recs[0].ID)
	})

	t.Run("no filter scans everything", func(t *testing.T) {
		recs, total, err := store.Search(ctx, record.SearchFilters{}, 10)
		require.NoError(t, err)
		assert.Len(t, recs, 3)
		assert.Equal(t, 3, total)
	})

	t.Run("total counts past the limit", func(t *testing.T) {
		recs, total, err := store.Search(ctx, record.SearchFilters{}, 2)
		require.NoError(t, err)
		assert.Len(t, recs, 2)
		assert.Equal(t, 3, total)
	})

	t.Run("date window", func(t *testing.T) {
		cutoff := time.Now().Add(time.Hour)
		recs, _, err := store.Search(ctx, record.SearchFilters{CreatedAfter: &cutoff}, 10)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}

func TestVectorSearch(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	a := testRecord("vec-a", record.TypeSemantic)
	a.Embedding = []float32{1, 0, 0, 0}
	b := testRecord("vec-b", record.TypeSemantic)
	b.Embedding = []float32{0.9, 0.1, 0, 0}
	c := testRecord("vec-c", record.TypeWorking)
	c.Embedding = []float32{0, 1, 0, 0}
	for _, rec := range []*record.Record{a, b, c} {
		require.NoError(t, store.Store(ctx, rec))
	}

	t.Run("ranked by similarity", func(t *testing.T) {
		matches, err := store.VectorSearch(ctx, []float32{1, 0, 0, 0}, nil, 0.5, 10)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "vec-a", matches[0].Record.ID)
		assert.Equal(t, "vec-b", matches[1].Record.ID)
		assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
		for _, m := range matches {
			assert.Equal(t, record.TierHot, m.Tier)
		}
	})

	t.Run("type filter", func(t *testing.T) {
		matches, err := store.VectorSearch(ctx, []float32{0, 1, 0, 0}, []record.MemoryType{record.TypeWorking}, 0.5, 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "vec-c", matches[0].Record.ID)
	})

	t.Run("max results cap", func(t *testing.T) {
		matches, err := store.VectorSearch(ctx, []float32{1, 0.5, 0, 0}, nil, -1, 1)
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("stale hash entries are swept", func(t *testing.T) {
		// Expire record values; embedding hash fields have no TTL in Redis,
		// so the search has to prune them itself.
		mr.FastForward(2 * time.Hour)
		matches, err := store.VectorSearch(ctx, []float32{1, 0, 0, 0}, nil, 0.5, 10)
		require.NoError(t, err)
		assert.Empty(t, matches)

		assert.False(t, mr.Exists(embHashKey))
	})
}

func TestStats(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, testRecord("s-1", record.TypeSemantic)))
	require.NoError(t, store.Store(ctx, testRecord("s-2", record.TypeWorking)))

	// One hit, one miss.
	_, err := store.Retrieve(ctx, "s-1")
	require.NoError(t, err)
	_, err = store.Retrieve(ctx, "absent")
	require.ErrorIs(t, err, record.ErrNotFound)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Records)
	assert.Equal(t, int64(1), stats.ByType[record.TypeSemantic])
	assert.Equal(t, int64(1), stats.ByType[record.TypeWorking])
	assert.Equal(t, int64(2), stats.ByImportance[record.ImportanceMedium])
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Greater(t, stats.SizeBytes, int64(0))
}

func TestHealthCheck(t *testing.T) {
	store, mr := setupTestStore(t)

	status := store.HealthCheck(context.Background())
	assert.True(t, status.IsHealthy())

	mr.Close()
	status = store.HealthCheck(context.Background())
	assert.True(t, status.IsUnhealthy())
}
