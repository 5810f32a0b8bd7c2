package cold

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-ai/strata/record"
)

func setupTestStore(t *testing.T, opts Options) *Store {
	t.Helper()

	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	store, err := NewStore(opts)
	require.NoError(t, err)
	return store
}

func newTestRecord(mt record.MemoryType, title string) *record.Record {
	created := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	return &record.Record{
		ID:           uuid.NewString(),
		Type:         mt,
		Title:        title,
		Content:      map[string]any{"body": "archived content for " + title},
		OwnerAgentID: "agent-1",
		Importance:   record.ImportanceLow,
		CurrentTier:  record.TierCold,
		Embedding:    []float32{0.1, 0.2, 0.3},
		Version:      1,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestArchiveAndRetrieve(t *testing.T) {
	store := setupTestStore(t, Options{})
	ctx := context.Background()

	rec := newTestRecord(record.TypeEpisodic, "old deploy log")
	rec.Payload = &record.EpisodicPayload{Event: "deployed v1", Outcome: "success"}

	res, err := store.Archive(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, "episodic/2026/08/15/"+rec.ID, res.Key)
	assert.Greater(t, res.OriginalSize, int64(0))
	assert.Greater(t, res.CompressedSize, int64(0))
	assert.Greater(t, res.CompressionRatio(), 0.0)

	got, err := store.Retrieve(ctx, res.Key)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Title, got.Title)
	assert.Equal(t, rec.Embedding, got.Embedding)
	require.NotNil(t, got.Payload)
	payload := got.Payload.(*record.EpisodicPayload)
	assert.Equal(t, "deployed v1", payload.Event)
}

func TestRetrieveNotFound(t *testing.T) {
	store := setupTestStore(t, Options{})
	_, err := store.Retrieve(context.Background(), "episodic/2026/01/01/missing")
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func TestInvalidKeys(t *testing.T) {
	store := setupTestStore(t, Options{})
	ctx := context.Background()

	for _, key := range []string{
		"",
		"episodic/2026/01/01",
		"episodic/2026/../01/id",
		"episodic//01/01/id",
	} {
		_, err := store.Retrieve(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestDelete(t *testing.T) {
	store := setupTestStore(t, Options{})
	ctx := context.Background()

	rec := newTestRecord(record.TypeWorking, "to delete")
	res, err := store.Archive(ctx, rec)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, res.Key))
	_, err = store.Retrieve(ctx, res.Key)
	assert.ErrorIs(t, err, record.ErrNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, store.Delete(ctx, res.Key))
}

func TestList(t *testing.T) {
	store := setupTestStore(t, Options{})
	ctx := context.Background()

	var keys []string
	for i := 0; i < 5; i++ {
		rec := newTestRecord(record.TypeSemantic, "fact")
		res, err := store.Archive(ctx, rec)
		require.NoError(t, err)
		keys = append(keys, res.Key)
	}
	other := newTestRecord(record.TypeBusiness, "metric")
	_, err := store.Archive(ctx, other)
	require.NoError(t, err)

	t.Run("prefix filter", func(t *testing.T) {
		page, err := store.List(ctx, "semantic/", 0, 0)
		require.NoError(t, err)
		assert.Len(t, page.Keys, 5)
		assert.Equal(t, -1, page.NextOffset)
		for _, k := range page.Keys {
			assert.Contains(t, keys, k)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		page, err := store.List(ctx, "semantic/", 0, 2)
		require.NoError(t, err)
		assert.Len(t, page.Keys, 2)
		assert.Equal(t, 2, page.NextOffset)

		page, err = store.List(ctx, "semantic/", page.NextOffset, 2)
		require.NoError(t, err)
		assert.Len(t, page.Keys, 2)

		page, err = store.List(ctx, "semantic/", 4, 2)
		require.NoError(t, err)
		assert.Len(t, page.Keys, 1)
		assert.Equal(t, -1, page.NextOffset)
	})

	t.Run("offset past end", func(t *testing.T) {
		page, err := store.List(ctx, "semantic/", 100, 2)
		require.NoError(t, err)
		assert.Empty(t, page.Keys)
		assert.Equal(t, -1, page.NextOffset)
	})
}

func TestCleanup(t *testing.T) {
	store := setupTestStore(t, Options{Expiry: 24 * time.Hour})
	ctx := context.Background()

	expired := newTestRecord(record.TypeWorking, "expired")
	// CRITICAL importance does not exempt an object from retention expiry.
	expired.Importance = record.ImportanceCritical
	expiredRes, err := store.Archive(ctx, expired)
	require.NoError(t, err)

	fresh := newTestRecord(record.TypeWorking, "fresh")
	freshRes, err := store.Archive(ctx, fresh)
	require.NoError(t, err)

	// Age the expired object past the retention window.
	expiredPath, err := store.keyPath(expiredRes.Key)
	require.NoError(t, err)
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(expiredPath, old, old))

	res, err := store.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 1, res.Removed)
	assert.Greater(t, res.BytesFreed, int64(0))
	assert.Zero(t, res.FailureCount)

	_, err = store.Retrieve(ctx, expiredRes.Key)
	assert.ErrorIs(t, err, record.ErrNotFound)
	_, err = store.Retrieve(ctx, freshRes.Key)
	assert.NoError(t, err)
}

func TestBulkArchive(t *testing.T) {
	store := setupTestStore(t, Options{BatchSize: 2, BatchDelay: time.Millisecond})
	ctx := context.Background()

	recs := make([]*record.Record, 5)
	for i := range recs {
		recs[i] = newTestRecord(record.TypeEpisodic, "bulk")
	}
	// A record without an id fails without aborting the batch.
	bad := newTestRecord(record.TypeEpisodic, "bad")
	bad.ID = ""
	recs = append(recs, bad)

	results, failures := store.BulkArchive(ctx, recs)
	assert.Len(t, results, 5)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[""], record.ErrInvalidID)

	for _, rec := range recs[:5] {
		_, err := store.Retrieve(ctx, results[rec.ID].Key)
		assert.NoError(t, err)
	}
}

func TestStats(t *testing.T) {
	store := setupTestStore(t, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Archive(ctx, newTestRecord(record.TypeSemantic, "fact"))
		require.NoError(t, err)
	}
	_, err := store.Archive(ctx, newTestRecord(record.TypeBusiness, "metric"))
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Records)
	assert.Greater(t, stats.SizeBytes, int64(0))
	assert.Equal(t, int64(3), stats.ByType[record.TypeSemantic])
	assert.Equal(t, int64(1), stats.ByType[record.TypeBusiness])
}

func TestHealthCheck(t *testing.T) {
	store := setupTestStore(t, Options{})
	assert.True(t, store.HealthCheck(context.Background()).IsHealthy())

	t.Run("missing dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "archive")
		missing := setupTestStore(t, Options{Dir: dir})
		require.NoError(t, os.RemoveAll(dir))
		status := missing.HealthCheck(context.Background())
		assert.Equal(t, record.StatusUnhealthy, status.Status)
	})
}
