package migration

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-ai/strata/record"
	"github.com/strata-ai/strata/warm"
)

// fakeMover records the moves a sweep requests, in order.
type fakeMover struct {
	mu    sync.Mutex
	moves []moveCall
	fail  map[string]error
	block chan struct{}
}

type moveCall struct {
	id     string
	target record.Tier
}

func (f *fakeMover) MoveTier(ctx context.Context, id string, target record.Tier) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[id]; ok {
		return err
	}
	f.moves = append(f.moves, moveCall{id: id, target: target})
	return nil
}

func (f *fakeMover) calls() []moveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]moveCall(nil), f.moves...)
}

func setupTestEngine(t *testing.T, mover Mover, thresholds Thresholds) (*Engine, *warm.Store) {
	t.Helper()

	store, err := warm.NewStore(warm.Options{Path: filepath.Join(t.TempDir(), "warm.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine, err := NewEngine(Options{
		Scanner:     store,
		Mover:       mover,
		Thresholds:  thresholds,
		Concurrency: 1,
		BatchDelay:  time.Millisecond,
	})
	require.NoError(t, err)
	return engine, store
}

func seedRecord(t *testing.T, store *warm.Store, tier record.Tier, importance record.ImportanceLevel, age time.Duration, accessCount int64, lastAccess time.Time) string {
	t.Helper()

	now := time.Now().UTC()
	rec := &record.Record{
		ID:             uuid.NewString(),
		Type:           record.TypeSemantic,
		Title:          "seed",
		OwnerAgentID:   "agent-1",
		Importance:     importance,
		CurrentTier:    tier,
		AccessCount:    accessCount,
		LastAccessedAt: lastAccess,
		Version:        1,
		CreatedAt:      now.Add(-age),
		UpdatedAt:      now.Add(-age),
	}
	require.NoError(t, store.Create(context.Background(), rec))
	return rec.ID
}

func TestHotToWarmRules(t *testing.T) {
	mover := &fakeMover{}
	engine, store := setupTestEngine(t, mover, Thresholds{HotToWarmAge: 24 * time.Hour})
	ctx := context.Background()

	aged := seedRecord(t, store, record.TierHot, record.ImportanceMedium, 48*time.Hour, 0, time.Time{})
	idleTransient := seedRecord(t, store, record.TierHot, record.ImportanceTransient, 2*time.Hour, 0, time.Now().Add(-30*time.Hour))
	fresh := seedRecord(t, store, record.TierHot, record.ImportanceMedium, time.Hour, 0, time.Now())

	report, err := engine.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Migrated)
	assert.Zero(t, report.Failed)

	moved := map[string]record.Tier{}
	for _, call := range mover.calls() {
		moved[call.id] = call.target
	}
	assert.Equal(t, record.TierWarm, moved[aged])
	assert.Equal(t, record.TierWarm, moved[idleTransient])
	assert.NotContains(t, moved, fresh)
}

func TestWarmToColdRules(t *testing.T) {
	mover := &fakeMover{}
	engine, store := setupTestEngine(t, mover, Thresholds{WarmToColdAge: 30 * 24 * time.Hour})
	ctx := context.Background()

	dormant := seedRecord(t, store, record.TierWarm, record.ImportanceLow, 60*24*time.Hour, 1, time.Time{})
	// CRITICAL records never demote regardless of age or access count.
	critical := seedRecord(t, store, record.TierWarm, record.ImportanceCritical, 365*24*time.Hour, 0, time.Time{})
	// Regular readers stay warm.
	active := seedRecord(t, store, record.TierWarm, record.ImportanceLow, 60*24*time.Hour, 25, time.Now())

	report, err := engine.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Migrated)

	calls := mover.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, dormant, calls[0].id)
	assert.Equal(t, record.TierCold, calls[0].target)
	_ = critical
	_ = active
}

func TestColdBurstPromotionRunsFirst(t *testing.T) {
	mover := &fakeMover{}
	engine, store := setupTestEngine(t, mover, Thresholds{
		WarmToColdAge: 30 * 24 * time.Hour,
		BurstCount:    5,
		BurstWindow:   time.Hour,
	})
	ctx := context.Background()

	demotion := seedRecord(t, store, record.TierWarm, record.ImportanceLow, 90*24*time.Hour, 0, time.Time{})
	revived := seedRecord(t, store, record.TierCold, record.ImportanceLow, 200*24*time.Hour, 8, time.Now().Add(-5*time.Minute))
	// An archived record without recent reads stays cold.
	dormantCold := seedRecord(t, store, record.TierCold, record.ImportanceLow, 200*24*time.Hour, 8, time.Now().Add(-48*time.Hour))

	report, err := engine.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Migrated)

	calls := mover.calls()
	require.Len(t, calls, 2)
	// The promotion outranks the demotion despite the demotion's far
	// larger age term.
	assert.Equal(t, revived, calls[0].id)
	assert.Equal(t, record.TierWarm, calls[0].target)
	assert.Equal(t, demotion, calls[1].id)
	assert.NotContains(t, []string{calls[0].id, calls[1].id}, dormantCold)
}

func TestPerItemErrorIsolation(t *testing.T) {
	mover := &fakeMover{fail: map[string]error{}}
	engine, store := setupTestEngine(t, mover, Thresholds{HotToWarmAge: 24 * time.Hour})
	ctx := context.Background()

	bad := seedRecord(t, store, record.TierHot, record.ImportanceMedium, 48*time.Hour, 0, time.Time{})
	good := seedRecord(t, store, record.TierHot, record.ImportanceMedium, 72*time.Hour, 0, time.Time{})
	mover.fail[bad] = errors.New("backend unavailable")

	report, err := engine.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Migrated)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, bad, report.Errors[0].ID)
	assert.Contains(t, report.Errors[0].Err, "backend unavailable")

	calls := mover.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, good, calls[0].id)
}

func TestSingleFlight(t *testing.T) {
	mover := &fakeMover{block: make(chan struct{})}
	engine, store := setupTestEngine(t, mover, Thresholds{HotToWarmAge: 24 * time.Hour})
	ctx := context.Background()

	seedRecord(t, store, record.TierHot, record.ImportanceMedium, 48*time.Hour, 0, time.Time{})

	done := make(chan Report, 1)
	go func() {
		report, err := engine.RunNow(ctx)
		assert.NoError(t, err)
		done <- report
	}()

	// Wait for the first sweep to be mid-move, then try to start another.
	require.Eventually(t, engine.IsRunning, time.Second, time.Millisecond)
	_, err := engine.RunNow(ctx)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(mover.block)
	report := <-done
	assert.Equal(t, 1, report.Migrated)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, engine.IsRunning())
}

func TestEmptySweep(t *testing.T) {
	mover := &fakeMover{}
	engine, _ := setupTestEngine(t, mover, Thresholds{})

	report, err := engine.RunNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
	assert.Zero(t, report.Migrated)
	assert.Empty(t, mover.calls())
}
