package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/strata-ai/strata/record"
)

// tierPair keys the transition table by (from, to) placement.
type tierPair struct {
	from, to record.Tier
}

// transitions maps each ordered tier pair to the minimal I/O that realizes
// it. The warm row exists for every placement; hot holds a cache copy for
// hot placements and the cold archive holds the content for cold
// placements.
var transitions = map[tierPair]func(m *Manager, ctx context.Context, rec *record.Record) error{
	{record.TierHot, record.TierWarm}:  (*Manager).demoteHotWarm,
	{record.TierHot, record.TierCold}:  (*Manager).demoteToCold,
	{record.TierWarm, record.TierHot}:  (*Manager).promoteWarmHot,
	{record.TierWarm, record.TierCold}: (*Manager).demoteToCold,
	{record.TierCold, record.TierWarm}: (*Manager).restoreColdWarm,
	{record.TierCold, record.TierHot}:  (*Manager).restoreColdHot,
}

// MoveTier moves a record to the target tier. Moving to the tier a record
// already occupies is a no-op, which makes concurrent sweeps over the same
// record safe without a cross-process lock.
func (m *Manager) MoveTier(ctx context.Context, id string, target record.Tier) error {
	start := time.Now()
	if id == "" {
		return record.ErrInvalidID
	}
	if err := target.Validate(); err != nil {
		return err
	}

	rec, err := m.warm.Get(ctx, id)
	if err != nil {
		if record.IsNotFound(err) {
			return record.ErrNotFound
		}
		return record.NewStorageError(record.TierWarm, "move_tier", err)
	}
	if rec.CurrentTier == target {
		return nil
	}

	transition, ok := transitions[tierPair{rec.CurrentTier, target}]
	if !ok {
		return record.NewValidationError("target_tier",
			fmt.Sprintf("no transition from %s to %s", rec.CurrentTier, target))
	}
	err = transition(m, ctx, rec)
	m.metrics.observe(ctx, "move_tier", string(target), start, err)
	if err != nil {
		return err
	}

	m.logger.Debug("record moved", "id", id, "from", rec.CurrentTier, "to", target)
	return nil
}

// demoteHotWarm drops the cache copy; the warm row is already
// authoritative.
func (m *Manager) demoteHotWarm(ctx context.Context, rec *record.Record) error {
	if err := m.hot.Delete(ctx, rec.ID); err != nil && !record.IsNotFound(err) {
		return record.NewStorageError(record.TierHot, "move_tier", err)
	}
	if err := m.warm.SetTier(ctx, rec.ID, record.TierWarm, ""); err != nil {
		return record.NewStorageError(record.TierWarm, "move_tier", err)
	}
	return nil
}

// promoteWarmHot populates the cache copy.
func (m *Manager) promoteWarmHot(ctx context.Context, rec *record.Record) error {
	if err := m.hot.Store(ctx, rec); err != nil {
		return record.NewStorageError(record.TierHot, "move_tier", err)
	}
	if err := m.warm.SetTier(ctx, rec.ID, record.TierHot, ""); err != nil {
		return record.NewStorageError(record.TierWarm, "move_tier", err)
	}
	return nil
}

// demoteToCold archives the record, marks the warm row as a stub holding
// only the archive key, and drops any cache copy. The archive write happens
// before the stub flip so a failure leaves the record fully warm.
func (m *Manager) demoteToCold(ctx context.Context, rec *record.Record) error {
	res, err := m.cold.Archive(ctx, rec)
	if err != nil {
		return record.NewStorageError(record.TierCold, "move_tier", err)
	}

	// The stub keeps searchable fields but sheds the heavy columns; the
	// archived object is now the content of record.
	stub := rec.Clone()
	stub.Content = nil
	stub.Embedding = nil
	stub.Payload = nil
	if err := m.warm.Update(ctx, stub); err != nil {
		return record.NewStorageError(record.TierWarm, "move_tier", err)
	}
	if err := m.warm.SetTier(ctx, rec.ID, record.TierCold, res.Key); err != nil {
		return record.NewStorageError(record.TierWarm, "move_tier", err)
	}

	if err := m.hot.Delete(ctx, rec.ID); err != nil && !record.IsNotFound(err) {
		m.logger.Warn("hot cache eviction failed during archive", "id", rec.ID, "error", err)
	}
	return nil
}

// restoreColdWarm re-materializes the warm row from the archive and removes
// the cold object.
func (m *Manager) restoreColdWarm(ctx context.Context, stub *record.Record) error {
	rec, err := m.fetchArchived(ctx, stub, "move_tier")
	if err != nil {
		return err
	}
	if err := m.restoreWarm(ctx, rec, stub.ArchiveKey()); err != nil {
		return record.NewStorageError(record.TierWarm, "move_tier", err)
	}
	return nil
}

// restoreColdHot restores the warm row and additionally populates the
// cache, for cold records revived by an access burst.
func (m *Manager) restoreColdHot(ctx context.Context, stub *record.Record) error {
	rec, err := m.fetchArchived(ctx, stub, "move_tier")
	if err != nil {
		return err
	}
	if err := m.restoreWarm(ctx, rec, stub.ArchiveKey()); err != nil {
		return record.NewStorageError(record.TierWarm, "move_tier", err)
	}
	if err := m.hot.Store(ctx, rec); err != nil {
		return record.NewStorageError(record.TierHot, "move_tier", err)
	}
	if err := m.warm.SetTier(ctx, rec.ID, record.TierHot, ""); err != nil {
		return record.NewStorageError(record.TierWarm, "move_tier", err)
	}
	return nil
}

// fetchArchived resolves a cold stub to the full archived record, carrying
// over the access stats the stub accumulated. op names the caller's
// operation in storage errors.
func (m *Manager) fetchArchived(ctx context.Context, stub *record.Record, op string) (*record.Record, error) {
	key := stub.ArchiveKey()
	if key == "" {
		return nil, record.ErrNotFound
	}
	rec, err := m.cold.Retrieve(ctx, key)
	if err != nil {
		if record.IsNotFound(err) {
			return nil, record.ErrNotFound
		}
		return nil, record.NewStorageError(record.TierCold, op, err)
	}
	rec.AccessCount = stub.AccessCount
	rec.LastAccessedAt = stub.LastAccessedAt
	rec.CurrentTier = record.TierWarm
	rec.SetArchiveKey("")
	return rec, nil
}
