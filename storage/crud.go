package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strata-ai/strata/record"
)

// Create validates the input, generates the embedding, writes the
// authoritative warm-tier copy, and populates the hot cache in the
// background. Returns the new record's id.
func (m *Manager) Create(ctx context.Context, input record.CreateInput) (string, error) {
	start := time.Now()
	if err := input.Validate(); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	rec := &record.Record{
		ID:           uuid.NewString(),
		Type:         input.Type,
		Category:     input.Category,
		Title:        input.Title,
		Description:  input.Description,
		Content:      input.Content,
		Metadata:     input.Metadata,
		Tags:         input.Tags,
		OwnerAgentID: input.OwnerAgentID,
		Importance:   input.Importance,
		Payload:      input.Payload,
		CurrentTier:  record.TierHot,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if rec.Importance == "" {
		rec.Importance = record.ImportanceMedium
	}

	vec, err := m.embedder.Generate(ctx, rec.EmbeddingText())
	if err != nil {
		return "", fmt.Errorf("storage: generate embedding: %w", err)
	}
	rec.Embedding = vec

	if err := m.warm.Create(ctx, rec); err != nil {
		err = record.NewStorageError(record.TierWarm, "create", err)
		m.metrics.observe(ctx, "create", "warm", start, err)
		return "", err
	}
	m.metrics.observe(ctx, "create", "warm", start, nil)

	// Cache population is fire and forget; a hot-tier failure is logged,
	// never propagated.
	cached := rec.Clone()
	m.spawn(func(ctx context.Context) {
		if err := m.hot.Store(ctx, cached); err != nil {
			m.logger.Warn("hot cache populate failed", "id", cached.ID, "error", err)
		}
	})

	m.logger.Debug("record created", "id", rec.ID, "type", rec.Type, "importance", rec.Importance)
	return rec.ID, nil
}

// Retrieve returns a record by id via the hot, warm, cold fallback chain.
// A warm hit re-populates the hot cache; a cold hit re-materializes the warm
// copy. Every read, cache hits included, bumps the record's access count and
// last-accessed timestamp on the authoritative warm row. Returns
// record.ErrNotFound only when the id is absent from every tier.
func (m *Manager) Retrieve(ctx context.Context, id string) (*record.Record, error) {
	start := time.Now()
	if id == "" {
		return nil, record.ErrInvalidID
	}

	rec, err := m.hot.Retrieve(ctx, id)
	if err == nil {
		m.metrics.observe(ctx, "retrieve", "hot", start, nil)
		// The warm row keeps the access stats the migration rules read;
		// the bump is persisted in the background so a hot hit stays one
		// round trip.
		rec.AccessCount++
		rec.LastAccessedAt = time.Now().UTC()
		m.spawn(func(ctx context.Context) {
			if touchErr := m.warm.Touch(ctx, id); touchErr != nil && !record.IsNotFound(touchErr) {
				m.logger.Warn("access stats update failed", "id", id, "error", touchErr)
			}
		})
		return rec, nil
	}
	if !record.IsNotFound(err) {
		// A hot backend failure falls through to the warm tier.
		m.logger.Warn("hot tier retrieve failed, falling back", "id", id, "error", err)
	}

	rec, err = m.warm.Retrieve(ctx, id)
	if err == nil && rec.CurrentTier != record.TierCold {
		m.metrics.observe(ctx, "retrieve", "warm", start, nil)
		cached := rec.Clone()
		m.spawn(func(ctx context.Context) {
			if storeErr := m.hot.Store(ctx, cached); storeErr != nil {
				m.logger.Warn("hot cache populate failed", "id", cached.ID, "error", storeErr)
			}
		})
		return rec, nil
	}

	switch {
	case err == nil:
		// Warm row is a cold stub; resolve the archive key.
		return m.retrieveCold(ctx, rec, start)
	case record.IsNotFound(err):
		m.metrics.observe(ctx, "retrieve", "warm", start, err)
		return nil, record.ErrNotFound
	default:
		err = record.NewStorageError(record.TierWarm, "retrieve", err)
		m.metrics.observe(ctx, "retrieve", "warm", start, err)
		return nil, err
	}
}

// retrieveCold fetches the archived copy behind a warm stub and restores the
// warm row in the background ("restore on read"). A cold-tier failure
// degrades to not-found for that tier.
func (m *Manager) retrieveCold(ctx context.Context, stub *record.Record, start time.Time) (*record.Record, error) {
	key := stub.ArchiveKey()
	if key == "" {
		m.metrics.observe(ctx, "retrieve", "cold", start, record.ErrNotFound)
		return nil, record.ErrNotFound
	}

	rec, err := m.cold.Retrieve(ctx, key)
	if err != nil {
		if !record.IsNotFound(err) {
			m.logger.Warn("cold tier retrieve failed", "id", stub.ID, "key", key, "error", err)
		}
		m.metrics.observe(ctx, "retrieve", "cold", start, err)
		return nil, record.ErrNotFound
	}
	m.metrics.observe(ctx, "retrieve", "cold", start, nil)

	// Preserve access stats the stub accumulated while the record was
	// archived.
	rec.AccessCount = stub.AccessCount
	rec.LastAccessedAt = stub.LastAccessedAt
	rec.CurrentTier = record.TierWarm
	rec.SetArchiveKey("")

	restored := rec.Clone()
	m.spawn(func(ctx context.Context) {
		if err := m.restoreWarm(ctx, restored, key); err != nil {
			m.logger.Warn("warm restore failed", "id", restored.ID, "error", err)
		}
	})
	return rec, nil
}

// restoreWarm rewrites the warm row from an archived copy, clears the stub
// marker, and removes the now-redundant cold object.
func (m *Manager) restoreWarm(ctx context.Context, rec *record.Record, key string) error {
	if err := m.warm.Update(ctx, rec); err != nil {
		return fmt.Errorf("rewrite warm row: %w", err)
	}
	if err := m.warm.SetTier(ctx, rec.ID, record.TierWarm, ""); err != nil {
		return fmt.Errorf("clear cold stub: %w", err)
	}
	if err := m.cold.Delete(ctx, key); err != nil {
		m.logger.Warn("cold object cleanup failed after restore", "id", rec.ID, "key", key, "error", err)
	}
	return nil
}

// Update applies a partial patch to the authoritative warm copy, bumping the
// version by one. The embedding is regenerated only when the patch touches
// title or content. A hot cache copy, when present, is updated in place. An
// archived record is re-materialized first so the patched copy is what the
// next read returns.
func (m *Manager) Update(ctx context.Context, id string, patch record.UpdatePatch) error {
	start := time.Now()
	if id == "" {
		return record.ErrInvalidID
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	rec, err := m.warm.Get(ctx, id)
	if err != nil {
		if record.IsNotFound(err) {
			return record.ErrNotFound
		}
		return record.NewStorageError(record.TierWarm, "update", err)
	}
	if patch.Payload != nil && patch.Payload.MemoryType() != rec.Type {
		return record.NewValidationError("payload", "variant does not match memory type")
	}
	if rec.CurrentTier == record.TierCold {
		return m.updateCold(ctx, rec, patch, start)
	}

	applyPatch(rec, patch)
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()

	if patch.TouchesEmbedding() {
		vec, err := m.embedder.Generate(ctx, rec.EmbeddingText())
		if err != nil {
			return fmt.Errorf("storage: regenerate embedding: %w", err)
		}
		rec.Embedding = vec
	}

	if err := m.warm.Update(ctx, rec); err != nil {
		err = record.NewStorageError(record.TierWarm, "update", err)
		m.metrics.observe(ctx, "update", "warm", start, err)
		return err
	}
	m.metrics.observe(ctx, "update", "warm", start, nil)

	// Refresh the cache copy only when one exists; an expired entry is not
	// resurrected.
	if err := m.hot.Update(ctx, rec); err != nil && !record.IsNotFound(err) {
		m.logger.Warn("hot cache update failed", "id", id, "error", err)
	}

	m.logger.Debug("record updated", "id", id, "version", rec.Version)
	return nil
}

// updateCold patches a record whose content lives in the cold archive. The
// warm row is only a stub, so patching it in place would leave the stale
// archived copy winning the next read. Instead the archive is resolved to
// the full record, the patch applied on top, and the result restored warm
// synchronously; only then is the update reported as successful.
func (m *Manager) updateCold(ctx context.Context, stub *record.Record, patch record.UpdatePatch, start time.Time) error {
	key := stub.ArchiveKey()
	rec, err := m.fetchArchived(ctx, stub, "update")
	if err != nil {
		m.metrics.observe(ctx, "update", "cold", start, err)
		return err
	}

	applyPatch(rec, patch)
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()

	if patch.TouchesEmbedding() {
		vec, err := m.embedder.Generate(ctx, rec.EmbeddingText())
		if err != nil {
			return fmt.Errorf("storage: regenerate embedding: %w", err)
		}
		rec.Embedding = vec
	}

	if err := m.restoreWarm(ctx, rec, key); err != nil {
		err = record.NewStorageError(record.TierWarm, "update", err)
		m.metrics.observe(ctx, "update", "cold", start, err)
		return err
	}
	m.metrics.observe(ctx, "update", "cold", start, nil)
	m.logger.Debug("archived record updated and restored", "id", rec.ID, "version", rec.Version)
	return nil
}

func applyPatch(rec *record.Record, patch record.UpdatePatch) {
	if patch.Category != nil {
		rec.Category = *patch.Category
	}
	if patch.Title != nil {
		rec.Title = *patch.Title
	}
	if patch.Description != nil {
		rec.Description = *patch.Description
	}
	if patch.Content != nil {
		rec.Content = patch.Content
	}
	if patch.Metadata != nil {
		rec.Metadata = patch.Metadata
	}
	if patch.Tags != nil {
		rec.Tags = *patch.Tags
	}
	if patch.Importance != nil {
		rec.Importance = *patch.Importance
	}
	if patch.Payload != nil {
		rec.Payload = patch.Payload
	}
}

// Delete removes a record from every tier it occupies. Each tier is
// attempted independently; failures are aggregated into a single
// record.DeleteError and tiers that succeeded are not rolled back.
func (m *Manager) Delete(ctx context.Context, id string) error {
	start := time.Now()
	if id == "" {
		return record.ErrInvalidID
	}

	// The warm row is read first to resolve the cold archive key, if any.
	var archiveKey string
	rec, err := m.warm.Get(ctx, id)
	switch {
	case err == nil:
		archiveKey = rec.ArchiveKey()
	case record.IsNotFound(err):
	default:
		return record.NewStorageError(record.TierWarm, "delete", err)
	}

	failures := make(map[record.Tier]error)

	if err := m.hot.Delete(ctx, id); err != nil && !record.IsNotFound(err) {
		failures[record.TierHot] = err
	}
	if err := m.warm.Delete(ctx, id); err != nil && !record.IsNotFound(err) {
		failures[record.TierWarm] = err
	}
	if archiveKey != "" {
		if err := m.cold.Delete(ctx, archiveKey); err != nil && !record.IsNotFound(err) {
			failures[record.TierCold] = err
		}
	}

	if len(failures) > 0 {
		err := &record.DeleteError{ID: id, Failures: failures}
		m.metrics.observe(ctx, "delete", "all", start, err)
		return err
	}
	m.metrics.observe(ctx, "delete", "all", start, nil)
	m.logger.Debug("record deleted", "id", id)
	return nil
}

// flush waits for in-flight background cache work without closing the
// tiers.
func (m *Manager) flush() {
	m.async.Wait()
}
