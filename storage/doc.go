// Package storage orchestrates the three tiers behind one manager.
//
// The warm tier holds the authoritative copy of every record. The hot tier
// is a TTL-bounded read-through cache populated on create and on warm-tier
// read hits. The cold tier holds compressed archives reachable only by the
// archive key stored in warm-tier metadata.
//
// Reads fall through hot to warm to cold; a cold hit re-materializes the
// warm copy so subsequent reads are fast ("restore on read"). Writes go to
// the warm tier first and treat the hot cache as best effort. Deletes are
// attempted on every tier independently and per-tier failures are
// aggregated into a single error.
//
// Example:
//
//	mgr, err := storage.NewManager(storage.Options{
//		Hot:      hotStore,
//		Warm:     warmStore,
//		Cold:     coldStore,
//		Embedder: provider,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer mgr.Close()
//
//	id, err := mgr.Create(ctx, record.CreateInput{
//		Type:         record.TypeSemantic,
//		Title:        "GDPR retention rules",
//		OwnerAgentID: "agent-1",
//	})
package storage
