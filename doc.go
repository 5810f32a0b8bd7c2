// Package strata is a tiered memory-storage engine for autonomous agents.
//
// Records live across three tiers: a Redis hot cache, an authoritative
// SQLite warm store, and a compressed filesystem cold archive. An Engine
// composes the tiers behind one CRUD-and-search surface, and two background
// engines keep placement honest: migration demotes aging records and
// promotes revived ones, and consolidation folds near-duplicate records
// together.
//
// # Quick start
//
//	engine, err := strata.New(
//		strata.WithConfig("strata.yaml"),
//		strata.WithLogger(logger),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Shutdown(context.Background())
//
//	id, err := engine.Create(ctx, record.CreateInput{
//		Type:         record.TypeSemantic,
//		Title:        "GDPR retention rules",
//		Content:      map[string]any{"retention": "30 days"},
//		Tags:         []string{"legal"},
//		OwnerAgentID: "agent-1",
//		Importance:   record.ImportanceHigh,
//	})
//
//	rec, err := engine.Retrieve(ctx, id)
//
// # Packages
//
//   - record: the data model, payload variants, and error taxonomy
//   - embedding: embedding providers and similarity math
//   - hot, warm, cold: the three tier stores
//   - storage: the tier-spanning manager
//   - migration, consolidate: the background engines
//   - scheduler: the periodic runner driving them
//   - config: strata.yaml loading
//
// Applications that need finer control can construct the tier stores and
// storage.Manager directly; Engine is a convenience composition.
package strata
