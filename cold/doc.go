// Package cold implements the archival storage tier on the local
// filesystem.
//
// Records are serialized to JSON, gzip-compressed, and written under a
// date-partitioned key of the form type/year/month/day/id. The key, not the
// filesystem path, is the tier's public addressing scheme; callers persist
// it in warm-tier metadata and present it back on retrieval.
//
// The cold tier is append-mostly. Records are never updated in place; a
// changed record is re-archived under the same key by the migration engine.
// Cleanup enforces a hard retention window based on archive time alone,
// independent of record importance.
//
// Example:
//
//	store, err := cold.NewStore(cold.Options{Dir: "/var/lib/strata/cold"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	res, err := store.Archive(ctx, rec)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(res.Key, res.CompressionRatio())
package cold
