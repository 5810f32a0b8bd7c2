// Package migration moves records between tiers based on age, importance,
// and access pattern.
//
// A sweep scans the warm tier's placement index, scores each candidate, and
// executes moves in priority order. Three rules produce candidates:
//
//   - hot to warm, once a cached record ages past the hot window or a
//     transient record goes a day without a read
//   - warm to cold, once an old, non-critical record's reads classify as
//     rare
//   - cold to warm, when an archived record sees a burst of recent reads
//     ("restore on demand"); this is the only upward rule and always sorts
//     first
//
// Sweeps are single flight: a run started while another is active returns
// an empty report immediately. Within a run, moves execute in bounded
// concurrent batches with a pause between batches, and one record's failure
// never aborts the sweep. There is no cross-process lock; concurrent sweeps
// from two instances are tolerated because a move to an already-current
// tier is a no-op.
package migration
