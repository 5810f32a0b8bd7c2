// Package consolidate reduces groups of highly similar records into fewer
// records.
//
// A run scans each memory type for records older than a per-type minimum
// age, groups records whose embedding cosine similarity exceeds the type's
// threshold, and picks a strategy per group:
//
//   - merge, for small tight groups: the most recent record absorbs
//     references to the others, which are deleted
//   - summarize, for moderate groups: one synthetic record replaces the
//     group, its content pointing at the source ids
//   - prioritize, for large groups: only the top records by recency and
//     size survive
//
// CRITICAL-importance records are never deleted; they do not even enter
// grouping. Runs follow the same single-flight discipline as migration and
// report counts and the estimated bytes saved.
package consolidate
