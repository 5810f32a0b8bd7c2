// Package warm implements the warm storage tier on SQLite.
//
// The warm tier holds the authoritative copy of every record. The base
// memories table carries the common fields; each memory type has its own
// sub-record table (working_memories, episodic_memories, semantic_memories,
// procedural_memories, shared_memories, business_memories) written in the
// same transaction as the base row. Sub-record reads and writes dispatch
// through per-type tables rather than a growing switch.
//
// Structured search builds a filtered, paginated query with a configurable
// sort key and returns both the page and the total match count. Vector
// similarity search runs natively in SQL through deterministic scalar
// functions registered with the driver (vec_sim_cosine, vec_sim_euclidean,
// vec_sim_dot) over the embedding BLOB column, so ranking and thresholding
// happen inside the database.
//
// Every Retrieve increments the record's access count and last-accessed
// timestamp as a side effect. Background scans use List, which reads without
// touching access statistics.
//
// After a warm-to-cold migration the row is kept as a lightweight stub: the
// current_tier column flips to cold and the metadata records the archive
// key. Stub rows resolve retrievals by id but are excluded from search and
// vector search.
package warm
