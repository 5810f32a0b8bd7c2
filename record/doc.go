// Package record defines the core data model for the tiered memory engine.
//
// The central entity is Record, a single memory belonging to an agent. Every
// record carries a memory type (working, episodic, semantic, procedural,
// shared, business), an importance level, its current storage tier, and an
// embedding vector used for similarity search.
//
// Records move between three storage tiers over their lifetime:
//
//   - Hot: TTL-bounded cache for recent, frequently accessed memories
//   - Warm: authoritative relational store with search and vector similarity
//   - Cold: compressed archival storage for aged, rarely accessed memories
//
// Exactly one tier is authoritative for a record at any instant. The hot tier
// may additionally hold a read-through cache copy of a warm-authoritative
// record, never the reverse.
//
// Each memory type carries a type-specific payload variant (see Payload).
// Payload variants form a tagged union; NewPayload and DecodePayload dispatch
// on the memory type rather than switching inline at every call site.
//
// The package also defines the error taxonomy shared by all storage
// components: ErrNotFound, ValidationError, StorageError (tagged with the
// failing tier), and DeleteError (the aggregated outcome of a multi-tier
// delete).
package record
