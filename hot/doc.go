// Package hot implements the hot storage tier on Redis.
//
// The hot tier is a TTL-bounded cache keyed by record id. Alongside the
// record values it maintains:
//
//   - set indexes by memory type and importance level for coarse filtering
//   - a hash from record id to embedding blob for brute-force cosine search
//   - hit/miss counters for cache statistics
//
// The hot tier is never authoritative for a warm-tier record: entries here
// are read-through cache copies populated by the storage manager, invalidated
// by TTL expiry or by the next update. A record whose current tier is HOT is
// the exception, holding its authoritative copy until migration demotes it.
//
// All failures are reported as-is; the storage manager decides whether a hot
// tier failure is fatal (never, for reads) or merely logged (cache writes).
package hot
