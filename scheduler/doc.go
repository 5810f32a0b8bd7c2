// Package scheduler drives the background engines on fixed intervals.
//
// A Runner owns one goroutine per job. Jobs receive a context that is
// canceled on Stop; cancellation is cooperative, and Stop waits a bounded
// time for in-flight runs to finish before giving up. The concrete
// intervals are configuration, not part of any engine's algorithm.
package scheduler
