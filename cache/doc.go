// Package cache implements the two storage tiers behind the market-data
// file cache: a bounded in-process LRU and a crash-durable SQLite snapshot
// store. Neither tier uses time-to-live; an entry is valid exactly when the
// signature stored with it equals the live signature of its source file,
// recomputed by the caller at lookup time.
//
// # Memory tier
//
// [Memory] is a generic, mutex-guarded LRU keyed by [Key]. Lookups and
// stores move the touched entry to the most-recently-used end; storing
// beyond capacity evicts from the least-recently-used end. Lookup returns a
// defensive copy when a clone function is configured with [WithClone];
// [Memory.LookupShared] skips the copy for callers that promise not to
// mutate the result. Each payload category (JSON documents, tabular
// full-loads, tabular projections, derived values) gets its own instance
// with its own mutex, so distinct categories never contend.
//
// # Durable tier
//
// [Durable] persists serialized payloads in one SQLite table per category
// using [modernc.org/sqlite] (pure Go, no CGO). Every operation opens a
// short-lived connection configured via DSN pragmas (WAL,
// synchronous=NORMAL, bounded busy_timeout), runs a bounded retry on
// transient lock errors, and self-heals a missing table by reinitializing
// the schema and retrying exactly once. Writes are a single
// upsert-then-prune transaction that keeps each table at its configured row
// cap, most recently updated first.
//
// The durable tier is strictly an optimization: every error that survives
// retry and self-healing is logged and degraded to a miss or no-op, so
// correctness never depends on it. [IsBusy], [IsSchemaDrift], and
// [IsProjectionUnavailable] classify errors without string matching at call
// sites.
package cache
