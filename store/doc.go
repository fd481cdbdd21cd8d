// Package store is the programmatic boundary of the market-data file
// cache. A [Store] owns one memory tier instance per payload category, one
// durable tier table per category, and the atomic writer whose invalidation
// hook gives writers read-after-write consistency on their own thread.
//
// Reads follow the same flow everywhere: compute the live signature of the
// source file(s), check the memory tier, then the durable tier, then parse
// the raw source and populate both tiers on the way out. Concurrent misses
// for the same key are collapsed into one raw load. Writes go through
// [Store.WriteText], which atomically replaces the file and synchronously
// removes matching entries from both tiers before returning.
//
// Derived values (latest-row-per-key projections, aggregate listings over a
// glob, row counts) are validated by composite signatures over every file
// they depend on. There is no push invalidation: a rewrite simply changes
// the live signature, and the next lookup recomputes. When a derived value
// is a view over an already-cached full table at the identical signature,
// it is populated from that in-memory result instead of re-reading the
// source; this reuse is opportunistic and never required for correctness.
//
// A Store holds no long-lived file or database handles, so it has no Close.
package store
