// Package cache implements the disk cache backing transcode jobs.
//
// Entries map a content key to a local file and a last-access timestamp. The
// index lives in SQLite under the cache root; pin counts are process state,
// so every entry becomes unpinned (and evictable) after a restart. Two
// populations are tracked with independent byte budgets: downloaded sources
// and transcoded outputs.
//
// GetOrFill is the concurrency primitive the orchestrator builds on: for any
// given key, at most one caller produces the entry while the rest wait and
// reuse it, and every caller holds its own pin until Release.
package cache
