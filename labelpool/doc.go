// Package labelpool accumulates, per query, the passages retrieved by every
// model and mode into one deduplicated pool kept in first-seen order.
//
// Several processes may add to the same pool file at once, one per (query
// file, model) pair. Each read-merge-write cycle holds an exclusive lock on
// a sidecar lock file, so no contribution is lost.
package labelpool
