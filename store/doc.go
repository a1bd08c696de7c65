// Package store persists serialized vector indexes in a SQLite
// vector_storage table, one row per model, and coordinates builders across
// processes with lock rows in vector_storage_locks.
//
// A restored row that fails validation surfaces index.ErrCorrupt; the store
// never falls back to rebuilding on its own, so a damaged container cannot
// silently serve results.
package store
