// Package engine opens SQLite databases through the pure-Go
// modernc.org/sqlite driver with the pragmas the index store relies on.
package engine
