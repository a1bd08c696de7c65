package store

import (
	"context"
	"database/sql"
)

const storageDDL = `
CREATE TABLE IF NOT EXISTS vector_storage (
    model_id   TEXT NOT NULL PRIMARY KEY,
    kind       TEXT NOT NULL,
    dim        INTEGER NOT NULL,
    size       INTEGER NOT NULL,
    source     TEXT NOT NULL DEFAULT '',
    "index"    BLOB,
    updated_at INTEGER NOT NULL
)`

const locksDDL = `
CREATE TABLE IF NOT EXISTS vector_storage_locks (
    model_id  TEXT NOT NULL PRIMARY KEY,
    owner     TEXT NOT NULL,
    locked_at INTEGER NOT NULL
)`

func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, ddl := range []string{storageDDL, locksDDL} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}
