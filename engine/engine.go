package engine

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// DefaultBusyTimeout is how long a connection waits on a locked database
// before failing with SQLITE_BUSY.
const DefaultBusyTimeout = 5 * time.Second

// Open opens a SQLite database using the modernc.org/sqlite driver.
//
// For file-based databases, pass a path like "./db.sqlite"; the connection
// gets a busy timeout and WAL journaling so several processes can share it.
// For in-memory databases, pass ":memory:"; the pool is then pinned to one
// connection so every statement sees the same database.
func Open(path string) (*sql.DB, error) {
	return OpenWithTimeout(path, DefaultBusyTimeout)
}

// OpenWithTimeout is Open with an explicit busy timeout.
func OpenWithTimeout(path string, busy time.Duration) (*sql.DB, error) {
	if path == ":memory:" {
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		return db, nil
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return db, nil
}
