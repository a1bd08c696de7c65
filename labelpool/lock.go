package labelpool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const lockRetryDelay = 25 * time.Millisecond

var errWouldBlock = errors.New("labelpool: lock held")

// WithLock runs fn while holding an exclusive lock on the file at path,
// creating it if needed. The lock excludes other processes and other
// WithLock calls in this one, and is released on every return path. It
// waits for the holder until ctx is done.
func WithLock(ctx context.Context, path string, fn func() error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("labelpool: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("labelpool: open lock %s: %w", path, err)
	}
	defer f.Close()
	for {
		err = tryLock(f)
		if err == nil {
			break
		}
		if !errors.Is(err, errWouldBlock) {
			return fmt.Errorf("labelpool: lock %s: %w", path, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	defer func() {
		if uerr := unlock(f); uerr != nil && err == nil {
			err = fmt.Errorf("labelpool: unlock %s: %w", path, uerr)
		}
	}()
	return fn()
}
