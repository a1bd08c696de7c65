package dedup

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// Neighbours holds the search results of one batch: for each query row in
// the batch, the neighbour keys and their similarity scores.
type Neighbours struct {
	Keys   [][]int64   `json:"keys"`
	Scores [][]float64 `json:"scores"`
}

// SearchCache persists per-batch neighbour searches so a killed run resumes
// where it stopped. Results are grouped in one bucket per run fingerprint;
// a batch is written once and never updated.
type SearchCache struct {
	db *bbolt.DB
}

// OpenSearchCache opens or creates the cache file at path.
func OpenSearchCache(path string) (*SearchCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("dedup: mkdir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("dedup: open search cache %s: %w", path, err)
	}
	return &SearchCache{db: db}, nil
}

// Close releases the cache file.
func (c *SearchCache) Close() error { return c.db.Close() }

func batchKey(batch int) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(batch))
}

// Get returns the cached results of batch in run.
func (c *SearchCache) Get(run string, batch int) (*Neighbours, bool, error) {
	var out *Neighbours
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(run))
		if b == nil {
			return nil
		}
		data := b.Get(batchKey(batch))
		if data == nil {
			return nil
		}
		out = &Neighbours{}
		return json.Unmarshal(data, out)
	})
	if err != nil {
		return nil, false, fmt.Errorf("dedup: search cache batch %d: %w", batch, err)
	}
	return out, out != nil, nil
}

// Put stores the results of batch in run.
func (c *SearchCache) Put(run string, batch int, n *Neighbours) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(run))
		if err != nil {
			return err
		}
		return b.Put(batchKey(batch), data)
	})
}

// Batches returns how many batches run has cached.
func (c *SearchCache) Batches(run string) (int, error) {
	n := 0
	err := c.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket([]byte(run)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}
