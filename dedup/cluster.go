package dedup

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/viant/corpusdedup/index"
	"github.com/viant/corpusdedup/index/hnsw"
	"github.com/viant/corpusdedup/unionfind"
)

// ClusterOptions configures Cluster.
type ClusterOptions struct {
	// Threshold is the minimum similarity for two items to merge.
	Threshold float64
	// K is the neighbour count searched per item, self included. A search
	// whose K-th hit still reaches Threshold is widened until it does not.
	K int
	// BatchSize bounds how many vectors are added or searched at once and
	// is the unit of caching.
	BatchSize int
	// NewIndex returns the similarity index. Defaults to an HNSW graph.
	NewIndex func() index.Index
	// Cache, when set, stores per-batch searches.
	Cache  *SearchCache
	Logger *zap.Logger
}

func (o *ClusterOptions) defaults() error {
	if o.Threshold == 0 {
		o.Threshold = 0.8
	}
	if o.Threshold < 0 || o.Threshold > 1 {
		return fmt.Errorf("dedup: threshold must be in (0, 1], got %v", o.Threshold)
	}
	if o.K <= 0 {
		o.K = 10
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 1000
	}
	if o.NewIndex == nil {
		o.NewIndex = func() index.Index { return hnsw.New(hnsw.DefaultConfig()) }
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return nil
}

// Clustering is the partition produced by Cluster.
type Clustering struct {
	clusters [][]int
	merges   int
	n        int
}

// Clusters returns the clusters, members ascending, ordered by smallest
// member.
func (c *Clustering) Clusters() [][]int { return c.clusters }

// Merges returns how many unions joined two distinct clusters.
func (c *Clustering) Merges() int { return c.merges }

// Items returns the number of clustered items.
func (c *Clustering) Items() int { return c.n }

// Representatives picks one member per cluster uniformly at random with a
// generator seeded by seed, and returns the picks ascending. Singletons
// always keep their only member.
func (c *Clustering) Representatives(seed int64) []int {
	rng := rand.New(rand.NewSource(seed))
	out := make([]int, 0, len(c.clusters))
	for _, members := range c.clusters {
		if len(members) == 1 {
			out = append(out, members[0])
			continue
		}
		out = append(out, members[rng.Intn(len(members))])
	}
	sort.Ints(out)
	return out
}

// Cluster links every pair (i, j), i != j, where the index finds j near i
// with similarity >= Threshold, and returns the connected components. The
// search around i starts at K neighbours and widens while the farthest hit
// still reaches Threshold, so a cluster larger than K cannot hide a
// neighbour from another cluster. Vectors are expected to be L2-normalised.
func Cluster(vectors [][]float32, opts ClusterOptions) (*Clustering, error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	n := len(vectors)
	forest := unionfind.New(n)
	if n == 0 {
		return &Clustering{}, nil
	}
	run := Fingerprint(vectors, opts.K, opts.BatchSize, opts.Threshold)
	var idx index.Index
	for batch, start := 0, 0; start < n; batch, start = batch+1, start+opts.BatchSize {
		end := min(start+opts.BatchSize, n)
		res, err := cachedBatch(opts.Cache, run, batch, end-start)
		if err != nil {
			return nil, err
		}
		if res == nil {
			if idx == nil {
				if idx, err = buildIndex(vectors, opts); err != nil {
					return nil, err
				}
			}
			if res, err = searchBatch(idx, vectors[start:end], opts.K, opts.Threshold); err != nil {
				return nil, err
			}
			if opts.Cache != nil {
				if err := opts.Cache.Put(run, batch, res); err != nil {
					return nil, fmt.Errorf("dedup: cache batch %d: %w", batch, err)
				}
			}
		} else {
			opts.Logger.Debug("search batch from cache", zap.Int("batch", batch))
		}
		for row := range res.Keys {
			self := start + row
			for j, key := range res.Keys[row] {
				if int(key) == self || res.Scores[row][j] < opts.Threshold {
					continue
				}
				if key < 0 || int(key) >= n {
					return nil, fmt.Errorf("dedup: neighbour %d out of range", key)
				}
				forest.Union(self, int(key))
			}
		}
	}
	return &Clustering{clusters: forest.Clusters(), merges: forest.Merges(), n: n}, nil
}

func cachedBatch(cache *SearchCache, run string, batch, rows int) (*Neighbours, error) {
	if cache == nil {
		return nil, nil
	}
	res, ok, err := cache.Get(run, batch)
	if err != nil || !ok {
		return nil, err
	}
	if len(res.Keys) != rows || len(res.Scores) != rows {
		return nil, errors.New("dedup: cached batch does not match its input")
	}
	return res, nil
}

func buildIndex(vectors [][]float32, opts ClusterOptions) (index.Index, error) {
	idx := opts.NewIndex()
	for start := 0; start < len(vectors); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(vectors))
		keys := make([]int64, end-start)
		for i := range keys {
			keys[i] = int64(start + i)
		}
		if err := idx.Add(keys, vectors[start:end]); err != nil {
			return nil, fmt.Errorf("dedup: index batch at %d: %w", start, err)
		}
		opts.Logger.Debug("indexed batch", zap.Int("start", start), zap.Int("end", end))
	}
	return idx, nil
}

func searchBatch(idx index.Index, queries [][]float32, k int, threshold float64) (*Neighbours, error) {
	res := &Neighbours{Keys: make([][]int64, len(queries)), Scores: make([][]float64, len(queries))}
	for i, q := range queries {
		keys, scores, err := searchAbove(idx, q, k, threshold)
		if err != nil {
			return nil, err
		}
		res.Keys[i], res.Scores[i] = keys, scores
	}
	return res, nil
}

// searchAbove doubles k until the farthest hit falls below threshold or the
// whole index is returned.
func searchAbove(idx index.Index, q []float32, k int, threshold float64) ([]int64, []float64, error) {
	total := idx.Len()
	for {
		keys, scores, err := idx.Search(q, k)
		if err != nil {
			return nil, nil, err
		}
		if len(keys) < k || k >= total || scores[len(scores)-1] < threshold {
			return keys, scores, nil
		}
		k = min(2*k, total)
	}
}

// Fingerprint identifies a clustering input so cached searches are only
// reused for the same vectors and search shape.
func Fingerprint(vectors [][]float32, k, batchSize int, threshold float64) string {
	d := xxhash.New()
	var buf [4]byte
	put := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	put(uint32(len(vectors)))
	put(uint32(k))
	put(uint32(batchSize))
	bits := math.Float64bits(threshold)
	put(uint32(bits))
	put(uint32(bits >> 32))
	for _, v := range vectors {
		put(uint32(len(v)))
		for _, f := range v {
			put(math.Float32bits(f))
		}
	}
	return fmt.Sprintf("run-%016x", d.Sum64())
}
