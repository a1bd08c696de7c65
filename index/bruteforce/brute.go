package bruteforce

import (
	"fmt"
	"math"
	"sort"

	"github.com/viant/corpusdedup/index"
	"github.com/viant/corpusdedup/vector"
)

// Metric selects the similarity the index scores with.
type Metric uint32

const (
	// InnerProduct scores by dot product; equals cosine for unit vectors.
	InnerProduct Metric = iota
	// Cosine normalises by both magnitudes at query time.
	Cosine
)

// Option configures an Index.
type Option func(*Index)

// WithMetric overrides the default InnerProduct metric.
func WithMetric(m Metric) Option {
	return func(i *Index) { i.metric = m }
}

// Index is an exact kNN index over int64 keys.
type Index struct {
	metric Metric
	keys   []int64
	vecs   [][]float32
	mags   []float64
	dim    int
	seen   map[int64]struct{}
}

// New returns an empty exact index.
func New(opts ...Option) *Index {
	i := &Index{seen: map[int64]struct{}{}}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

var _ index.Index = (*Index)(nil)

// Add appends vectors under keys; the vectors are retained, not copied.
func (i *Index) Add(keys []int64, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("bruteforce: keys and vectors length mismatch: %d != %d", len(keys), len(vectors))
	}
	if i.seen == nil {
		i.seen = map[int64]struct{}{}
	}
	dim := i.dim
	batch := make(map[int64]struct{}, len(keys))
	for j, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim || len(v) == 0 {
			return fmt.Errorf("%w: vector %d has dim %d, index dim %d", index.ErrDimMismatch, j, len(v), dim)
		}
		if _, ok := i.seen[keys[j]]; ok {
			return fmt.Errorf("%w: %d", index.ErrDuplicateKey, keys[j])
		}
		if _, ok := batch[keys[j]]; ok {
			return fmt.Errorf("%w: %d", index.ErrDuplicateKey, keys[j])
		}
		batch[keys[j]] = struct{}{}
	}
	i.dim = dim
	for j, v := range vectors {
		i.seen[keys[j]] = struct{}{}
		i.keys = append(i.keys, keys[j])
		i.vecs = append(i.vecs, v)
		i.mags = append(i.mags, vector.Magnitude(v))
	}
	return nil
}

// Search returns the top-k keys by descending score, ties by ascending key.
func (i *Index) Search(query []float32, k int) ([]int64, []float64, error) {
	if len(i.vecs) == 0 {
		return nil, nil, nil
	}
	if len(query) != i.dim {
		return nil, nil, fmt.Errorf("%w: query dim %d != index dim %d", index.ErrDimMismatch, len(query), i.dim)
	}
	qm := 1.0
	if i.metric == Cosine {
		if qm = vector.Magnitude(query); qm == 0 {
			return nil, nil, nil
		}
	}
	type scored struct {
		key   int64
		score float64
	}
	scoreds := make([]scored, 0, len(i.vecs))
	for j, v := range i.vecs {
		s := vector.Dot(query, v)
		if i.metric == Cosine {
			if i.mags[j] == 0 {
				continue
			}
			s /= qm * i.mags[j]
		}
		if math.IsNaN(s) {
			continue
		}
		scoreds = append(scoreds, scored{key: i.keys[j], score: s})
	}
	sort.Slice(scoreds, func(a, b int) bool {
		if scoreds[a].score != scoreds[b].score {
			return scoreds[a].score > scoreds[b].score
		}
		return scoreds[a].key < scoreds[b].key
	})
	if k <= 0 || k > len(scoreds) {
		k = len(scoreds)
	}
	outKeys := make([]int64, k)
	outScores := make([]float64, k)
	for n := 0; n < k; n++ {
		outKeys[n] = scoreds[n].key
		outScores[n] = scoreds[n].score
	}
	return outKeys, outScores, nil
}

// Len returns the number of stored vectors.
func (i *Index) Len() int { return len(i.keys) }

// Dim returns the index dimension.
func (i *Index) Dim() int { return i.dim }

// MarshalBinary stores metric(u32), dim(u32), n(u64), then per item
// key(i64) and vec(float32[dim]), sealed in a BRF1 container.
func (i *Index) MarshalBinary() ([]byte, error) {
	w := &index.Writer{Buf: make([]byte, 0, 16+len(i.keys)*(8+4*i.dim))}
	w.U32(uint32(i.metric))
	w.U32(uint32(i.dim))
	w.U64(uint64(len(i.keys)))
	for j, key := range i.keys {
		w.I64(key)
		w.F32s(i.vecs[j])
	}
	return index.Seal(index.KindBruteForce, w.Buf), nil
}

// UnmarshalBinary restores the index from a BRF1 container.
func (i *Index) UnmarshalBinary(data []byte) error {
	payload, err := index.Open(index.KindBruteForce, data)
	if err != nil {
		return err
	}
	r := index.NewReader(payload)
	metric := Metric(r.U32())
	dim := int(r.U32())
	n := r.U64()
	if r.Err == nil && n > 0 && dim == 0 {
		return fmt.Errorf("%w: bruteforce: %d items without a dimension", index.ErrCorrupt, n)
	}
	if r.Err == nil && n > uint64(len(payload))/uint64(8+4*dim) {
		return fmt.Errorf("%w: bruteforce: %d items cannot fit payload", index.ErrCorrupt, n)
	}
	if metric > Cosine {
		return fmt.Errorf("%w: bruteforce: unknown metric %d", index.ErrCorrupt, metric)
	}
	keys := make([]int64, 0, n)
	vecs := make([][]float32, 0, n)
	for j := uint64(0); j < n && r.Err == nil; j++ {
		keys = append(keys, r.I64())
		vecs = append(vecs, r.F32s(dim))
	}
	if err := r.Done(); err != nil {
		return err
	}
	restored := New(WithMetric(metric))
	if err := restored.Add(keys, vecs); err != nil {
		return fmt.Errorf("%w: bruteforce: %v", index.ErrCorrupt, err)
	}
	restored.dim = dim
	*i = *restored
	return nil
}
