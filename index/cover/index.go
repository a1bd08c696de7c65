package cover

import (
	"fmt"
	"math"

	"github.com/viant/corpusdedup/index"
	"github.com/viant/corpusdedup/internal/cover/tree"
	"github.com/viant/corpusdedup/vector"
)

// DefaultBase is the cover tree level base.
const DefaultBase = 1.3

// Index is a cover-tree backed exact index over int64 keys.
type Index struct {
	tree *tree.Tree
	dim  int
	seen map[int64]struct{}
}

var _ index.Index = (*Index)(nil)

// New returns an empty index; base <= 1 uses DefaultBase.
func New(base float64) *Index {
	if base <= 1 {
		base = DefaultBase
	}
	return &Index{tree: tree.New(base, tree.Euclidean), seen: map[int64]struct{}{}}
}

// Add inserts vectors under keys.
func (i *Index) Add(keys []int64, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("cover: keys and vectors length mismatch: %d != %d", len(keys), len(vectors))
	}
	dim := i.dim
	batch := make(map[int64]struct{}, len(keys))
	for j, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) == 0 || len(v) != dim {
			return fmt.Errorf("%w: vector %d has dim %d, index dim %d", index.ErrDimMismatch, j, len(v), dim)
		}
		_, dup := i.seen[keys[j]]
		if _, again := batch[keys[j]]; dup || again {
			return fmt.Errorf("%w: %d", index.ErrDuplicateKey, keys[j])
		}
		batch[keys[j]] = struct{}{}
	}
	i.dim = dim
	for j, v := range vectors {
		i.seen[keys[j]] = struct{}{}
		i.tree.Insert(tree.NewPoint(keys[j], v))
	}
	return nil
}

// Search returns up to k keys ordered by ascending distance (descending
// score), ties by ascending key.
func (i *Index) Search(query []float32, k int) ([]int64, []float64, error) {
	if i.tree.Len() == 0 {
		return nil, nil, nil
	}
	if len(query) != i.dim {
		return nil, nil, fmt.Errorf("%w: query dim %d != index dim %d", index.ErrDimMismatch, len(query), i.dim)
	}
	found := i.tree.KNearest(tree.NewPoint(-1, query), k)
	keys := make([]int64, len(found))
	scores := make([]float64, len(found))
	for n, hit := range found {
		keys[n] = hit.Point.Key
		scores[n] = vector.Dot(query, hit.Point.Vector)
	}
	return keys, scores, nil
}

// Len returns the number of indexed vectors.
func (i *Index) Len() int { return i.tree.Len() }

// Dim returns the index dimension.
func (i *Index) Dim() int { return i.dim }

// MarshalBinary stores base(f64 bits), dim(u32), n(u64) and the points in
// insertion order, sealed in a COV1 container. Restoring replays the
// insertions, so the rebuilt tree has the same shape.
func (i *Index) MarshalBinary() ([]byte, error) {
	points := i.tree.Points()
	w := &index.Writer{Buf: make([]byte, 0, 20+len(points)*(8+4*i.dim))}
	w.U64(math.Float64bits(i.tree.Base()))
	w.U32(uint32(i.dim))
	w.U64(uint64(len(points)))
	for _, p := range points {
		w.I64(p.Key)
		w.F32s(p.Vector)
	}
	return index.Seal(index.KindCover, w.Buf), nil
}

// UnmarshalBinary restores the index from a COV1 container.
func (i *Index) UnmarshalBinary(data []byte) error {
	payload, err := index.Open(index.KindCover, data)
	if err != nil {
		return err
	}
	r := index.NewReader(payload)
	base := math.Float64frombits(r.U64())
	dim := int(r.U32())
	n := r.U64()
	if r.Err == nil && n > 0 && dim == 0 {
		return fmt.Errorf("%w: cover: %d points without a dimension", index.ErrCorrupt, n)
	}
	if r.Err == nil && n > uint64(len(payload))/uint64(8+4*dim) {
		return fmt.Errorf("%w: cover: %d points cannot fit payload", index.ErrCorrupt, n)
	}
	if math.IsNaN(base) || base <= 1 {
		return fmt.Errorf("%w: cover: invalid base %v", index.ErrCorrupt, base)
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
	restored := New(base)
	if err := restored.Add(keys, vecs); err != nil {
		return fmt.Errorf("%w: cover: %v", index.ErrCorrupt, err)
	}
	restored.dim = dim
	*i = *restored
	return nil
}
