package index

import "errors"

var (
	// ErrCorrupt is returned when a persisted index fails validation on
	// restore. It is fatal for the stage: the index must be rebuilt
	// explicitly, never silently searched.
	ErrCorrupt = errors.New("index: corrupt index data")

	// ErrDimMismatch is returned when a vector or query does not match the
	// index dimension.
	ErrDimMismatch = errors.New("index: dimension mismatch")

	// ErrDuplicateKey is returned when Add receives a key already present.
	ErrDuplicateKey = errors.New("index: duplicate key")
)

// Index defines a vector index keyed by caller-assigned int64 keys
// (typically corpus positions). Vectors are expected to be L2-normalised so
// that inner product equals cosine similarity.
type Index interface {
	// Add inserts vectors under the given keys. keys and vectors must have
	// the same length and every vector must match the index dimension (the
	// first Add fixes it).
	Add(keys []int64, vectors [][]float32) error

	// Search returns up to k keys ordered by decreasing similarity, with
	// their scores as a parallel slice. k <= 0 returns every candidate the
	// index produces.
	Search(query []float32, k int) (keys []int64, scores []float64, err error)

	// Len returns the number of indexed vectors.
	Len() int

	// Dim returns the vector dimension, 0 while empty.
	Dim() int

	// MarshalBinary serializes the index into a self-contained container.
	MarshalBinary() ([]byte, error)

	// UnmarshalBinary restores the index from a container produced by
	// MarshalBinary, returning ErrCorrupt on any validation failure.
	UnmarshalBinary(data []byte) error
}
