package tree

import "github.com/viant/vec/search"

// Metric names a distance the tree can be built over.
type Metric string

const (
	// Euclidean is a true metric; pruning on it is exact.
	Euclidean Metric = "euclidean"
	// Cosine is 1 - cosine similarity. It does not satisfy the triangle
	// inequality, so pruning on it is approximate.
	Cosine Metric = "cosine"
)

// DistanceFunc computes the distance between two points.
type DistanceFunc func(p1, p2 *Point) float32

// Func resolves the metric, falling back to Euclidean for unknown names.
func (m Metric) Func() DistanceFunc {
	if m == Cosine {
		return cosineDistance
	}
	return euclideanDistance
}

func cosineDistance(p1, p2 *Point) float32 {
	return cosineDistanceWithMagnitude(search.Float32s(p1.Vector), p2.Vector, p1.magnitude(), p2.magnitude())
}

func euclideanDistance(p1, p2 *Point) float32 {
	return search.Float32s(p1.Vector).EuclideanDistance(p2.Vector)
}
