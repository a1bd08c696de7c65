package tree

import "github.com/viant/vec/search"

// Point is a keyed vector stored in the tree.
type Point struct {
	Key    int64
	Vector []float32
	mag    float32
}

// NewPoint returns a point with its magnitude cached.
func NewPoint(key int64, vector []float32) *Point {
	return &Point{Key: key, Vector: vector, mag: search.Float32s(vector).Magnitude()}
}

func (p *Point) magnitude() float32 {
	if p.mag == 0 && len(p.Vector) > 0 {
		p.mag = search.Float32s(p.Vector).Magnitude()
	}
	return p.mag
}

// Neighbor is a search hit.
type Neighbor struct {
	Point    *Point
	Distance float32
}

// worse orders hits by distance, then key, so equal distances resolve to the
// smaller key deterministically.
func worse(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.Point.Key > b.Point.Key
}

// hits is a max-heap keeping the current worst hit at the top.
type hits []Neighbor

func (h hits) Len() int           { return len(h) }
func (h hits) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h hits) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hits) Push(x any)        { *h = append(*h, x.(Neighbor)) }
func (h *hits) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
