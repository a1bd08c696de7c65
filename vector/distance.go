package vector

import (
	"math"

	"github.com/viant/vec/search"
)

// Dot returns the inner product of a and b accumulated in float64. Both
// vectors must have the same length; extra trailing components of the
// longer vector are ignored.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Magnitude returns the Euclidean norm of v.
func Magnitude(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	return float64(search.Float32s(v).Magnitude())
}

// Normalize scales v in place to unit L2 length. Zero vectors are left
// untouched and reported with false.
func Normalize(v []float32) bool {
	m := Magnitude(v)
	if m == 0 || math.IsNaN(m) || math.IsInf(m, 0) {
		return false
	}
	inv := 1.0 / m
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return true
}
