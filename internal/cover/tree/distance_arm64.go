//go:build arm64

package tree

import "github.com/viant/vec/search"

// cosineDistanceWithMagnitude forwards to viant/vec, which exports the
// precomputed-magnitude cosine under this name on arm64.
func cosineDistanceWithMagnitude(v search.Float32s, vec []float32, m1, m2 float32) float32 {
	return v.CosineDistanceWithMagnitude(vec, m1, m2)
}
