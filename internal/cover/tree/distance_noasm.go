//go:build !arm64

package tree

import "github.com/viant/vec/search"

// cosineDistanceWithMagnitude forwards to viant/vec, which exports the
// precomputed-magnitude cosine as CosineDistanceWithMagnitudesNeon on
// non-arm64 platforms.
func cosineDistanceWithMagnitude(v search.Float32s, vec []float32, m1, m2 float32) float32 {
	return v.CosineDistanceWithMagnitudesNeon(vec, m1, m2)
}
