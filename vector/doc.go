// Package vector holds the numeric primitives shared by the dedup and
// retrieval stages:
//   - dot product, cosine similarity, L2 distance and L2 normalisation
//   - little-endian float32 embedding encoding
//   - Matrix, a dense N x D float32 array, and its on-disk cache format
package vector
