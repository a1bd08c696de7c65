// Package cover implements an exact kNN index on top of a cover tree.
// Vectors are indexed by Euclidean distance; for unit vectors that ordering
// equals inner-product ordering, and reported scores are inner products.
package cover
