// Package hnsw implements a Hierarchical Navigable Small World graph for
// approximate nearest neighbour search over unit vectors, scored by inner
// product. Node levels come from a seeded generator, so a build over the
// same vectors in the same order yields the same graph.
package hnsw
