// Package indexer embeds the ordered corpus once per model and builds the
// model's persistent ANN index over it.
//
// Embeddings are cached as one N x D float32 matrix file per model; the
// index is kept in a per-model SQLite store whose build lock serializes
// concurrent builders. Keys in the index are corpus row positions, so a hit
// maps straight back to the passage. Rows whose embedding failed are zero
// and are left out of the index.
package indexer
