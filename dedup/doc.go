// Package dedup removes near-duplicates at two granularities.
//
// DocumentDeduper sketches raw documents with MinHash and routes each one to
// a unique or duplicate partition through an LSH index: the first document
// in processing order survives. EmbeddingDeduper embeds chunks, links every
// pair of neighbours whose cosine similarity reaches the threshold in a
// union-find forest and keeps one seeded representative per cluster.
package dedup
