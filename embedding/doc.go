// Package embedding is the boundary to embedding backends. An Encoder maps
// a batch of texts to fixed-length vectors; Embed drives it batch by batch,
// skipping failed batches and counting what was embedded, and always
// returns L2-normalised rows aligned with the input order.
package embedding
