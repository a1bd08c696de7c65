// Package bruteforce provides the exact vector index: every query scans all
// stored vectors and scores them by inner product (or cosine similarity for
// unnormalised input). Equal scores are ordered by ascending key so results
// are deterministic, which makes it the ground truth the approximate indexes
// are measured against.
package bruteforce
