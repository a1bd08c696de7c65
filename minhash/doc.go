// Package minhash turns text into MinHash signatures over contiguous token
// n-gram shingles.
//
// Each shingle's string form is hashed with xxhash to 32 bits and folded
// through numPerm seeded universal permutations
// ((a*h + b) mod 2^61-1, truncated to 32 bits), keeping the per-permutation
// minimum. Identical text always yields an identical signature. Text with
// fewer tokens than the shingle size has no shingles and yields an empty
// signature.
package minhash
