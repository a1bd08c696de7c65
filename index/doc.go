// Package index defines the retrieval contract shared by the exact and
// approximate vector indexes, plus the checksummed container format they
// persist through. Implementations live in subpackages:
//   - bruteforce: exact scan, the ground-truth baseline
//   - hnsw: graph-based approximate search
//   - cover: cover-tree pruned exact search
package index
