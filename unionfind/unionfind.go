// Package unionfind implements a disjoint-set forest over the dense index
// range [0, n) as parent and rank arrays.
package unionfind

import "sort"

// Forest partitions [0, n). The final partition depends only on the set of
// Union calls, not their order.
type Forest struct {
	parent []int32
	rank   []uint8
	merges int
}

// New returns n singleton sets.
func New(n int) *Forest {
	f := &Forest{parent: make([]int32, n), rank: make([]uint8, n)}
	for i := range f.parent {
		f.parent[i] = int32(i)
	}
	return f
}

// Len returns the number of elements.
func (f *Forest) Len() int { return len(f.parent) }

// Find returns the root of x, halving the path on the way.
func (f *Forest) Find(x int) int {
	p := f.parent
	for int(p[x]) != x {
		p[x] = p[p[x]]
		x = int(p[x])
	}
	return x
}

// Union merges the sets of a and b and reports whether they were distinct.
func (f *Forest) Union(a, b int) bool {
	ra, rb := f.Find(a), f.Find(b)
	if ra == rb {
		return false
	}
	switch {
	case f.rank[ra] < f.rank[rb]:
		ra, rb = rb, ra
	case f.rank[ra] == f.rank[rb]:
		f.rank[ra]++
	}
	f.parent[rb] = int32(ra)
	f.merges++
	return true
}

// Connected reports whether a and b share a set.
func (f *Forest) Connected(a, b int) bool { return f.Find(a) == f.Find(b) }

// Merges returns how many Union calls joined distinct sets.
func (f *Forest) Merges() int { return f.merges }

// Clusters groups elements by root. Members are ascending and clusters are
// ordered by their smallest member.
func (f *Forest) Clusters() [][]int {
	byRoot := map[int]int{}
	var out [][]int
	for i := range f.parent {
		r := f.Find(i)
		slot, ok := byRoot[r]
		if !ok {
			slot = len(out)
			byRoot[r] = slot
			out = append(out, nil)
		}
		out[slot] = append(out[slot], i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a][0] < out[b][0] })
	return out
}
