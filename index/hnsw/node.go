package hnsw

// node is one vector in the graph. Links are internal ids; links[0] is the
// base layer.
type node struct {
	key    int64
	vector []float32
	links  [][]uint32
}

func (n *node) level() int { return len(n.links) - 1 }

type item struct {
	id   uint32
	dist float64
}

// nearer orders by distance, then internal id (insertion order).
func nearer(a, b item) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.id < b.id
}

// minQueue pops the nearest item first.
type minQueue []item

func (q minQueue) Len() int           { return len(q) }
func (q minQueue) Less(i, j int) bool { return nearer(q[i], q[j]) }
func (q minQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *minQueue) Push(x any)        { *q = append(*q, x.(item)) }
func (q *minQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// maxQueue keeps the farthest item on top.
type maxQueue []item

func (q maxQueue) Len() int           { return len(q) }
func (q maxQueue) Less(i, j int) bool { return nearer(q[j], q[i]) }
func (q maxQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *maxQueue) Push(x any)        { *q = append(*q, x.(item)) }
func (q *maxQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
