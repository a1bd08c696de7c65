package tree

import (
	"container/heap"
	"math"
	"sort"
	"sync"
)

type node struct {
	point    *Point
	level    int32
	children []*node
	radius   float32
}

// Tree is a cover tree over keyed points. Every node caches the radius of its
// subtree (an upper bound on the distance from the node to any descendant),
// which makes best-first kNN exact for a true metric regardless of how
// balanced the insertions left the tree.
type Tree struct {
	mu     sync.RWMutex
	base   float64
	metric Metric
	dist   DistanceFunc
	root   *node
	points []*Point
	dirty  bool
}

// New returns an empty tree. base <= 1 falls back to 1.3.
func New(base float64, metric Metric) *Tree {
	if base <= 1 {
		base = 1.3
	}
	if metric != Cosine {
		metric = Euclidean
	}
	return &Tree{base: base, metric: metric, dist: metric.Func()}
}

// Base returns the level base.
func (t *Tree) Base() float64 { return t.base }

// Metric returns the distance metric.
func (t *Tree) Metric() Metric { return t.metric }

// Len returns the number of inserted points.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.points)
}

// Points returns the points in insertion order.
func (t *Tree) Points() []*Point {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Point(nil), t.points...)
}

func (t *Tree) cover(level int32) float32 {
	return float32(math.Pow(t.base, float64(level)))
}

// Insert adds p to the tree.
func (t *Tree) Insert(p *Point) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.points = append(t.points, p)
	t.dirty = true
	if t.root == nil {
		t.root = &node{point: p}
		return
	}
	d := t.dist(p, t.root.point)
	for d > t.cover(t.root.level) {
		t.root.level++
	}
	n := t.root
	for {
		var next *node
		for _, child := range n.children {
			if t.dist(p, child.point) <= t.cover(child.level) {
				next = child
				break
			}
		}
		if next == nil {
			n.children = append(n.children, &node{point: p, level: n.level - 1})
			return
		}
		n = next
	}
}

func (t *Tree) computeRadius(n *node) float32 {
	n.radius = 0
	for _, child := range n.children {
		if r := t.dist(n.point, child.point) + t.computeRadius(child); r > n.radius {
			n.radius = r
		}
	}
	return n.radius
}

func (t *Tree) ensureRadii() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirty && t.root != nil {
		t.computeRadius(t.root)
	}
	t.dirty = false
}

type candidate struct {
	node  *node
	dist  float32
	bound float32
}

type frontier []candidate

func (f frontier) Len() int           { return len(f) }
func (f frontier) Less(i, j int) bool { return f[i].bound < f[j].bound }
func (f frontier) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)        { *f = append(*f, x.(candidate)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	x := old[n-1]
	*f = old[:n-1]
	return x
}

// KNearest returns up to k neighbours of q ordered by ascending distance,
// ties by ascending key. k <= 0 returns every point.
func (t *Tree) KNearest(q *Point, k int) []Neighbor {
	t.ensureRadii()
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.root == nil {
		return nil
	}
	if k <= 0 || k > len(t.points) {
		k = len(t.points)
	}
	best := &hits{}
	queue := &frontier{}
	push := func(n *node) {
		d := t.dist(q, n.point)
		bound := d - n.radius
		if bound < 0 {
			bound = 0
		}
		heap.Push(queue, candidate{node: n, dist: d, bound: bound})
	}
	push(t.root)
	for queue.Len() > 0 {
		c := heap.Pop(queue).(candidate)
		if best.Len() == k && c.bound > (*best)[0].Distance {
			break
		}
		hit := Neighbor{Point: c.node.point, Distance: c.dist}
		if best.Len() < k {
			heap.Push(best, hit)
		} else if worse((*best)[0], hit) {
			(*best)[0] = hit
			heap.Fix(best, 0)
		}
		for _, child := range c.node.children {
			push(child)
		}
	}
	out := append([]Neighbor(nil), (*best)...)
	sort.Slice(out, func(i, j int) bool { return worse(out[j], out[i]) })
	return out
}
