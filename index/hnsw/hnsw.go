package hnsw

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/viant/corpusdedup/index"
	"github.com/viant/corpusdedup/vector"
)

const maxLevel = 16

// Config holds the graph parameters.
type Config struct {
	// Connectivity is the link budget per node on upper layers; the base
	// layer allows twice as many.
	Connectivity int
	// ExpansionAdd is the candidate list size while inserting.
	ExpansionAdd int
	// ExpansionSearch is the candidate list size while searching; the
	// effective value is never below k.
	ExpansionSearch int
	// Seed drives level assignment.
	Seed int64
}

// DefaultConfig returns connectivity 16, expansion_add 128,
// expansion_search 64 and seed 42.
func DefaultConfig() Config {
	return Config{Connectivity: 16, ExpansionAdd: 128, ExpansionSearch: 64, Seed: 42}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.Connectivity < 2 {
		c.Connectivity = d.Connectivity
	}
	if c.ExpansionAdd <= 0 {
		c.ExpansionAdd = d.ExpansionAdd
	}
	if c.ExpansionSearch <= 0 {
		c.ExpansionSearch = d.ExpansionSearch
	}
	return c
}

// Index is an HNSW graph over int64 keys. Search is safe for concurrent use;
// Add takes an exclusive lock.
type Index struct {
	mu    sync.RWMutex
	cfg   Config
	rng   *rand.Rand
	mult  float64
	dim   int
	nodes []*node
	byKey map[int64]uint32
	entry uint32
	top   int
}

var _ index.Index = (*Index)(nil)

// New returns an empty graph.
func New(cfg Config) *Index {
	cfg = cfg.normalized()
	return &Index{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		mult:  1 / math.Log(float64(cfg.Connectivity)),
		byKey: map[int64]uint32{},
		top:   -1,
	}
}

// Config returns the graph parameters.
func (i *Index) Config() Config { return i.cfg }

// SetExpansionSearch adjusts the search-time candidate list size.
func (i *Index) SetExpansionSearch(ef int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if ef > 0 {
		i.cfg.ExpansionSearch = ef
	}
}

func (i *Index) distance(q []float32, id uint32) float64 {
	return 1 - vector.Dot(q, i.nodes[id].vector)
}

func (i *Index) randomLevel() int {
	l := int(-math.Log(1-i.rng.Float64()) * i.mult)
	if l > maxLevel {
		l = maxLevel
	}
	return l
}

func (i *Index) maxLinks(level int) int {
	if level == 0 {
		return 2 * i.cfg.Connectivity
	}
	return i.cfg.Connectivity
}

// Add inserts vectors under keys in order.
func (i *Index) Add(keys []int64, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("hnsw: keys and vectors length mismatch: %d != %d", len(keys), len(vectors))
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	dim := i.dim
	batch := make(map[int64]struct{}, len(keys))
	for j, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) == 0 || len(v) != dim {
			return fmt.Errorf("%w: vector %d has dim %d, index dim %d", index.ErrDimMismatch, j, len(v), dim)
		}
		_, dup := i.byKey[keys[j]]
		if _, again := batch[keys[j]]; dup || again {
			return fmt.Errorf("%w: %d", index.ErrDuplicateKey, keys[j])
		}
		batch[keys[j]] = struct{}{}
	}
	if len(i.nodes)+len(keys) > math.MaxUint32 {
		return fmt.Errorf("hnsw: capacity exceeded")
	}
	i.dim = dim
	for j, v := range vectors {
		i.insert(keys[j], v, i.randomLevel())
	}
	return nil
}

func (i *Index) insert(key int64, vec []float32, level int) {
	id := uint32(len(i.nodes))
	n := &node{key: key, vector: vec, links: make([][]uint32, level+1)}
	i.nodes = append(i.nodes, n)
	i.byKey[key] = id
	if i.top < 0 {
		i.entry, i.top = id, level
		return
	}
	ep := i.entry
	for l := i.top; l > level; l-- {
		ep = i.greedy(vec, ep, l)
	}
	for l := min(level, i.top); l >= 0; l-- {
		found := i.searchLayer(vec, ep, i.cfg.ExpansionAdd, l)
		neighbours := i.selectNeighbours(found, i.cfg.Connectivity)
		n.links[l] = neighbours
		for _, nb := range neighbours {
			i.link(nb, id, l)
		}
		ep = found[0].id
	}
	if level > i.top {
		i.entry, i.top = id, level
	}
}

// link adds to into from's list at level, shrinking it to the nearest
// maxLinks when it overflows.
func (i *Index) link(from, to uint32, level int) {
	fn := i.nodes[from]
	fn.links[level] = append(fn.links[level], to)
	limit := i.maxLinks(level)
	if len(fn.links[level]) <= limit {
		return
	}
	cands := make([]item, len(fn.links[level]))
	for j, id := range fn.links[level] {
		cands[j] = item{id: id, dist: i.distance(fn.vector, id)}
	}
	sort.Slice(cands, func(a, b int) bool { return nearer(cands[a], cands[b]) })
	fn.links[level] = i.selectNeighbours(cands, limit)
}

// selectNeighbours applies the diversity heuristic to candidates sorted by
// distance, topping up with the nearest rejected ones.
func (i *Index) selectNeighbours(cands []item, m int) []uint32 {
	out := make([]uint32, 0, m)
	var rejected []uint32
	for _, c := range cands {
		if len(out) >= m {
			break
		}
		keep := true
		for _, s := range out {
			if i.distance(i.nodes[c.id].vector, s) < c.dist {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, c.id)
		} else {
			rejected = append(rejected, c.id)
		}
	}
	for _, id := range rejected {
		if len(out) >= m {
			break
		}
		out = append(out, id)
	}
	return out
}

func (i *Index) greedy(q []float32, ep uint32, level int) uint32 {
	cur, best := ep, i.distance(q, ep)
	for changed := true; changed; {
		changed = false
		for _, nb := range i.nodes[cur].links[level] {
			if d := i.distance(q, nb); d < best {
				cur, best, changed = nb, d, true
			}
		}
	}
	return cur
}

// searchLayer returns up to ef nearest items at level, sorted nearest first.
func (i *Index) searchLayer(q []float32, ep uint32, ef, level int) []item {
	visited := map[uint32]struct{}{ep: {}}
	start := item{id: ep, dist: i.distance(q, ep)}
	cands := &minQueue{start}
	found := &maxQueue{start}
	for cands.Len() > 0 {
		c := heap.Pop(cands).(item)
		if found.Len() >= ef && c.dist > (*found)[0].dist {
			break
		}
		for _, nb := range i.nodes[c.id].links[level] {
			if _, ok := visited[nb]; ok {
				continue
			}
			visited[nb] = struct{}{}
			it := item{id: nb, dist: i.distance(q, nb)}
			if found.Len() < ef || nearer(it, (*found)[0]) {
				heap.Push(cands, it)
				heap.Push(found, it)
				if found.Len() > ef {
					heap.Pop(found)
				}
			}
		}
	}
	out := make([]item, found.Len())
	for j := len(out) - 1; j >= 0; j-- {
		out[j] = heap.Pop(found).(item)
	}
	return out
}

// Search returns up to k keys by descending inner product. k <= 0 returns
// every candidate the expansion visits.
func (i *Index) Search(query []float32, k int) ([]int64, []float64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.top < 0 {
		return nil, nil, nil
	}
	if len(query) != i.dim {
		return nil, nil, fmt.Errorf("%w: query dim %d != index dim %d", index.ErrDimMismatch, len(query), i.dim)
	}
	ep := i.entry
	for l := i.top; l > 0; l-- {
		ep = i.greedy(query, ep, l)
	}
	found := i.searchLayer(query, ep, max(i.cfg.ExpansionSearch, k), 0)
	type hit struct {
		key   int64
		score float64
	}
	hits := make([]hit, len(found))
	for j, it := range found {
		hits[j] = hit{key: i.nodes[it.id].key, score: 1 - it.dist}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].key < hits[b].key
	})
	if k <= 0 || k > len(hits) {
		k = len(hits)
	}
	keys := make([]int64, k)
	scores := make([]float64, k)
	for j := 0; j < k; j++ {
		keys[j], scores[j] = hits[j].key, hits[j].score
	}
	return keys, scores, nil
}

// Len returns the number of nodes.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.nodes)
}

// Dim returns the vector dimension.
func (i *Index) Dim() int { return i.dim }
