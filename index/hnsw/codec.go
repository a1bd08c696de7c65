package hnsw

import (
	"fmt"

	"github.com/viant/corpusdedup/index"
)

// MarshalBinary stores the config, dim, node count, entry point and top
// level, then per node its key, level, vector and links, sealed in an HNS1
// container. The graph is restored as-is, without re-insertion.
func (i *Index) MarshalBinary() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	w := &index.Writer{}
	w.U32(uint32(i.cfg.Connectivity))
	w.U32(uint32(i.cfg.ExpansionAdd))
	w.U32(uint32(i.cfg.ExpansionSearch))
	w.I64(i.cfg.Seed)
	w.U32(uint32(i.dim))
	w.U64(uint64(len(i.nodes)))
	w.U32(i.entry)
	w.U32(uint32(i.top + 1))
	for _, n := range i.nodes {
		w.I64(n.key)
		w.U32(uint32(len(n.links)))
		w.F32s(n.vector)
		for _, links := range n.links {
			w.U32(uint32(len(links)))
			for _, id := range links {
				w.U32(id)
			}
		}
	}
	return index.Seal(index.KindHNSW, w.Buf), nil
}

// UnmarshalBinary restores a graph from an HNS1 container.
func (i *Index) UnmarshalBinary(data []byte) error {
	payload, err := index.Open(index.KindHNSW, data)
	if err != nil {
		return err
	}
	r := index.NewReader(payload)
	cfg := Config{
		Connectivity:    int(r.U32()),
		ExpansionAdd:    int(r.U32()),
		ExpansionSearch: int(r.U32()),
		Seed:            r.I64(),
	}
	dim := int(r.U32())
	n := r.U64()
	entry := r.U32()
	top := int(r.U32()) - 1
	if r.Err != nil {
		return r.Err
	}
	if n > 0 && dim == 0 {
		return fmt.Errorf("%w: hnsw: %d nodes without a dimension", index.ErrCorrupt, n)
	}
	if n > uint64(len(payload))/uint64(12+4*dim) {
		return fmt.Errorf("%w: hnsw: %d nodes cannot fit payload", index.ErrCorrupt, n)
	}
	restored := New(cfg)
	restored.dim = dim
	restored.nodes = make([]*node, 0, n)
	for j := uint64(0); j < n && r.Err == nil; j++ {
		nd := &node{key: r.I64()}
		levels := int(r.U32())
		if levels < 1 || levels > maxLevel+1 {
			return fmt.Errorf("%w: hnsw: node %d has %d levels", index.ErrCorrupt, j, levels)
		}
		nd.vector = r.F32s(dim)
		nd.links = make([][]uint32, levels)
		for l := range nd.links {
			cnt := int(r.U32())
			if cnt > 2*restored.cfg.Connectivity {
				return fmt.Errorf("%w: hnsw: node %d level %d has %d links", index.ErrCorrupt, j, l, cnt)
			}
			nd.links[l] = make([]uint32, cnt)
			for c := range nd.links[l] {
				nd.links[l][c] = r.U32()
			}
		}
		if _, dup := restored.byKey[nd.key]; dup {
			return fmt.Errorf("%w: hnsw: duplicate key %d", index.ErrCorrupt, nd.key)
		}
		restored.byKey[nd.key] = uint32(j)
		restored.nodes = append(restored.nodes, nd)
	}
	if err := r.Done(); err != nil {
		return err
	}
	if err := restored.validate(entry, top); err != nil {
		return err
	}
	restored.entry, restored.top = entry, top
	// keep level assignment reproducible for later Adds without replaying
	// the generator
	restored.rng.Seed(cfg.Seed + int64(n))
	*i = Index{
		cfg:   restored.cfg,
		rng:   restored.rng,
		mult:  restored.mult,
		dim:   restored.dim,
		nodes: restored.nodes,
		byKey: restored.byKey,
		entry: restored.entry,
		top:   restored.top,
	}
	return nil
}

func (i *Index) validate(entry uint32, top int) error {
	if len(i.nodes) == 0 {
		if top != -1 {
			return fmt.Errorf("%w: hnsw: empty graph with top level %d", index.ErrCorrupt, top)
		}
		return nil
	}
	if int(entry) >= len(i.nodes) || i.nodes[entry].level() != top {
		return fmt.Errorf("%w: hnsw: invalid entry point %d", index.ErrCorrupt, entry)
	}
	for j, n := range i.nodes {
		for l, links := range n.links {
			for _, id := range links {
				if int(id) >= len(i.nodes) || i.nodes[id].level() < l {
					return fmt.Errorf("%w: hnsw: node %d links to invalid node %d at level %d", index.ErrCorrupt, j, id, l)
				}
			}
		}
	}
	return nil
}
