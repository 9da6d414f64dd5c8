package hnsw

import (
	"fmt"

	"github.com/hupe1980/vecdir/index"
)

// Graph is the persistent form of an HNSW index.
type Graph struct {
	Entry    uint32
	MaxLevel int
	// Links[n][l] lists the neighbours of node n on layer l. len(Links[n])-1
	// is the level of node n.
	Links [][][]uint32
}

// Export returns the graph structure. The returned slices alias the index
// and must not be modified.
func (h *HNSW) Export() Graph {
	links := make([][][]uint32, len(h.nodes))
	for i := range h.nodes {
		links[i] = h.nodes[i].links
	}
	return Graph{Entry: h.entry, MaxLevel: h.maxLevel, Links: links}
}

// Load restores an index from g over space. g is validated and its slices
// are adopted by the index.
func Load(space index.Space, g Graph, optFns ...func(o *Options)) (*HNSW, error) {
	h := New(space, optFns...)

	n := len(g.Links)
	if n > space.Len() {
		return nil, fmt.Errorf("%w: %d nodes for %d entries", ErrInvalidGraph, n, space.Len())
	}
	if n == 0 {
		return h, nil
	}
	if g.MaxLevel < 0 || g.MaxLevel > MaxLevel {
		return nil, fmt.Errorf("%w: max level %d", ErrInvalidGraph, g.MaxLevel)
	}
	if int(g.Entry) >= n || len(g.Links[g.Entry])-1 != g.MaxLevel {
		return nil, fmt.Errorf("%w: entry point %d", ErrInvalidGraph, g.Entry)
	}

	h.nodes = make([]node, n)
	for i, layers := range g.Links {
		if len(layers) == 0 || len(layers)-1 > g.MaxLevel {
			return nil, fmt.Errorf("%w: node %d has %d layers", ErrInvalidGraph, i, len(layers))
		}
		for l, links := range layers {
			for _, nb := range links {
				if int(nb) >= n || int(nb) == i || len(g.Links[nb]) <= l {
					return nil, fmt.Errorf("%w: node %d links to %d on layer %d", ErrInvalidGraph, i, nb, l)
				}
			}
		}
		h.nodes[i] = node{links: layers}
	}
	h.entry = g.Entry
	h.maxLevel = g.MaxLevel

	return h, nil
}

// Stats describes the shape of the graph.
type Stats struct {
	Nodes    int
	MaxLevel int
	Entry    uint32
	// LevelCounts[l] is the number of nodes present on layer l.
	LevelCounts []int
	// Edges[l] is the number of directed links on layer l.
	Edges []int
}

// Stats returns graph statistics.
func (h *HNSW) Stats() Stats {
	s := Stats{
		Nodes:       len(h.nodes),
		MaxLevel:    h.maxLevel,
		Entry:       h.entry,
		LevelCounts: make([]int, h.maxLevel+1),
		Edges:       make([]int, h.maxLevel+1),
	}
	for i := range h.nodes {
		for l, links := range h.nodes[i].links {
			s.LevelCounts[l]++
			s.Edges[l] += len(links)
		}
	}
	return s
}
