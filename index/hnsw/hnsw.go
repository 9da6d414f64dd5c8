// Package hnsw implements a Hierarchical Navigable Small World graph over an
// index.Space.
//
// Nodes are collection handles and every distance is taken from the Space,
// so the graph works directly on quantized codes. Node levels are derived
// from (Seed, handle), which makes a graph rebuilt from the same entries
// identical to one built incrementally.
package hnsw

import (
	"errors"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/vecdir/index"
)

var _ index.Index = (*HNSW)(nil)

// ErrInvalidGraph is returned when an exported graph is inconsistent.
var ErrInvalidGraph = errors.New("hnsw: invalid graph")

// MaxLevel bounds node levels.
const MaxLevel = 31

// Options represents the options for configuring HNSW.
type Options struct {
	// M is the number of links kept per node on upper layers. Layer 0 keeps 2*M.
	// The range 8-48 suits most embeddings; higher M improves recall at the
	// cost of memory and insert time.
	M int

	// EfConstruction is the candidate list size used while inserting.
	EfConstruction int

	// Heuristic selects neighbours with the diversity heuristic instead of
	// simply keeping the M closest.
	Heuristic bool

	// Seed drives level assignment.
	Seed uint64
}

// DefaultOptions are used when no option function overrides them.
var DefaultOptions = Options{
	M:              16,
	EfConstruction: 200,
	Heuristic:      true,
	Seed:           42,
}

type node struct {
	links [][]uint32 // links[l] are the neighbours on layer l
}

func (n *node) level() int {
	return len(n.links) - 1
}

func (n *node) linksAt(level int) []uint32 {
	if level < len(n.links) {
		return n.links[level]
	}
	return nil
}

// HNSW represents the Hierarchical Navigable Small World graph.
// Searches may run concurrently; Add must be serialized by the caller.
type HNSW struct {
	space    index.Space
	opts     Options
	mmax     int     // max links per node on layers > 0
	mmax0    int     // max links per node on layer 0
	ml       float64 // level normalization factor
	entry    uint32
	maxLevel int
	nodes    []node
}

// New creates an empty graph over space.
func New(space index.Space, optFns ...func(o *Options)) *HNSW {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	// M == 1 would divide by log(1) = 0.
	if opts.M < 2 {
		opts.M = 2
	}
	if opts.EfConstruction < opts.M {
		opts.EfConstruction = opts.M
	}

	return &HNSW{
		space: space,
		opts:  opts,
		mmax:  opts.M,
		mmax0: 2 * opts.M,
		ml:    1 / math.Log(float64(opts.M)),
	}
}

// Options returns the effective options.
func (h *HNSW) Options() Options {
	return h.opts
}

// Len returns the number of nodes.
func (h *HNSW) Len() int {
	return len(h.nodes)
}

// Add inserts handle hd, which must equal Len().
func (h *HNSW) Add(hd uint32) error {
	if err := index.CheckNext(hd, len(h.nodes)); err != nil {
		return err
	}
	if int(hd) >= h.space.Len() {
		return fmt.Errorf("hnsw: handle %d outside space of %d entries", hd, h.space.Len())
	}

	level := h.levelFor(hd)
	h.nodes = append(h.nodes, node{links: make([][]uint32, level+1)})

	if len(h.nodes) == 1 {
		h.entry = hd
		h.maxLevel = level
		return nil
	}

	dist := func(o uint32) float32 { return h.space.Distance(hd, o) }

	ep := index.Result{Handle: h.entry, Distance: dist(h.entry)}
	for l := h.maxLevel; l > level; l-- {
		ep = h.greedy(dist, ep, l)
	}

	for l := min(level, h.maxLevel); l >= 0; l-- {
		candidates := h.searchLayer(dist, ep, h.opts.EfConstruction, l).Sorted()

		selected := h.selectNeighbours(candidates, h.opts.M)
		links := make([]uint32, len(selected))
		for i, r := range selected {
			links[i] = r.Handle
		}
		h.nodes[hd].links[l] = links

		for _, nb := range links {
			h.link(nb, hd, l)
		}

		ep = candidates[0]
	}

	if level > h.maxLevel {
		h.entry = hd
		h.maxLevel = level
	}
	return nil
}

// Search returns up to k accepted nodes nearest to query. With a filter the
// candidate list is widened until k accepted nodes are found or the whole
// graph has been considered.
func (h *HNSW) Search(query []float32, k, ef int, filter index.Filter) []index.Result {
	if k <= 0 || len(h.nodes) == 0 {
		return nil
	}
	ef = min(max(ef, k), len(h.nodes))

	dist := func(o uint32) float32 { return h.space.QueryDistance(query, o) }

	ep := index.Result{Handle: h.entry, Distance: dist(h.entry)}
	for l := h.maxLevel; l > 0; l-- {
		ep = h.greedy(dist, ep, l)
	}

	for {
		found := h.searchLayer(dist, ep, ef, 0).Sorted()

		res := found[:0]
		for _, r := range found {
			if filter == nil || filter(r.Handle) {
				res = append(res, r)
			}
		}

		if len(res) >= k || ef >= len(h.nodes) {
			if len(res) > k {
				res = res[:k]
			}
			return res
		}
		ef = min(ef*2, len(h.nodes))
	}
}

// greedy walks layer level towards the nearest node, starting at ep.
func (h *HNSW) greedy(dist func(uint32) float32, ep index.Result, level int) index.Result {
	for changed := true; changed; {
		changed = false
		for _, nb := range h.nodes[ep.Handle].linksAt(level) {
			r := index.Result{Handle: nb, Distance: dist(nb)}
			if index.Less(r, ep) {
				ep = r
				changed = true
			}
		}
	}
	return ep
}

// searchLayer returns a max-heap of the ef nearest nodes found on level.
func (h *HNSW) searchLayer(dist func(uint32) float32, ep index.Result, ef, level int) *index.PriorityQueue {
	visited := bitset.New(uint(len(h.nodes)))
	visited.Set(uint(ep.Handle))

	candidates := index.NewPriorityQueue(false, ef)
	candidates.Push(ep)

	top := index.NewPriorityQueue(true, ef)
	top.Push(ep)

	for candidates.Len() > 0 {
		c, _ := candidates.Pop()
		worst, _ := top.Top()
		if c.Distance > worst.Distance && top.Len() >= ef {
			break
		}

		for _, nb := range h.nodes[c.Handle].linksAt(level) {
			if visited.Test(uint(nb)) {
				continue
			}
			visited.Set(uint(nb))

			r := index.Result{Handle: nb, Distance: dist(nb)}
			if top.PushBounded(r, ef) {
				candidates.Push(r)
			}
		}
	}

	return top
}

// selectNeighbours picks up to m links from candidates sorted nearest first.
func (h *HNSW) selectNeighbours(candidates []index.Result, m int) []index.Result {
	if len(candidates) <= m {
		return candidates
	}
	if !h.opts.Heuristic {
		return candidates[:m]
	}

	selected := make([]index.Result, 0, m)
	var pruned []index.Result

	for _, c := range candidates {
		if len(selected) >= m {
			break
		}

		keep := true
		for _, s := range selected {
			if h.space.Distance(s.Handle, c.Handle) < c.Distance {
				keep = false
				break
			}
		}

		if keep {
			selected = append(selected, c)
		} else {
			pruned = append(pruned, c)
		}
	}

	// Top up with pruned candidates to keep the graph well connected.
	for _, p := range pruned {
		if len(selected) >= m {
			break
		}
		selected = append(selected, p)
	}

	return selected
}

// link adds second to first's neighbours on level, shrinking the list when it
// exceeds the layer's capacity.
func (h *HNSW) link(first, second uint32, level int) {
	maxConn := h.mmax
	if level == 0 {
		maxConn = h.mmax0
	}

	links := append(h.nodes[first].links[level], second)
	if len(links) > maxConn {
		candidates := make([]index.Result, len(links))
		for i, o := range links {
			candidates[i] = index.Result{Handle: o, Distance: h.space.Distance(first, o)}
		}
		index.SortResults(candidates)

		selected := h.selectNeighbours(candidates, maxConn)
		links = make([]uint32, len(selected))
		for i, r := range selected {
			links[i] = r.Handle
		}
	}
	h.nodes[first].links[level] = links
}

// levelFor draws the level of handle hd from an exponential distribution
// keyed by (Seed, hd).
func (h *HNSW) levelFor(hd uint32) int {
	x := splitmix64(h.opts.Seed ^ (uint64(hd) * 0x9e3779b97f4a7c15))
	u := float64(x>>11) / (1 << 53) // [0, 1)
	level := int(math.Floor(-math.Log(1-u) * h.ml))
	return min(level, MaxLevel)
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
