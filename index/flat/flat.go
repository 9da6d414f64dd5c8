// Package flat provides an exact linear-scan index.
package flat

import (
	"github.com/hupe1980/vecdir/index"
)

var _ index.Index = (*Flat)(nil)

// Flat scans every indexed entry on each search.
// It is safe for concurrent searches; Add must be serialized by the caller.
type Flat struct {
	space index.Space
	n     int
}

// New creates a flat index over space. Existing entries are not indexed
// until they are added.
func New(space index.Space) *Flat {
	return &Flat{space: space}
}

// Add indexes handle h.
func (f *Flat) Add(h uint32) error {
	if err := index.CheckNext(h, f.n); err != nil {
		return err
	}
	f.n++
	return nil
}

// Len returns the number of indexed entries.
func (f *Flat) Len() int {
	return f.n
}

// Search returns the k nearest accepted entries. ef is ignored.
func (f *Flat) Search(query []float32, k, _ int, filter index.Filter) []index.Result {
	if k <= 0 || f.n == 0 {
		return nil
	}

	top := index.NewPriorityQueue(true, min(k, f.n))
	for h := uint32(0); int(h) < f.n; h++ {
		if filter != nil && !filter(h) {
			continue
		}
		top.PushBounded(index.Result{Handle: h, Distance: f.space.QueryDistance(query, h)}, k)
	}
	return top.Sorted()
}
