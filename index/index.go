package index

import (
	"errors"
	"fmt"
	"slices"
)

// ErrOutOfOrder is returned when handles are not added densely in order.
var ErrOutOfOrder = errors.New("index: handles must be added in order")

// Space supplies distances over a collection's entries.
// Handles are dense: every handle in [0, Len()) is valid.
type Space interface {
	// Len returns the number of entries.
	Len() int
	// QueryDistance returns the distance from query to entry h.
	QueryDistance(query []float32, h uint32) float32
	// Distance returns the distance between entries a and b.
	Distance(a, b uint32) float32
}

// Filter reports whether an entry may appear in results. A nil Filter
// accepts everything.
type Filter func(h uint32) bool

// Result is a single search hit.
type Result struct {
	Handle   uint32
	Distance float32
}

// Index is a nearest-neighbor index over a Space.
type Index interface {
	// Add indexes the entry with handle h. Handles must be added in order
	// starting at zero.
	Add(h uint32) error
	// Search returns up to k accepted entries nearest to query. ef bounds the
	// candidate list of approximate indexes and is ignored by exact ones.
	Search(query []float32, k, ef int, filter Filter) []Result
	// Len returns the number of indexed entries.
	Len() int
}

// Less orders results by distance, then by handle.
func Less(a, b Result) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Handle < b.Handle
}

// SortResults sorts results in place by Less.
func SortResults(rs []Result) {
	slices.SortFunc(rs, func(a, b Result) int {
		switch {
		case Less(a, b):
			return -1
		case Less(b, a):
			return 1
		default:
			return 0
		}
	})
}

// CheckNext reports ErrOutOfOrder unless h is the next handle after n indexed entries.
func CheckNext(h uint32, n int) error {
	if int(h) != n {
		return fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, h, n)
	}
	return nil
}
