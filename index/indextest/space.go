// Package indextest provides an in-memory index.Space for index tests.
package indextest

import (
	"github.com/hupe1980/vecdir/distance"
	"github.com/hupe1980/vecdir/index"
)

var _ index.Space = (*VectorSpace)(nil)

// VectorSpace holds raw vectors and measures distances with a metric.
type VectorSpace struct {
	Vectors [][]float32
	fn      distance.Func
}

// NewVectorSpace creates a squared-L2 space over vectors.
func NewVectorSpace(vectors [][]float32) *VectorSpace {
	return &VectorSpace{Vectors: vectors, fn: distance.SquaredL2}
}

// NewVectorSpaceWithMetric creates a space using metric m.
func NewVectorSpaceWithMetric(vectors [][]float32, m distance.Metric) (*VectorSpace, error) {
	fn, err := distance.Provider(m)
	if err != nil {
		return nil, err
	}
	return &VectorSpace{Vectors: vectors, fn: fn}, nil
}

// Append adds a vector and returns its handle.
func (s *VectorSpace) Append(v []float32) uint32 {
	s.Vectors = append(s.Vectors, v)
	return uint32(len(s.Vectors) - 1)
}

func (s *VectorSpace) Len() int { return len(s.Vectors) }

func (s *VectorSpace) QueryDistance(query []float32, h uint32) float32 {
	return s.fn(query, s.Vectors[h])
}

func (s *VectorSpace) Distance(a, b uint32) float32 {
	return s.fn(s.Vectors[a], s.Vectors[b])
}

// Exact returns the true k nearest handles to query.
func (s *VectorSpace) Exact(query []float32, k int) []index.Result {
	pq := index.NewPriorityQueue(true, k)
	for h := range s.Vectors {
		pq.PushBounded(index.Result{Handle: uint32(h), Distance: s.QueryDistance(query, uint32(h))}, k)
	}
	return pq.Sorted()
}

// Recall returns the fraction of want's handles present in got.
func Recall(want, got []index.Result) float64 {
	if len(want) == 0 {
		if len(got) == 0 {
			return 1
		}
		return 0
	}
	set := make(map[uint32]struct{}, len(want))
	for _, r := range want {
		set[r.Handle] = struct{}{}
	}
	hits := 0
	for _, r := range got {
		if _, ok := set[r.Handle]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}
