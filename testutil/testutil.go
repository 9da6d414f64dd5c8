package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/vecdir"
	"github.com/hupe1980/vecdir/distance"
)

// RNG is a seeded, goroutine-safe source of test vectors. Two RNGs with the
// same seed produce the same sequence.
type RNG struct {
	mu   sync.Mutex
	seed int64
	src  *rand.Rand
}

// NewRNG returns an RNG seeded with seed.
func NewRNG(seed int64) *RNG {
	return &RNG{seed: seed, src: rand.New(rand.NewSource(seed))}
}

// Reset rewinds r to the start of its sequence.
func (r *RNG) Reset() {
	r.mu.Lock()
	r.src = rand.New(rand.NewSource(r.seed))
	r.mu.Unlock()
}

// Float32 returns a value in [0, 1).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Float32()
}

// FillUniformRange fills dst with values in [lo, hi).
func (r *RNG) FillUniformRange(dst []float32, lo, hi float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fillLocked(dst, lo, hi)
}

func (r *RNG) fillLocked(dst []float32, lo, hi float32) {
	for i := range dst {
		dst[i] = lo + r.src.Float32()*(hi-lo)
	}
}

// matrix returns num vectors of dim components sharing one backing array.
func matrix(num, dim int) [][]float32 {
	data := make([]float32, num*dim)
	rows := make([][]float32, num)
	for i := range rows {
		rows[i] = data[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return rows
}

// UniformRangeVectors returns num vectors with components in [-1, 1).
func (r *RNG) UniformRangeVectors(num, dim int) [][]float32 {
	rows := matrix(num, dim)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range rows {
		r.fillLocked(v, -1, 1)
	}
	return rows
}

// UnitVectors returns num vectors uniformly distributed on the unit sphere.
func (r *RNG) UnitVectors(num, dim int) [][]float32 {
	rows := matrix(num, dim)
	if dim == 0 {
		return rows
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range rows {
		// Redraw the rare all-zero sample.
		for {
			for j := range v {
				v[j] = float32(r.src.NormFloat64())
			}
			if distance.NormalizeL2InPlace(v) {
				break
			}
		}
	}
	return rows
}

// ClusteredVectors returns num vectors drawn around clusters random unit
// centroids with Gaussian noise of the given spread. Vector i belongs to
// cluster i%clusters.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centroids := r.UnitVectors(clusters, dim)
	rows := matrix(num, dim)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, v := range rows {
		c := centroids[i%clusters]
		for j := range v {
			v[j] = c[j] + float32(r.src.NormFloat64())*spread
		}
	}
	return rows
}

// GenerateRecords returns num records with IDs 0..num-1 and uniform
// [-1, 1) vectors of the given dimension.
func GenerateRecords[ID vecdir.Identifier](r *RNG, num, dim int) []vecdir.Record[ID] {
	vectors := r.UniformRangeVectors(num, dim)
	records := make([]vecdir.Record[ID], num)
	for i, v := range vectors {
		records[i] = vecdir.Record[ID]{ID: ID(i), Vector: v}
	}
	return records
}
