package vecdir

import (
	"fmt"
	"math"

	"github.com/hupe1980/vecdir/distance"
)

// Metric selects the distance function used for search.
type Metric = distance.Metric

const (
	// MetricL2 is squared Euclidean distance.
	MetricL2 = distance.MetricL2
	// MetricCosine is 1 - cosine similarity.
	MetricCosine = distance.MetricCosine
	// MetricDot is the negated dot product, so smaller is closer.
	MetricDot = distance.MetricDot
)

// IndexKind selects the nearest-neighbor index strategy.
type IndexKind uint8

const (
	// IndexAuto scans linearly below Config.FlatThreshold entries and builds
	// an HNSW graph once the threshold is reached.
	IndexAuto IndexKind = iota
	// IndexFlat always scans linearly. Results are exact over the codes.
	IndexFlat
	// IndexHNSW maintains an HNSW graph from the first insert.
	IndexHNSW
)

func (k IndexKind) String() string {
	switch k {
	case IndexAuto:
		return "auto"
	case IndexFlat:
		return "flat"
	case IndexHNSW:
		return "hnsw"
	default:
		return fmt.Sprintf("IndexKind(%d)", uint8(k))
	}
}

// ParseIndexKind parses "auto", "flat" or "hnsw".
func ParseIndexKind(s string) (IndexKind, error) {
	switch s {
	case "auto", "":
		return IndexAuto, nil
	case "flat":
		return IndexFlat, nil
	case "hnsw":
		return IndexHNSW, nil
	default:
		return 0, fmt.Errorf("%w: unknown index kind %q", ErrInvalidConfig, s)
	}
}

// Limits of the persisted config fields.
const (
	maxM       = 1 << 14
	maxEf      = math.MaxUint16
	maxEntries = math.MaxUint32
)

// Config holds the quantization and index parameters of a collection. It is
// fixed at creation and persisted with the collection.
type Config struct {
	// Metric is the distance function.
	Metric Metric

	// Index selects the index strategy.
	Index IndexKind

	// M is the HNSW fan-out on upper layers. Layer 0 keeps 2*M links.
	M int

	// EfConstruction is the HNSW candidate list size while inserting.
	EfConstruction int

	// EfSearch is the HNSW candidate list size while searching. It is raised
	// to k when smaller.
	EfSearch int

	// FlatThreshold is the entry count at which IndexAuto switches from a
	// linear scan to HNSW.
	FlatThreshold int

	// Seed drives HNSW level assignment.
	Seed uint64

	// RangeMin and RangeMax bound the quantized component range. Components
	// outside are clamped. Ignored at 32 bits per component.
	RangeMin float32
	RangeMax float32
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Metric:         MetricL2,
		Index:          IndexAuto,
		M:              16,
		EfConstruction: 200,
		EfSearch:       64,
		FlatThreshold:  4096,
		Seed:           42,
		RangeMin:       -1,
		RangeMax:       1,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case !c.Metric.Valid():
		return fmt.Errorf("%w: metric %d", ErrInvalidConfig, c.Metric)
	case c.Index > IndexHNSW:
		return fmt.Errorf("%w: index kind %d", ErrInvalidConfig, c.Index)
	case c.M < 2 || c.M > maxM:
		return fmt.Errorf("%w: M must be in [2, %d], got %d", ErrInvalidConfig, maxM, c.M)
	case c.EfConstruction < 1 || c.EfConstruction > maxEf:
		return fmt.Errorf("%w: EfConstruction must be in [1, %d], got %d", ErrInvalidConfig, maxEf, c.EfConstruction)
	case c.EfSearch < 1 || c.EfSearch > maxEf:
		return fmt.Errorf("%w: EfSearch must be in [1, %d], got %d", ErrInvalidConfig, maxEf, c.EfSearch)
	case c.FlatThreshold < 1 || int64(c.FlatThreshold) > maxEntries:
		return fmt.Errorf("%w: FlatThreshold must be positive, got %d", ErrInvalidConfig, c.FlatThreshold)
	case !isFinite32(c.RangeMin) || !isFinite32(c.RangeMax) || !(c.RangeMin < c.RangeMax):
		return fmt.Errorf("%w: range [%v, %v]", ErrInvalidConfig, c.RangeMin, c.RangeMax)
	}
	return nil
}

func isFinite32(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}
