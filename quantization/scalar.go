package quantization

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hupe1980/vecdir/distance"
)

var (
	// ErrInvalidCodeSize is returned when the code size cannot be split evenly
	// into a supported number of bits per component, or the range is empty.
	ErrInvalidCodeSize = errors.New("quantization: invalid code size")
	// ErrDimensionMismatch is returned when a vector has the wrong length.
	ErrDimensionMismatch = errors.New("quantization: dimension mismatch")
	// ErrCodeLength is returned when a code has the wrong length.
	ErrCodeLength = errors.New("quantization: code length mismatch")
	// ErrNonFinite is returned when a vector contains NaN or an infinity.
	ErrNonFinite = errors.New("quantization: vector contains a non-finite component")
)

// Quantizer encodes vectors to fixed-size codes and back.
type Quantizer interface {
	Encode(v []float32) ([]byte, error)
	EncodeTo(dst []byte, v []float32) error
	Decode(code []byte) ([]float32, error)
	DecodeTo(dst []float32, code []byte) error
	Distance(m distance.Metric, query []float32, code []byte) float32
	CodeDistance(m distance.Metric, a, b []byte) float32
	Dimension() int
	CodeSize() int
}

// ScalarQuantizer implements uniform scalar quantization over a fixed range.
// It is immutable and safe for concurrent use. It must not be copied.
type ScalarQuantizer struct {
	dim      int
	codeSize int
	bits     int
	lo, hi   float32
	levels   float32 // 2^bits - 1
	step     float32 // (hi - lo) / levels

	pool sync.Pool // *[]float32 decode scratch
}

var _ Quantizer = (*ScalarQuantizer)(nil)

// NewScalarQuantizer creates a quantizer for dim-component vectors and
// codeSize-byte codes over the range [lo, hi].
func NewScalarQuantizer(dim, codeSize int, lo, hi float32) (*ScalarQuantizer, error) {
	if dim <= 0 || codeSize <= 0 {
		return nil, fmt.Errorf("%w: dimension %d, code size %d", ErrInvalidCodeSize, dim, codeSize)
	}
	if (codeSize*8)%dim != 0 {
		return nil, fmt.Errorf("%w: %d bytes do not divide evenly over %d components", ErrInvalidCodeSize, codeSize, dim)
	}

	bits := codeSize * 8 / dim
	switch bits {
	case 1, 2, 4, 8, 16, 32:
	default:
		return nil, fmt.Errorf("%w: %d bits per component", ErrInvalidCodeSize, bits)
	}

	if bits < 32 && !(lo < hi) {
		return nil, fmt.Errorf("%w: empty range [%g, %g]", ErrInvalidCodeSize, lo, hi)
	}

	q := &ScalarQuantizer{
		dim:      dim,
		codeSize: codeSize,
		bits:     bits,
		lo:       lo,
		hi:       hi,
	}
	if bits < 32 {
		q.levels = float32(uint32(1)<<bits - 1)
		q.step = (hi - lo) / q.levels
	}
	return q, nil
}

// Dimension returns the number of vector components.
func (q *ScalarQuantizer) Dimension() int { return q.dim }

// CodeSize returns the code length in bytes.
func (q *ScalarQuantizer) CodeSize() int { return q.codeSize }

// Bits returns the bits per component.
func (q *ScalarQuantizer) Bits() int { return q.bits }

// Range returns the clamping range.
func (q *ScalarQuantizer) Range() (lo, hi float32) { return q.lo, q.hi }

// Encode quantizes v into a new code.
func (q *ScalarQuantizer) Encode(v []float32) ([]byte, error) {
	code := make([]byte, q.codeSize)
	if err := q.EncodeTo(code, v); err != nil {
		return nil, err
	}
	return code, nil
}

// EncodeTo quantizes v into dst, which must be CodeSize bytes.
func (q *ScalarQuantizer) EncodeTo(dst []byte, v []float32) error {
	if len(v) != q.dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, q.dim, len(v))
	}
	if len(dst) != q.codeSize {
		return fmt.Errorf("%w: expected %d, got %d", ErrCodeLength, q.codeSize, len(dst))
	}
	for _, x := range v {
		if !finite(x) {
			return ErrNonFinite
		}
	}

	switch q.bits {
	case 32:
		for i, x := range v {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(x))
		}
	case 16:
		for i, x := range v {
			binary.BigEndian.PutUint16(dst[i*2:], uint16(q.level(x)))
		}
	case 8:
		for i, x := range v {
			dst[i] = byte(q.level(x))
		}
	default:
		clear(dst)
		perByte := 8 / q.bits
		for i, x := range v {
			shift := 8 - q.bits*(i%perByte+1)
			dst[i/perByte] |= byte(q.level(x)) << shift
		}
	}
	return nil
}

// level clamps x to the range and returns its nearest integer level.
func (q *ScalarQuantizer) level(x float32) uint32 {
	if x <= q.lo {
		return 0
	}
	if x >= q.hi {
		return uint32(q.levels)
	}
	return uint32(math.Round(float64((x - q.lo) / q.step)))
}

// Decode reconstructs an approximate vector from code.
func (q *ScalarQuantizer) Decode(code []byte) ([]float32, error) {
	v := make([]float32, q.dim)
	if err := q.DecodeTo(v, code); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeTo reconstructs code into dst, which must be Dimension long.
func (q *ScalarQuantizer) DecodeTo(dst []float32, code []byte) error {
	if len(code) != q.codeSize {
		return fmt.Errorf("%w: expected %d, got %d", ErrCodeLength, q.codeSize, len(code))
	}
	if len(dst) != q.dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, q.dim, len(dst))
	}
	q.decode(dst, code)
	return nil
}

// component decodes the i-th component of code.
func (q *ScalarQuantizer) component(code []byte, i int) float32 {
	var lvl uint32
	switch q.bits {
	case 32:
		return math.Float32frombits(binary.LittleEndian.Uint32(code[i*4:]))
	case 16:
		lvl = uint32(binary.BigEndian.Uint16(code[i*2:]))
	case 8:
		lvl = uint32(code[i])
	default:
		perByte := 8 / q.bits
		shift := 8 - q.bits*(i%perByte+1)
		lvl = uint32(code[i/perByte]>>shift) & (1<<q.bits - 1)
	}
	return q.lo + float32(lvl)*q.step
}

// Distance returns the distance between an unquantized query and a code.
// The query must be Dimension long and the code CodeSize bytes.
func (q *ScalarQuantizer) Distance(m distance.Metric, query []float32, code []byte) float32 {
	buf := q.scratch()
	defer q.pool.Put(buf)

	v := (*buf)[:q.dim]
	q.decode(v, code)
	return metricFunc(m)(query, v)
}

// CodeDistance returns the distance between two codes.
func (q *ScalarQuantizer) CodeDistance(m distance.Metric, a, b []byte) float32 {
	buf := q.scratch()
	defer q.pool.Put(buf)

	va, vb := (*buf)[:q.dim], (*buf)[q.dim:]
	q.decode(va, a)
	q.decode(vb, b)
	return metricFunc(m)(va, vb)
}

// scratch returns a pooled buffer of two Dimension-long vectors.
func (q *ScalarQuantizer) scratch() *[]float32 {
	if buf, ok := q.pool.Get().(*[]float32); ok {
		return buf
	}
	buf := make([]float32, 2*q.dim)
	return &buf
}

func (q *ScalarQuantizer) decode(dst []float32, code []byte) {
	for i := range dst {
		dst[i] = q.component(code, i)
	}
}

// metricFunc falls back to squared L2 for unknown metrics.
func metricFunc(m distance.Metric) distance.Func {
	fn, err := distance.Provider(m)
	if err != nil {
		return distance.SquaredL2
	}
	return fn
}

func finite(x float32) bool {
	return !math.IsNaN(float64(x)) && !math.IsInf(float64(x), 0)
}
