package quantization

import (
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdir/distance"
)

func randomVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = r.Float32()*2 - 1
	}
	return v
}

func TestNewScalarQuantizer(t *testing.T) {
	tests := []struct {
		dim, codeSize int
		bits          int
		ok            bool
	}{
		{128, 32, 2, true},
		{128, 16, 1, true},
		{128, 64, 4, true},
		{128, 128, 8, true},
		{128, 256, 16, true},
		{128, 512, 32, true},
		{128, 48, 3, false},
		{100, 32, 0, false},
		{128, 1024, 64, false},
		{0, 32, 0, false},
		{4, 0, 0, false},
	}

	for _, tt := range tests {
		q, err := NewScalarQuantizer(tt.dim, tt.codeSize, -1, 1)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrInvalidCodeSize, "dim=%d codeSize=%d", tt.dim, tt.codeSize)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.bits, q.Bits())
		assert.Equal(t, tt.dim, q.Dimension())
		assert.Equal(t, tt.codeSize, q.CodeSize())
	}

	_, err := NewScalarQuantizer(8, 2, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidCodeSize)

	// Raw float storage ignores the range.
	_, err = NewScalarQuantizer(8, 32, 1, 1)
	assert.NoError(t, err)
}

func TestScalarQuantizer_TwoBitLayout(t *testing.T) {
	q, err := NewScalarQuantizer(4, 1, -1, 1)
	require.NoError(t, err)

	// Levels 0, 3, 1, 2 packed MSB-first: 00 11 01 10.
	code, err := q.Encode([]float32{-1, 1, -0.34, 0.34})
	require.NoError(t, err)
	assert.Equal(t, []byte{0b00_11_01_10}, code)

	// Out-of-range values clamp.
	code, err = q.Encode([]float32{-5, 5, -1, 1})
	require.NoError(t, err)
	assert.Equal(t, []byte{0b00_11_00_11}, code)

	v, err := q.Decode([]byte{0b00_11_01_10})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-1, 1, -1.0 / 3, 1.0 / 3}, toFloat64(v), 1e-6)
}

func TestScalarQuantizer_SixteenBitBigEndian(t *testing.T) {
	q, err := NewScalarQuantizer(2, 4, 0, 1)
	require.NoError(t, err)

	code, err := q.Encode([]float32{0, 1})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0xff, 0xff}, code)
}

func TestScalarQuantizer_RoundTripError(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	const dim = 64

	for _, bits := range []int{1, 2, 4, 8, 16} {
		q, err := NewScalarQuantizer(dim, dim*bits/8, -1, 1)
		require.NoError(t, err)

		maxErr := float64(q.step) / 2
		if bits == 1 {
			maxErr = 1
		}
		for n := 0; n < 20; n++ {
			v := randomVector(r, dim)
			code, err := q.Encode(v)
			require.NoError(t, err)
			require.Len(t, code, q.CodeSize())

			out, err := q.Decode(code)
			require.NoError(t, err)
			for i := range v {
				assert.LessOrEqual(t, math.Abs(float64(v[i]-out[i])), maxErr+1e-6, "bits=%d", bits)
			}
		}
	}
}

func TestScalarQuantizer_RawLossless(t *testing.T) {
	q, err := NewScalarQuantizer(4, 16, -1, 1)
	require.NoError(t, err)

	v := []float32{-123.5, 0, 1e-9, math.MaxFloat32}
	code, err := q.Encode(v)
	require.NoError(t, err)

	out, err := q.Decode(code)
	require.NoError(t, err)
	assert.Equal(t, v, out)
}

func TestScalarQuantizer_Errors(t *testing.T) {
	q, err := NewScalarQuantizer(8, 2, -1, 1)
	require.NoError(t, err)

	_, err = q.Encode(make([]float32, 7))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	for _, bad := range []float32{float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))} {
		_, err = q.Encode([]float32{0, 0, 0, bad, 0, 0, 0, 0})
		assert.ErrorIs(t, err, ErrNonFinite)
	}

	raw, err := NewScalarQuantizer(2, 8, -1, 1) // 32 bits per component
	require.NoError(t, err)
	_, err = raw.Encode([]float32{float32(math.Inf(1)), 0})
	assert.ErrorIs(t, err, ErrNonFinite)

	assert.ErrorIs(t, q.EncodeTo(make([]byte, 3), make([]float32, 8)), ErrCodeLength)

	_, err = q.Decode(make([]byte, 1))
	assert.ErrorIs(t, err, ErrCodeLength)
	assert.ErrorIs(t, q.DecodeTo(make([]float32, 2), make([]byte, 2)), ErrDimensionMismatch)
}

func TestScalarQuantizer_Deterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	v := randomVector(r, 128)

	q1, err := NewScalarQuantizer(128, 32, -1, 1)
	require.NoError(t, err)
	q2, err := NewScalarQuantizer(128, 32, -1, 1)
	require.NoError(t, err)

	c1, err := q1.Encode(v)
	require.NoError(t, err)
	c2, err := q2.Encode(v)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)

	again, err := q1.Encode(v)
	require.NoError(t, err)
	assert.Equal(t, c1, again)
}

func TestScalarQuantizer_Distance(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 9))
	const dim = 16

	q, err := NewScalarQuantizer(dim, dim, -1, 1)
	require.NoError(t, err)

	a, b := randomVector(r, dim), randomVector(r, dim)
	ca, err := q.Encode(a)
	require.NoError(t, err)
	cb, err := q.Encode(b)
	require.NoError(t, err)
	da, err := q.Decode(ca)
	require.NoError(t, err)
	db, err := q.Decode(cb)
	require.NoError(t, err)

	for _, m := range []distance.Metric{distance.MetricL2, distance.MetricCosine, distance.MetricDot} {
		fn, err := distance.Provider(m)
		require.NoError(t, err)

		assert.InDelta(t, fn(a, db), q.Distance(m, a, cb), 1e-4, m.String())
		assert.InDelta(t, fn(da, db), q.CodeDistance(m, ca, cb), 1e-4, m.String())
	}

	assert.InDelta(t, 0, q.CodeDistance(distance.MetricL2, ca, ca), 1e-6)
}

func TestScalarQuantizer_DistanceMatchesDecoded(t *testing.T) {
	r := rand.New(rand.NewPCG(4, 2))
	const dim = 8

	for _, bits := range []int{1, 2, 4, 8, 16, 32} {
		q, err := NewScalarQuantizer(dim, dim*bits/8, -1, 1)
		require.NoError(t, err)

		a, b := randomVector(r, dim), randomVector(r, dim)
		ca, err := q.Encode(a)
		require.NoError(t, err)
		cb, err := q.Encode(b)
		require.NoError(t, err)
		da, err := q.Decode(ca)
		require.NoError(t, err)
		db, err := q.Decode(cb)
		require.NoError(t, err)

		for _, m := range []distance.Metric{distance.MetricL2, distance.MetricCosine, distance.MetricDot} {
			fn, err := distance.Provider(m)
			require.NoError(t, err)

			assert.Equal(t, fn(a, db), q.Distance(m, a, cb), "bits=%d %s", bits, m)
			assert.Equal(t, fn(da, db), q.CodeDistance(m, ca, cb), "bits=%d %s", bits, m)
		}
	}

	t.Run("ZeroVectorCosine", func(t *testing.T) {
		q, err := NewScalarQuantizer(dim, dim*4, 0, 1)
		require.NoError(t, err)

		zero, err := q.Encode(make([]float32, dim))
		require.NoError(t, err)
		assert.Equal(t, float32(1), q.CodeDistance(distance.MetricCosine, zero, zero))
	})

	t.Run("Concurrent", func(t *testing.T) {
		q, err := NewScalarQuantizer(dim, dim, -1, 1)
		require.NoError(t, err)

		query := randomVector(r, dim)
		codes := make([][]byte, 32)
		want := make([]float32, len(codes))
		for i := range codes {
			codes[i], err = q.Encode(randomVector(r, dim))
			require.NoError(t, err)
			want[i] = q.Distance(distance.MetricCosine, query, codes[i])
		}

		var wg sync.WaitGroup
		got := make([][]float32, 8)
		for w := range got {
			got[w] = make([]float32, len(codes))
			wg.Add(1)
			go func(out []float32) {
				defer wg.Done()
				for n := 0; n < 50; n++ {
					for i, c := range codes {
						out[i] = q.Distance(distance.MetricCosine, query, c)
					}
				}
			}(got[w])
		}
		wg.Wait()

		for _, out := range got {
			assert.Equal(t, want, out)
		}
	})
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
