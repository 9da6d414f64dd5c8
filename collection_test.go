package vecdir

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdir/codec"
	"github.com/hupe1980/vecdir/internal/hash"
)

func randomRecords(seed int64, n, dim int) []Record[uint64] {
	rng := rand.New(rand.NewSource(seed))
	recs := make([]Record[uint64], n)
	for i := range recs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		recs[i] = Record[uint64]{ID: uint64(i), Vector: v}
	}
	return recs
}

func ids[ID Identifier](c *Collection[ID]) []ID {
	var out []ID
	for id := range c.All() {
		out = append(out, id)
	}
	return out
}

func entries[ID Identifier](c *Collection[ID]) ([]ID, [][]byte) {
	var is []ID
	var cs [][]byte
	for id, code := range c.All() {
		is = append(is, id)
		cs = append(cs, code)
	}
	return is, cs
}

// reseal rewrites the length and checksum fields of an uncompressed blob
// after its payload was edited.
func reseal(data []byte) []byte {
	payload := data[headerSize:]
	binary.LittleEndian.PutUint32(data[20:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(data[24:], hash.CRC32C(payload))
	binary.LittleEndian.PutUint32(data[28:], uint32(len(payload)))
	return data
}

func TestNew(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		c, err := New[uint64](Shape{Dimension: 128, CodeSize: 32}, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, c.Len())
		assert.Equal(t, DefaultConfig(), c.Config())
		assert.Equal(t, 2, c.Stats().BitsPerComponent)
	})

	t.Run("QuantizationConfig", func(t *testing.T) {
		for _, shape := range []Shape{
			{Dimension: 128, CodeSize: 33}, // not integral
			{Dimension: 3, CodeSize: 1},    // 8/3 bits
			{Dimension: 8, CodeSize: 3},    // 3 bits
			{Dimension: 128, CodeSize: 8},  // half a bit
			{Dimension: 0, CodeSize: 8},
		} {
			_, err := New[uint64](shape, nil)
			assert.ErrorIs(t, err, ErrQuantizationConfig, "shape %v", shape)
		}
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.M = 1
		_, err := New[uint64](Shape{Dimension: 4, CodeSize: 4}, &cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)

		cfg = DefaultConfig()
		cfg.RangeMin, cfg.RangeMax = 1, 1
		_, err = New[uint64](Shape{Dimension: 4, CodeSize: 4}, &cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("WithRecords", func(t *testing.T) {
		recs := randomRecords(1, 100, 128)
		c, err := NewWithRecords(Shape{Dimension: 128, CodeSize: 32}, nil, recs)
		require.NoError(t, err)
		assert.Equal(t, 100, c.Len())

		want := make([]uint64, len(recs))
		for i, r := range recs {
			want[i] = r.ID
		}
		assert.Equal(t, want, ids(c))
	})
}

func TestInsert(t *testing.T) {
	shape := Shape{Dimension: 4, CodeSize: 4}

	t.Run("GrowsByOne", func(t *testing.T) {
		c, err := New[uint64](shape, nil)
		require.NoError(t, err)

		for i := range 5 {
			require.NoError(t, c.Insert(Record[uint64]{ID: 7, Vector: []float32{0, 0, 0, 0}}))
			assert.Equal(t, i+1, c.Len())
		}
		// Duplicate IDs are kept.
		assert.Equal(t, []uint64{7, 7, 7, 7, 7}, ids(c))
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		c, err := New[uint64](shape, nil)
		require.NoError(t, err)

		err = c.Insert(Record[uint64]{ID: 1, Vector: []float32{1, 2}})
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 4, dm.Expected)
		assert.Equal(t, 2, dm.Actual)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("NonFinite", func(t *testing.T) {
		for _, s := range []Shape{shape, {Dimension: 4, CodeSize: 16}} {
			c, err := New[uint64](s, nil)
			require.NoError(t, err)

			for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
				err = c.Insert(Record[uint64]{ID: 1, Vector: []float32{0, float32(bad), 0, 0}})
				assert.ErrorIs(t, err, ErrInvalidVector, "%s %v", s, bad)
			}
			assert.Equal(t, 0, c.Len())
		}
	})

	t.Run("BatchIsAllOrNothing", func(t *testing.T) {
		c, err := New[uint64](shape, nil)
		require.NoError(t, err)

		recs := make([]Record[uint64], 1000)
		for i := range recs {
			recs[i] = Record[uint64]{ID: uint64(i), Vector: []float32{0.1, 0.2, 0.3, 0.4}}
		}
		recs[700].Vector = []float32{1}

		err = c.InsertBatch(recs)
		var dm *ErrDimensionMismatch
		assert.ErrorAs(t, err, &dm)
		assert.Equal(t, 0, c.Len())

		recs[700].Vector = []float32{0, 0, 0, 0}
		require.NoError(t, c.InsertBatch(recs))
		assert.Equal(t, 1000, c.Len())
		assert.NoError(t, c.InsertBatch(nil))
	})

	t.Run("Deterministic", func(t *testing.T) {
		c, err := New[uint64](Shape{Dimension: 128, CodeSize: 32}, nil)
		require.NoError(t, err)

		v := randomRecords(3, 1, 128)[0].Vector
		require.NoError(t, c.Insert(Record[uint64]{ID: 1, Vector: v}))
		require.NoError(t, c.Insert(Record[uint64]{ID: 2, Vector: slices.Clone(v)}))
		assert.Equal(t, c.Code(0), c.Code(1))
		assert.Len(t, c.Code(0), 32)
	})
}

func TestSearch(t *testing.T) {
	exact := Shape{Dimension: 2, CodeSize: 8} // 32 bits per component

	t.Run("L2", func(t *testing.T) {
		c, err := New[uint64](exact, nil)
		require.NoError(t, err)
		require.NoError(t, c.InsertBatch([]Record[uint64]{
			{ID: 1, Vector: []float32{0, 0}},
			{ID: 2, Vector: []float32{3, 4}},
			{ID: 3, Vector: []float32{1, 0}},
		}))

		res, err := c.Search([]float32{0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, uint64(1), res[0].ID)
		assert.Equal(t, float32(0), res[0].Distance)
		assert.Equal(t, uint64(3), res[1].ID)
		assert.Equal(t, float32(1), res[1].Distance)
		assert.Equal(t, 2, res[1].Handle)

		res, err = c.Search([]float32{0, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, res, 3)
		assert.Equal(t, float32(25), res[2].Distance)
	})

	t.Run("TiesFollowInsertion", func(t *testing.T) {
		c, err := New[uint64](exact, nil)
		require.NoError(t, err)
		for _, id := range []uint64{30, 10, 20} {
			require.NoError(t, c.Insert(Record[uint64]{ID: id, Vector: []float32{0.5, 0.5}}))
		}

		res, err := c.Search([]float32{0, 0}, 3)
		require.NoError(t, err)
		got := []uint64{res[0].ID, res[1].ID, res[2].ID}
		assert.Equal(t, []uint64{30, 10, 20}, got)
	})

	t.Run("Cosine", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Metric = MetricCosine
		c, err := New[uint64](exact, &cfg)
		require.NoError(t, err)
		require.NoError(t, c.InsertBatch([]Record[uint64]{
			{ID: 1, Vector: []float32{-1, 0}},
			{ID: 2, Vector: []float32{0, 1}},
			{ID: 3, Vector: []float32{1, 0}},
		}))

		res, err := c.Search([]float32{2, 0}, 3)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), res[0].ID)
		assert.InDelta(t, 0, res[0].Distance, 1e-6)
		assert.InDelta(t, 1, res[1].Distance, 1e-6)
		assert.InDelta(t, 2, res[2].Distance, 1e-6)
	})

	t.Run("Dot", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Metric = MetricDot
		c, err := New[uint64](exact, &cfg)
		require.NoError(t, err)
		require.NoError(t, c.InsertBatch([]Record[uint64]{
			{ID: 1, Vector: []float32{1, 0}},
			{ID: 2, Vector: []float32{2, 0}},
		}))

		res, err := c.Search([]float32{1, 0}, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), res[0].ID)
		assert.Equal(t, float32(-2), res[0].Distance)
	})

	t.Run("Errors", func(t *testing.T) {
		c, err := New[uint64](exact, nil)
		require.NoError(t, err)

		_, err = c.Search([]float32{0, 0}, 0)
		assert.ErrorIs(t, err, ErrInvalidK)

		_, err = c.Search([]float32{0}, 1)
		var dm *ErrDimensionMismatch
		assert.ErrorAs(t, err, &dm)

		_, err = c.Search([]float32{float32(math.NaN()), 0}, 1)
		assert.ErrorIs(t, err, ErrInvalidVector)
		_, err = c.Search([]float32{float32(math.Inf(1)), 0}, 1)
		assert.ErrorIs(t, err, ErrInvalidVector)

		res, err := c.Search([]float32{0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, res)
	})
}

func TestSearch_LargeK(t *testing.T) {
	for _, kind := range []IndexKind{IndexFlat, IndexHNSW} {
		t.Run(kind.String(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Index = kind
			recs := randomRecords(9, 10, 4)
			c, err := NewWithRecords(Shape{Dimension: 4, CodeSize: 4}, &cfg, recs)
			require.NoError(t, err)

			for _, k := range []int{1 << 20, math.MaxInt} {
				res, err := c.Search(recs[0].Vector, k)
				require.NoError(t, err)
				assert.Len(t, res, 10)
			}
		})
	}
}

func TestIndexSelection(t *testing.T) {
	shape := Shape{Dimension: 16, CodeSize: 16}
	recs := randomRecords(5, 300, 16)

	auto := DefaultConfig()
	auto.FlatThreshold = 100

	c, err := New[uint64](shape, &auto)
	require.NoError(t, err)
	require.NoError(t, c.InsertBatch(recs[:99]))
	assert.Equal(t, IndexFlat, c.Stats().Index)

	require.NoError(t, c.InsertBatch(recs[99:]))
	st := c.Stats()
	assert.Equal(t, IndexHNSW, st.Index)
	assert.Equal(t, 300, st.GraphLevels[0])

	flatCfg := DefaultConfig()
	flatCfg.Index = IndexFlat
	exact, err := NewWithRecords(shape, &flatCfg, recs)
	require.NoError(t, err)
	assert.Equal(t, IndexFlat, exact.Stats().Index)

	queries := randomRecords(6, 20, 16)
	hits, total := 0, 0
	for _, q := range queries {
		want, err := exact.Search(q.Vector, 10)
		require.NoError(t, err)
		got, err := c.Search(q.Vector, 10)
		require.NoError(t, err)
		require.Len(t, got, 10)

		assert.True(t, slices.IsSortedFunc(got, func(a, b Result[uint64]) int {
			switch {
			case a.Distance < b.Distance:
				return -1
			case a.Distance > b.Distance:
				return 1
			}
			return a.Handle - b.Handle
		}))

		for _, w := range want {
			total++
			for _, g := range got {
				if g.Handle == w.Handle {
					hits++
					break
				}
			}
		}
	}
	assert.GreaterOrEqual(t, float64(hits)/float64(total), 0.9)
}

func TestDeleteAndCompact(t *testing.T) {
	shape := Shape{Dimension: 2, CodeSize: 8}
	c, err := New[uint64](shape, nil)
	require.NoError(t, err)
	require.NoError(t, c.InsertBatch([]Record[uint64]{
		{ID: 1, Vector: []float32{0, 0}},
		{ID: 2, Vector: []float32{1, 0}},
		{ID: 1, Vector: []float32{0, 1}},
		{ID: 3, Vector: []float32{1, 1}},
	}))

	assert.Equal(t, 2, c.Delete(1))
	assert.Equal(t, 0, c.Delete(1))
	assert.Equal(t, 0, c.Delete(99))
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []uint64{2, 3}, ids(c))
	assert.Equal(t, 2, c.Stats().Deleted)

	res, err := c.Search([]float32{0, 0}, 4)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, uint64(2), res[0].ID)
	assert.Equal(t, uint64(3), res[1].ID)

	assert.Nil(t, c.Code(0))
	_, err = c.Vector(0)
	assert.ErrorIs(t, err, ErrOutOfRange)

	data, err := c.MarshalBinary()
	require.NoError(t, err)
	loaded, err := UnmarshalCollection[uint64](data, shape)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, 2, loaded.Stats().Deleted)
	assert.Equal(t, []uint64{2, 3}, ids(loaded))

	compacted, err := c.Compact()
	require.NoError(t, err)
	assert.Equal(t, 2, compacted.Len())
	assert.Equal(t, 0, compacted.Stats().Deleted)
	assert.Equal(t, []uint64{2, 3}, ids(compacted))

	v, err := compacted.Vector(1)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, v)
}

func TestVector(t *testing.T) {
	c, err := New[uint64](Shape{Dimension: 4, CodeSize: 4}, nil)
	require.NoError(t, err)

	in := []float32{-1, -0.5, 0.25, 2}
	require.NoError(t, c.Insert(Record[uint64]{ID: 1, Vector: in}))

	out, err := c.Vector(0)
	require.NoError(t, err)
	// 8 bits over [-1, 1], clamped above.
	assert.InDelta(t, -1, out[0], 1e-6)
	assert.InDelta(t, -0.5, out[1], 2.0/255)
	assert.InDelta(t, 0.25, out[2], 2.0/255)
	assert.InDelta(t, 1, out[3], 1e-6)

	_, err = c.Vector(1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = c.Vector(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestMarshalRoundTrip(t *testing.T) {
	shape := Shape{Dimension: 128, CodeSize: 32}
	recs := randomRecords(7, 100, 128)

	for _, kind := range []codec.Compression{codec.None, codec.LZ4, codec.Zstd} {
		t.Run(kind.String(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Metric = MetricCosine
			cfg.Seed = 7
			c, err := NewWithRecords(shape, &cfg, recs)
			require.NoError(t, err)

			data, err := c.Marshal(kind)
			require.NoError(t, err)

			loaded, err := UnmarshalCollection[uint64](data, shape)
			require.NoError(t, err)

			assert.Equal(t, c.Len(), loaded.Len())
			assert.Equal(t, c.Config(), loaded.Config())
			wantIDs, wantCodes := entries(c)
			gotIDs, gotCodes := entries(loaded)
			assert.Equal(t, wantIDs, gotIDs)
			assert.Equal(t, wantCodes, gotCodes)
		})
	}
}

func TestMarshalRoundTrip_Graph(t *testing.T) {
	shape := Shape{Dimension: 16, CodeSize: 16}
	cfg := DefaultConfig()
	cfg.Index = IndexHNSW
	cfg.M = 8

	c, err := NewWithRecords(shape, &cfg, randomRecords(11, 250, 16))
	require.NoError(t, err)

	data, err := c.Marshal(codec.Zstd)
	require.NoError(t, err)
	loaded, err := UnmarshalCollection[uint64](data, shape)
	require.NoError(t, err)

	assert.Equal(t, c.Stats(), loaded.Stats())
	for _, q := range randomRecords(12, 5, 16) {
		want, err := c.Search(q.Vector, 5)
		require.NoError(t, err)
		got, err := loaded.Search(q.Vector, 5)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Inserting after a load keeps the graph growing.
	require.NoError(t, loaded.Insert(Record[uint64]{ID: 999, Vector: make([]float32, 16)}))
	assert.Equal(t, 251, loaded.Stats().GraphLevels[0])
}

func TestMarshalRoundTrip_IDs(t *testing.T) {
	shape := Shape{Dimension: 2, CodeSize: 2}

	t.Run("int8", func(t *testing.T) {
		c, err := New[int8](shape, nil)
		require.NoError(t, err)
		for _, id := range []int8{-128, -1, 0, 127} {
			require.NoError(t, c.Insert(Record[int8]{ID: id, Vector: []float32{0, 0}}))
		}
		data, err := c.MarshalBinary()
		require.NoError(t, err)
		loaded, err := UnmarshalCollection[int8](data, shape)
		require.NoError(t, err)
		assert.Equal(t, []int8{-128, -1, 0, 127}, ids(loaded))
	})

	t.Run("int", func(t *testing.T) {
		c, err := New[int](shape, nil)
		require.NoError(t, err)
		for _, id := range []int{-70000, -1, 1 << 30} {
			require.NoError(t, c.Insert(Record[int]{ID: id, Vector: []float32{0, 0}}))
		}
		data, err := c.MarshalBinary()
		require.NoError(t, err)
		assert.Equal(t, byte(8), data[9])
		loaded, err := UnmarshalCollection[int](data, shape)
		require.NoError(t, err)
		assert.Equal(t, []int{-70000, -1, 1 << 30}, ids(loaded))
	})

	t.Run("named", func(t *testing.T) {
		type docID uint16
		c, err := New[docID](shape, nil)
		require.NoError(t, err)
		require.NoError(t, c.Insert(Record[docID]{ID: 65535, Vector: []float32{0, 0}}))
		data, err := c.MarshalBinary()
		require.NoError(t, err)

		loaded, err := UnmarshalCollection[uint16](data, shape)
		require.NoError(t, err)
		assert.Equal(t, []uint16{65535}, ids(loaded))
	})
}

func TestUnmarshal_TypeMismatch(t *testing.T) {
	shape := Shape{Dimension: 128, CodeSize: 32}
	c, err := NewWithRecords(shape, nil, randomRecords(1, 3, 128))
	require.NoError(t, err)
	data, err := c.MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name  string
		load  func() error
		field string
	}{
		{"IDKind", func() error { _, err := UnmarshalCollection[int64](data, shape); return err }, "id type"},
		{"IDWidth", func() error { _, err := UnmarshalCollection[uint32](data, shape); return err }, "id type"},
		{"Dimension", func() error {
			_, err := UnmarshalCollection[uint64](data, Shape{Dimension: 64, CodeSize: 32})
			return err
		}, "dimension"},
		{"CodeSize", func() error {
			_, err := UnmarshalCollection[uint64](data, Shape{Dimension: 128, CodeSize: 16})
			return err
		}, "code size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.load()
			assert.ErrorIs(t, err, ErrTypeMismatch)
			var tm *TypeMismatchError
			require.ErrorAs(t, err, &tm)
			assert.Equal(t, tt.field, tm.Field)
		})
	}
}

func TestUnmarshal_Corrupt(t *testing.T) {
	shape := Shape{Dimension: 4, CodeSize: 4}
	c, err := NewWithRecords(shape, nil, []Record[uint64]{
		{ID: 1, Vector: []float32{0, 0, 0, 0}},
		{ID: 2, Vector: []float32{1, 1, 1, 1}},
	})
	require.NoError(t, err)
	good, err := c.MarshalBinary()
	require.NoError(t, err)

	tests := map[string]func() []byte{
		"Empty":     func() []byte { return nil },
		"Truncated": func() []byte { return slices.Clone(good[:20]) },
		"Magic": func() []byte {
			d := slices.Clone(good)
			d[0] ^= 0xff
			return d
		},
		"Version": func() []byte {
			d := slices.Clone(good)
			d[4] = 9
			return d
		},
		"Compression": func() []byte {
			d := slices.Clone(good)
			d[6] = 200
			return d
		},
		"StoredLength": func() []byte { return slices.Clone(good[:len(good)-1]) },
		"Checksum": func() []byte {
			d := slices.Clone(good)
			d[len(d)-1] ^= 0x01
			return d
		},
		"ShortPayload": func() []byte {
			return reseal(slices.Clone(good[:len(good)-3]))
		},
		"TrailingBytes": func() []byte {
			return reseal(append(slices.Clone(good), 0))
		},
		"BadConfig": func() []byte {
			d := slices.Clone(good)
			d[headerSize] = 99 // metric
			return reseal(d)
		},
		"HugeCount": func() []byte {
			d := slices.Clone(good)
			binary.LittleEndian.PutUint32(d[headerSize+configSize:], math.MaxUint32)
			return reseal(d)
		},
	}
	for name, mk := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalCollection[uint64](mk(), shape)
			assert.ErrorIs(t, err, ErrCorruptData)
			assert.False(t, errors.Is(err, ErrTypeMismatch))
		})
	}
}

func TestConcurrentInsertSearch(t *testing.T) {
	shape := Shape{Dimension: 8, CodeSize: 8}
	cfg := DefaultConfig()
	cfg.FlatThreshold = 64

	c, err := New[uint64](shape, &cfg)
	require.NoError(t, err)
	recs := randomRecords(21, 400, 8)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, r := range recs {
			assert.NoError(t, c.Insert(r))
		}
	}()
	go func() {
		defer wg.Done()
		for _, q := range recs[:100] {
			_, err := c.Search(q.Vector, 5)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	assert.Equal(t, 400, c.Len())
	assert.Equal(t, IndexHNSW, c.Stats().Index)
}
