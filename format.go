package vecdir

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/hupe1980/vecdir/codec"
	"github.com/hupe1980/vecdir/index/hnsw"
	"github.com/hupe1980/vecdir/internal/conv"
	"github.com/hupe1980/vecdir/internal/hash"
)

// Collection blob layout, little-endian:
//
//	header (32 bytes)
//	  magic u32 | version u16 | compression u8 | flags u8
//	  idKind u8 | idWidth u8 | reserved u16
//	  dimension u32 | codeSize u32
//	  rawLength u32 | checksum u32 (CRC32C of stored payload) | storedLength u32
//	payload (possibly compressed)
//	  config | count u32 | count x (id, code) | tombstones | [graph]
const (
	formatMagic   uint32 = 0x31434456 // "VDC1"
	formatVersion uint16 = 1
	headerSize           = 32
	configSize           = 28

	flagGraph uint8 = 1 << 0
)

type header struct {
	compression  codec.Compression
	flags        uint8
	idKind       reflect.Kind
	idWidth      int
	dimension    int
	codeSize     int
	rawLength    int
	checksum     uint32
	storedLength int
}

// MarshalBinary encodes the collection without compression.
func (c *Collection[ID]) MarshalBinary() ([]byte, error) {
	return c.Marshal(codec.None)
}

// Marshal encodes the collection, compressing the payload with kind when
// that makes it smaller.
func (c *Collection[ID]) Marshal(kind codec.Compression) ([]byte, error) {
	c.mu.RLock()
	raw, flags, err := c.appendPayloadLocked(nil)
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	rawLen, err := conv.IntToUint32(len(raw))
	if err != nil {
		return nil, fmt.Errorf("vecdir: collection payload: %w", err)
	}

	stored, used, err := codec.Compress(kind, raw)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(stored))
	binary.LittleEndian.PutUint32(out[0:], formatMagic)
	binary.LittleEndian.PutUint16(out[4:], formatVersion)
	out[6] = byte(used)
	out[7] = flags
	out[8] = byte(c.layout.kind)
	out[9] = byte(c.layout.width)
	binary.LittleEndian.PutUint32(out[12:], uint32(c.shape.Dimension))
	binary.LittleEndian.PutUint32(out[16:], uint32(c.shape.CodeSize))
	binary.LittleEndian.PutUint32(out[20:], rawLen)
	binary.LittleEndian.PutUint32(out[24:], hash.CRC32C(stored))
	binary.LittleEndian.PutUint32(out[28:], uint32(len(stored)))
	return append(out, stored...), nil
}

func (c *Collection[ID]) appendPayloadLocked(b []byte) ([]byte, uint8, error) {
	b = appendConfig(b, c.cfg)

	count, err := conv.IntToUint32(len(c.ids))
	if err != nil {
		return nil, 0, fmt.Errorf("vecdir: entry count: %w", err)
	}
	b = binary.LittleEndian.AppendUint32(b, count)
	idBuf := make([]byte, c.layout.width)
	cs := c.shape.CodeSize
	for h, id := range c.ids {
		putID(idBuf, id, c.layout.width)
		b = append(b, idBuf...)
		b = append(b, c.codes[h*cs:(h+1)*cs]...)
	}

	tomb, err := c.deleted.MarshalBinary()
	if err != nil {
		return nil, 0, fmt.Errorf("vecdir: encode tombstones: %w", err)
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(len(tomb)))
	b = append(b, tomb...)

	var flags uint8
	if c.graph != nil {
		flags |= flagGraph
		b = appendGraph(b, c.graph.Export())
	}
	return b, flags, nil
}

func appendConfig(b []byte, cfg Config) []byte {
	b = append(b, byte(cfg.Metric), byte(cfg.Index))
	b = binary.LittleEndian.AppendUint16(b, uint16(cfg.M))
	b = binary.LittleEndian.AppendUint16(b, uint16(cfg.EfConstruction))
	b = binary.LittleEndian.AppendUint16(b, uint16(cfg.EfSearch))
	b = binary.LittleEndian.AppendUint32(b, uint32(cfg.FlatThreshold))
	b = binary.LittleEndian.AppendUint64(b, cfg.Seed)
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(cfg.RangeMin))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(cfg.RangeMax))
	return b
}

func appendGraph(b []byte, g hnsw.Graph) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(g.Links)))
	b = binary.LittleEndian.AppendUint32(b, g.Entry)
	b = append(b, byte(g.MaxLevel))
	for _, layers := range g.Links {
		b = append(b, byte(len(layers)-1))
		for _, links := range layers {
			b = binary.LittleEndian.AppendUint16(b, uint16(len(links)))
			for _, nb := range links {
				b = binary.LittleEndian.AppendUint32(b, nb)
			}
		}
	}
	return b
}

// UnmarshalCollection decodes a collection encoded by Marshal. The ID type
// and shape must match the encoded ones, otherwise a *TypeMismatchError is
// returned. Malformed input yields ErrCorruptData.
func UnmarshalCollection[ID Identifier](data []byte, shape Shape) (*Collection[ID], error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	l := layoutOf[ID]()
	switch {
	case h.idKind != l.kind:
		return nil, mismatch("id type", l.kind, h.idKind)
	case h.idWidth != l.width:
		return nil, mismatch("id width", l.width, h.idWidth)
	case h.dimension != shape.Dimension:
		return nil, mismatch("dimension", shape.Dimension, h.dimension)
	case h.codeSize != shape.CodeSize:
		return nil, mismatch("code size", shape.CodeSize, h.codeSize)
	}

	stored := data[headerSize:]
	if !hash.Verify(stored, h.checksum) {
		return nil, corrupt("checksum mismatch")
	}
	raw, err := codec.Decompress(h.compression, stored, h.rawLength)
	if err != nil {
		return nil, corrupt("%v", err)
	}

	r := &reader{buf: raw}
	cfg := readConfig(r)
	if r.err != nil {
		return nil, corrupt("config: %v", r.err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, corrupt("%v", err)
	}

	c, err := newCollection[ID](shape, cfg)
	if err != nil {
		return nil, err
	}

	count, err := conv.Uint32ToInt(r.u32())
	if err != nil {
		return nil, corrupt("entry count: %v", err)
	}
	cs := shape.CodeSize
	size, err := conv.CheckedMul(count, l.width+cs)
	if err != nil {
		return nil, corrupt("entries: %v", err)
	}
	entries := r.bytes(size)
	if r.err != nil {
		return nil, corrupt("entries: %v", r.err)
	}
	c.ids = make([]ID, count)
	c.codes = make([]byte, count*cs)
	for i := 0; i < count; i++ {
		e := entries[i*(l.width+cs):]
		c.ids[i] = readID[ID](e, l)
		copy(c.codes[i*cs:(i+1)*cs], e[l.width:l.width+cs])
	}

	tomb := r.bytes(int(r.u32()))
	if r.err != nil {
		return nil, corrupt("tombstones: %v", r.err)
	}
	if err := c.deleted.UnmarshalBinary(tomb); err != nil {
		return nil, corrupt("tombstones: %v", err)
	}
	if !c.deleted.IsEmpty() && int64(c.deleted.Maximum()) >= int64(count) {
		return nil, corrupt("tombstone %d beyond %d entries", c.deleted.Maximum(), count)
	}
	c.live = count - int(c.deleted.GetCardinality())

	if h.flags&flagGraph != 0 {
		g := readGraph(r)
		if r.err != nil {
			return nil, corrupt("graph: %v", r.err)
		}
		if len(g.Links) != count {
			return nil, corrupt("graph has %d nodes for %d entries", len(g.Links), count)
		}
		graph, err := hnsw.Load(codeSpace[ID]{c}, g, c.hnswOptions)
		if err != nil {
			return nil, corrupt("%v", err)
		}
		c.graph = graph
		c.idx = graph
	} else if err := c.rebuildIndexLocked(); err != nil {
		return nil, err
	}

	if r.remaining() != 0 {
		return nil, corrupt("%d trailing bytes", r.remaining())
	}
	return c, nil
}

// rebuildIndexLocked indexes entries decoded without a persisted graph.
func (c *Collection[ID]) rebuildIndexLocked() error {
	if c.cfg.Index == IndexHNSW || (c.cfg.Index == IndexAuto && len(c.ids) >= c.cfg.FlatThreshold) {
		return c.buildGraphLocked()
	}
	for h := range c.ids {
		if err := c.idx.Add(uint32(h)); err != nil {
			return err
		}
	}
	return nil
}

func parseHeader(data []byte) (header, error) {
	if len(data) < headerSize {
		return header{}, corrupt("%d bytes is shorter than the header", len(data))
	}
	if m := binary.LittleEndian.Uint32(data[0:]); m != formatMagic {
		return header{}, corrupt("bad magic %#x", m)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != formatVersion {
		return header{}, corrupt("unsupported version %d", v)
	}

	h := header{
		compression:  codec.Compression(data[6]),
		flags:        data[7],
		idKind:       reflect.Kind(data[8]),
		idWidth:      int(data[9]),
		dimension:    int(binary.LittleEndian.Uint32(data[12:])),
		codeSize:     int(binary.LittleEndian.Uint32(data[16:])),
		rawLength:    int(binary.LittleEndian.Uint32(data[20:])),
		checksum:     binary.LittleEndian.Uint32(data[24:]),
		storedLength: int(binary.LittleEndian.Uint32(data[28:])),
	}
	if !h.compression.Valid() {
		return header{}, corrupt("unknown compression %d", data[6])
	}
	if h.storedLength != len(data)-headerSize {
		return header{}, corrupt("payload is %d bytes, header says %d", len(data)-headerSize, h.storedLength)
	}
	return h, nil
}

func readConfig(r *reader) Config {
	var cfg Config
	cfg.Metric = Metric(r.u8())
	cfg.Index = IndexKind(r.u8())
	cfg.M = int(r.u16())
	cfg.EfConstruction = int(r.u16())
	cfg.EfSearch = int(r.u16())
	cfg.FlatThreshold = int(r.u32())
	cfg.Seed = r.u64()
	cfg.RangeMin = math.Float32frombits(r.u32())
	cfg.RangeMax = math.Float32frombits(r.u32())
	return cfg
}

func readGraph(r *reader) hnsw.Graph {
	n := int(r.u32())
	g := hnsw.Graph{Entry: r.u32(), MaxLevel: int(r.u8())}
	// Every node takes at least 3 bytes.
	if r.err != nil || n > r.remaining()/3 {
		r.fail()
		return g
	}

	g.Links = make([][][]uint32, n)
	for i := range g.Links {
		level := int(r.u8())
		if r.err != nil || level > hnsw.MaxLevel {
			r.fail()
			return g
		}
		layers := make([][]uint32, level+1)
		for l := range layers {
			m := int(r.u16())
			raw := r.bytes(m * 4)
			if r.err != nil {
				return g
			}
			links := make([]uint32, m)
			for j := range links {
				links[j] = binary.LittleEndian.Uint32(raw[j*4:])
			}
			layers[l] = links
		}
		g.Links[i] = layers
	}
	return g
}

// reader decodes little-endian values and latches the first short read.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("truncated at offset %d", r.off)
	}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.remaining() {
		r.fail()
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// BlobInfo describes a collection blob from its header alone.
type BlobInfo struct {
	Shape       Shape
	IDKind      reflect.Kind
	IDWidth     int
	Compression codec.Compression
	HasGraph    bool
	// RawSize is the uncompressed payload length.
	RawSize int
	// StoredSize is the blob length including the header.
	StoredSize int
}

// ReadBlobInfo parses the header of a collection blob without verifying or
// decoding the payload.
func ReadBlobInfo(data []byte) (BlobInfo, error) {
	h, err := parseHeader(data)
	if err != nil {
		return BlobInfo{}, err
	}
	return BlobInfo{
		Shape:       Shape{Dimension: h.dimension, CodeSize: h.codeSize},
		IDKind:      h.idKind,
		IDWidth:     h.idWidth,
		Compression: h.compression,
		HasGraph:    h.flags&flagGraph != 0,
		RawSize:     h.rawLength,
		StoredSize:  len(data),
	}, nil
}
