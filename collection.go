package vecdir

import (
	"fmt"
	"iter"
	"runtime"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecdir/index"
	"github.com/hupe1980/vecdir/index/flat"
	"github.com/hupe1980/vecdir/index/hnsw"
	"github.com/hupe1980/vecdir/quantization"
)

// encodeChunk is the number of records one goroutine encodes in InsertBatch.
const encodeChunk = 256

// Collection is an ordered set of quantized records with a nearest-neighbor
// index. Entries keep their insertion order; the position of an entry is its
// handle.
//
// A Collection is safe for concurrent use.
type Collection[ID Identifier] struct {
	mu sync.RWMutex

	shape  Shape
	cfg    Config
	layout idLayout
	q      *quantization.ScalarQuantizer

	ids     []ID
	codes   []byte // len(ids) * shape.CodeSize
	deleted *roaring.Bitmap
	live    int

	idx   index.Index
	graph *hnsw.HNSW // nil until an HNSW graph exists
}

// New creates an empty collection. A nil cfg means DefaultConfig().
func New[ID Identifier](shape Shape, cfg *Config) (*Collection[ID], error) {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	return newCollection[ID](shape, c)
}

// NewWithRecords creates a collection and inserts records in order.
func NewWithRecords[ID Identifier](shape Shape, cfg *Config, records []Record[ID]) (*Collection[ID], error) {
	c, err := New[ID](shape, cfg)
	if err != nil {
		return nil, err
	}
	if err := c.InsertBatch(records); err != nil {
		return nil, err
	}
	return c, nil
}

func newCollection[ID Identifier](shape Shape, cfg Config) (*Collection[ID], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	q, err := quantization.NewScalarQuantizer(shape.Dimension, shape.CodeSize, cfg.RangeMin, cfg.RangeMax)
	if err != nil {
		return nil, translateError(err)
	}

	c := &Collection[ID]{
		shape:   shape,
		cfg:     cfg,
		layout:  layoutOf[ID](),
		q:       q,
		deleted: roaring.New(),
	}
	if cfg.Index == IndexHNSW {
		c.graph = hnsw.New(codeSpace[ID]{c}, c.hnswOptions)
		c.idx = c.graph
	} else {
		c.idx = flat.New(codeSpace[ID]{c})
	}
	return c, nil
}

func (c *Collection[ID]) hnswOptions(o *hnsw.Options) {
	o.M = c.cfg.M
	o.EfConstruction = c.cfg.EfConstruction
	o.Seed = c.cfg.Seed
}

// Config returns the collection's configuration.
func (c *Collection[ID]) Config() Config {
	return c.cfg
}

// Shape returns the collection's dimension and code size.
func (c *Collection[ID]) Shape() Shape {
	return c.shape
}

// Len returns the number of live entries.
func (c *Collection[ID]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.live
}

// Insert quantizes r and appends it. IDs are not deduplicated.
func (c *Collection[ID]) Insert(r Record[ID]) error {
	code, err := c.encode(r.Vector)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if int64(len(c.ids)) >= maxEntries {
		return ErrCollectionFull
	}
	return c.appendLocked(r.ID, code)
}

// InsertBatch quantizes records in parallel and appends them in input
// order. Nothing is inserted if any record fails to encode.
func (c *Collection[ID]) InsertBatch(records []Record[ID]) error {
	if len(records) == 0 {
		return nil
	}

	cs := c.shape.CodeSize
	codes := make([]byte, len(records)*cs)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for start := 0; start < len(records); start += encodeChunk {
		end := min(start+encodeChunk, len(records))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := c.encodeTo(codes[i*cs:(i+1)*cs], records[i].Vector); err != nil {
					return fmt.Errorf("record %d: %w", i, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if int64(len(c.ids))+int64(len(records)) > maxEntries {
		return ErrCollectionFull
	}
	for i := range records {
		if err := c.appendLocked(records[i].ID, codes[i*cs:(i+1)*cs]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collection[ID]) encode(v []float32) ([]byte, error) {
	code := make([]byte, c.shape.CodeSize)
	if err := c.encodeTo(code, v); err != nil {
		return nil, err
	}
	return code, nil
}

func (c *Collection[ID]) encodeTo(dst []byte, v []float32) error {
	if len(v) != c.shape.Dimension {
		return &ErrDimensionMismatch{Expected: c.shape.Dimension, Actual: len(v)}
	}
	return translateError(c.q.EncodeTo(dst, v))
}

func (c *Collection[ID]) appendLocked(id ID, code []byte) error {
	h := uint32(len(c.ids))
	c.ids = append(c.ids, id)
	c.codes = append(c.codes, code...)
	c.live++

	if c.graph == nil && c.cfg.Index == IndexAuto && len(c.ids) >= c.cfg.FlatThreshold {
		return c.buildGraphLocked()
	}
	return c.idx.Add(h)
}

// buildGraphLocked indexes every entry into a new HNSW graph and switches
// searches over to it.
func (c *Collection[ID]) buildGraphLocked() error {
	g := hnsw.New(codeSpace[ID]{c}, c.hnswOptions)
	for h := range c.ids {
		if err := g.Add(uint32(h)); err != nil {
			return err
		}
	}
	c.graph = g
	c.idx = g
	return nil
}

// Search returns at most k live entries ordered by increasing approximate
// distance to query. Equal distances are ordered by insertion.
func (c *Collection[ID]) Search(query []float32, k int) ([]Result[ID], error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(query) != c.shape.Dimension {
		return nil, &ErrDimensionMismatch{Expected: c.shape.Dimension, Actual: len(query)}
	}
	for _, x := range query {
		if !isFinite32(x) {
			return nil, ErrInvalidVector
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var filter index.Filter
	if !c.deleted.IsEmpty() {
		filter = func(h uint32) bool { return !c.deleted.Contains(h) }
	}

	found := c.idx.Search(query, k, c.cfg.EfSearch, filter)
	out := make([]Result[ID], len(found))
	for i, r := range found {
		out[i] = Result[ID]{ID: c.ids[r.Handle], Distance: r.Distance, Handle: int(r.Handle)}
	}
	return out, nil
}

// Delete tombstones every live entry with the given ID and returns how many
// were removed. Handles of other entries do not change.
func (c *Collection[ID]) Delete(id ID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for h, x := range c.ids {
		if x == id && c.deleted.CheckedAdd(uint32(h)) {
			n++
		}
	}
	c.live -= n
	return n
}

// Compact returns a new collection holding the live entries in their
// original order with a rebuilt index.
func (c *Collection[ID]) Compact() (*Collection[ID], error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out, err := newCollection[ID](c.shape, c.cfg)
	if err != nil {
		return nil, err
	}
	cs := c.shape.CodeSize
	out.ids = make([]ID, 0, c.live)
	out.codes = make([]byte, 0, c.live*cs)
	for h, id := range c.ids {
		if c.deleted.Contains(uint32(h)) {
			continue
		}
		if err := out.appendLocked(id, c.codes[h*cs:(h+1)*cs]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// All iterates the live entries in insertion order. Codes are copies.
func (c *Collection[ID]) All() iter.Seq2[ID, []byte] {
	c.mu.RLock()
	ids := c.ids[:len(c.ids):len(c.ids)]
	codes := c.codes[:len(c.codes):len(c.codes)]
	deleted := c.deleted.Clone()
	c.mu.RUnlock()

	cs := c.shape.CodeSize
	return func(yield func(ID, []byte) bool) {
		for h, id := range ids {
			if deleted.Contains(uint32(h)) {
				continue
			}
			if !yield(id, slices.Clone(codes[h*cs:(h+1)*cs])) {
				return
			}
		}
	}
}

// Code returns a copy of the code at handle h, or nil if h is out of range
// or deleted.
func (c *Collection[ID]) Code(h int) []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.liveLocked(h) {
		return nil
	}
	cs := c.shape.CodeSize
	return slices.Clone(c.codes[h*cs : (h+1)*cs])
}

// Vector reconstructs the approximate vector at handle h.
func (c *Collection[ID]) Vector(h int) ([]float32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.liveLocked(h) {
		return nil, fmt.Errorf("%w: %d", ErrOutOfRange, h)
	}
	cs := c.shape.CodeSize
	return c.q.Decode(c.codes[h*cs : (h+1)*cs])
}

func (c *Collection[ID]) liveLocked(h int) bool {
	return h >= 0 && h < len(c.ids) && !c.deleted.Contains(uint32(h))
}

// Stats describes a collection.
type Stats struct {
	// Count is the number of live entries.
	Count int
	// Deleted is the number of tombstoned entries.
	Deleted int
	// BitsPerComponent is the quantization width.
	BitsPerComponent int
	// Index is the strategy currently serving searches.
	Index IndexKind
	// GraphLevels[l] is the number of HNSW nodes on layer l.
	GraphLevels []int
	// GraphEdges[l] is the number of HNSW links on layer l.
	GraphEdges []int
}

// Stats returns a snapshot of the collection's statistics.
func (c *Collection[ID]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Count:            c.live,
		Deleted:          int(c.deleted.GetCardinality()),
		BitsPerComponent: c.q.Bits(),
		Index:            IndexFlat,
	}
	if c.graph != nil {
		gs := c.graph.Stats()
		s.Index = IndexHNSW
		s.GraphLevels = gs.LevelCounts
		s.GraphEdges = gs.Edges
	}
	return s
}

// codeSpace exposes a collection's codes to the index. Callers hold c.mu.
type codeSpace[ID Identifier] struct {
	c *Collection[ID]
}

func (s codeSpace[ID]) Len() int {
	return len(s.c.ids)
}

func (s codeSpace[ID]) code(h uint32) []byte {
	cs := s.c.shape.CodeSize
	return s.c.codes[int(h)*cs : (int(h)+1)*cs]
}

func (s codeSpace[ID]) QueryDistance(query []float32, h uint32) float32 {
	return s.c.q.Distance(s.c.cfg.Metric, query, s.code(h))
}

func (s codeSpace[ID]) Distance(a, b uint32) float32 {
	return s.c.q.CodeDistance(s.c.cfg.Metric, s.code(a), s.code(b))
}
