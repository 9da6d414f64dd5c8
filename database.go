package vecdir

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/vecdir/blobstore"
	"github.com/hupe1980/vecdir/codec"
	"github.com/hupe1980/vecdir/internal/cache"
	"github.com/hupe1980/vecdir/internal/resource"
)

const (
	// BlobExt is the suffix of collection blobs.
	BlobExt = ".vdc"

	// MaxNameLen bounds collection names in bytes.
	MaxNameLen = 255
)

// BlobName returns the blob a collection is stored in. The mapping is
// stable and injective.
func BlobName(name string) string {
	return url.PathEscape(name) + BlobExt
}

func collectionName(blob string) (string, bool) {
	escaped, ok := strings.CutSuffix(blob, BlobExt)
	if !ok {
		return "", false
	}
	name, err := url.PathUnescape(escaped)
	if err != nil || BlobName(name) != blob {
		return "", false
	}
	return name, true
}

func validateName(name string) error {
	if name == "" || len(name) > MaxNameLen {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Database is a registry of named collections persisted in a blob store.
// It is safe for concurrent use. Collections it returns belong to the
// caller and are only persisted by SaveCollection.
type Database struct {
	store blobstore.Store
	opts  options

	mu      sync.RWMutex
	names   map[string]struct{}
	pending map[string]struct{} // creates in progress
	gens    map[string]uint64   // bumped after every completed write or delete
	closed  bool

	loads singleflight.Group
}

// Open opens the database rooted at the local directory root, creating the
// directory if it does not exist.
func Open(ctx context.Context, root string, optFns ...Option) (*Database, error) {
	o := applyOptions(optFns)

	var localOpts []blobstore.LocalOption
	if o.fileSystem != nil {
		localOpts = append(localOpts, blobstore.WithFileSystem(o.fileSystem))
	}
	store, err := blobstore.NewLocalStore(root, localOpts...)
	if err != nil {
		o.logger.LogOpen(ctx, 0, err)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return newDatabase(ctx, store, o)
}

// NewDatabase opens a database over store.
func NewDatabase(ctx context.Context, store blobstore.Store, optFns ...Option) (*Database, error) {
	return newDatabase(ctx, store, applyOptions(optFns))
}

func newDatabase(ctx context.Context, store blobstore.Store, o options) (*Database, error) {
	if o.cacheBytes > 0 || o.limits != (ResourceLimits{}) {
		rc := resource.NewController(resource.Config{
			MemoryLimitBytes:      o.cacheBytes,
			MaxConcurrentRequests: o.limits.MaxConcurrentRequests,
			BytesPerSec:           o.limits.BytesPerSec,
		})
		if o.limits != (ResourceLimits{}) {
			store = blobstore.NewLimitedStore(store, rc)
		}
		if o.cacheBytes > 0 {
			store = blobstore.NewCachingStore(store, cache.NewLRU(o.cacheBytes, rc))
		}
	}

	blobs, err := store.List(ctx, "")
	if err != nil {
		err = fmt.Errorf("%w: list: %w", ErrStorage, err)
		o.logger.LogOpen(ctx, 0, err)
		return nil, err
	}

	names := make(map[string]struct{}, len(blobs))
	for _, b := range blobs {
		if name, ok := collectionName(b); ok {
			names[name] = struct{}{}
		}
	}
	o.logger.LogOpen(ctx, len(names), nil)

	return &Database{
		store:   store,
		opts:    o,
		names:   names,
		pending: make(map[string]struct{}),
		gens:    make(map[string]uint64),
	}, nil
}

// Len returns the number of persisted collections.
func (db *Database) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.names)
}

// Names returns the collection names in ascending order.
func (db *Database) Names() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.names))
	for n := range db.names {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Has reports whether name is a persisted collection.
func (db *Database) Has(name string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.names[name]
	return ok
}

// Close marks the database closed. Collections already handed out stay
// usable. The blob store is not closed.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
	return nil
}

// CreateCollection builds a collection from records, persists it under name
// and registers it. A nil cfg means DefaultConfig(). It fails with
// ErrCollectionExists if name is taken; the name is registered only after
// the blob has been written.
func CreateCollection[ID Identifier](ctx context.Context, db *Database, name string, shape Shape, cfg *Config, records []Record[ID]) (c *Collection[ID], err error) {
	start := time.Now()
	size := 0
	defer func() {
		db.opts.metricsCollector.RecordCreate(size, time.Since(start), err)
		db.opts.logger.LogCreate(ctx, name, len(records), size, err)
	}()

	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := db.reserve(name); err != nil {
		return nil, err
	}
	ok := false
	defer func() { db.finish(name, ok) }()

	c, err = NewWithRecords[ID](shape, cfg, records)
	if err != nil {
		return nil, err
	}
	if size, err = db.put(ctx, name, c); err != nil {
		return nil, err
	}
	ok = true
	return c, nil
}

// GetCollection loads the named collection. The ID type and shape must
// match the persisted ones.
func GetCollection[ID Identifier](ctx context.Context, db *Database, name string, shape Shape) (c *Collection[ID], err error) {
	start := time.Now()
	size := 0
	defer func() {
		db.opts.metricsCollector.RecordLoad(size, time.Since(start), err)
		count := 0
		if c != nil {
			count = c.Len()
		}
		db.opts.logger.LogLoad(ctx, name, count, size, err)
	}()

	if err := db.lookup(name); err != nil {
		return nil, err
	}

	data, err := db.load(ctx, name)
	if err != nil {
		return nil, err
	}
	size = len(data)

	c, err = UnmarshalCollection[ID](data, shape)
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", name, err)
	}
	return c, nil
}

// SaveCollection persists c under name, replacing any previous version and
// registering name if it is new.
func SaveCollection[ID Identifier](ctx context.Context, db *Database, name string, c *Collection[ID]) (err error) {
	start := time.Now()
	size := 0
	defer func() {
		db.opts.metricsCollector.RecordSave(size, time.Since(start), err)
		count := 0
		if c != nil {
			count = c.Len()
		}
		db.opts.logger.LogSave(ctx, name, count, size, err)
	}()

	if err := validateName(name); err != nil {
		return err
	}
	if c == nil {
		return errors.New("vecdir: nil collection")
	}
	if err := db.checkOpen(); err != nil {
		return err
	}

	if size, err = db.put(ctx, name, c); err != nil {
		return err
	}

	db.mu.Lock()
	db.names[name] = struct{}{}
	db.mu.Unlock()
	return nil
}

// DeleteCollection removes the named collection's blob and then its
// registration. The registration is kept if the backend delete fails.
func (db *Database) DeleteCollection(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() {
		db.opts.metricsCollector.RecordDelete(time.Since(start), err)
		db.opts.logger.LogDelete(ctx, name, err)
	}()

	if err := db.lookup(name); err != nil {
		return err
	}

	if err := db.store.Delete(ctx, BlobName(name)); err != nil {
		err = storageError("delete", name, err)
		if errors.Is(err, ErrCollectionNotFound) {
			// The blob vanished underneath us.
			db.unregister(name)
		}
		return err
	}
	db.unregister(name)
	return nil
}

// Info reads the header of the named collection's blob.
func (db *Database) Info(ctx context.Context, name string) (BlobInfo, error) {
	if err := db.lookup(name); err != nil {
		return BlobInfo{}, err
	}
	data, err := db.load(ctx, name)
	if err != nil {
		return BlobInfo{}, err
	}
	info, err := ReadBlobInfo(data)
	if err != nil {
		return BlobInfo{}, fmt.Errorf("collection %q: %w", name, err)
	}
	return info, nil
}

type marshaler interface {
	Marshal(kind codec.Compression) ([]byte, error)
}

func (db *Database) put(ctx context.Context, name string, c marshaler) (int, error) {
	data, err := c.Marshal(db.opts.compression)
	if err != nil {
		return 0, err
	}
	if err := db.store.Put(ctx, BlobName(name), data); err != nil {
		return 0, storageError("write", name, err)
	}
	db.bump(name)
	return len(data), nil
}

// load reads a collection blob. Concurrent loads of one name share a read,
// but a load never joins a read that started before the last completed
// write of that name.
func (db *Database) load(ctx context.Context, name string) ([]byte, error) {
	db.mu.RLock()
	key := name + "\x00" + strconv.FormatUint(db.gens[name], 10)
	db.mu.RUnlock()

	v, err, _ := db.loads.Do(key, func() (any, error) {
		data, err := db.store.Get(ctx, BlobName(name))
		if err != nil {
			return nil, storageError("read", name, err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (db *Database) checkOpen() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrClosed
	}
	return nil
}

// lookup fails unless name is registered.
func (db *Database) lookup(name string) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrClosed
	}
	if _, ok := db.names[name]; !ok {
		return fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	return nil
}

// reserve claims name for a create in progress.
func (db *Database) reserve(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	if _, ok := db.names[name]; ok {
		return fmt.Errorf("%w: %q", ErrCollectionExists, name)
	}
	if _, ok := db.pending[name]; ok {
		return fmt.Errorf("%w: %q", ErrCollectionExists, name)
	}
	db.pending[name] = struct{}{}
	return nil
}

// finish releases a reservation and registers name on success.
func (db *Database) finish(name string, ok bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.pending, name)
	if ok {
		db.names[name] = struct{}{}
	}
}

func (db *Database) bump(name string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.gens[name]++
}

func (db *Database) unregister(name string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.names, name)
	db.gens[name]++
}
