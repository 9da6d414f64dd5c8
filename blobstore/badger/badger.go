// Package badger provides a blobstore.Store backed by BadgerDB v4.
//
// Each blob is one key. Values larger than badger's value threshold are kept
// in the value log, so multi-megabyte collections are fine.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/hupe1980/vecdir/blobstore"
)

var _ blobstore.Store = (*Store)(nil)

// Options configures a Store.
type Options struct {
	// Dir is the directory for BadgerDB data files.
	// Required unless InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger receives badger's warnings and errors. Nil discards them.
	Logger *slog.Logger
}

// Store is a blobstore.Store backed by BadgerDB.
type Store struct {
	db *badger.DB
}

// Open opens or creates a BadgerDB-backed store.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger: Options.Dir is required for on-disk mode")
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(slogAdapter{l: opts.Logger})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns a copy of the named blob.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) || errors.Is(err, badger.ErrEmptyKey) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, err
	}
	if val == nil {
		val = []byte{}
	}
	return val, nil
}

// Put writes the blob in a single transaction.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	if err := blobstore.ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(name), data)
	})
}

// Delete removes the named blob.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(name)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) || errors.Is(err, badger.ErrEmptyKey) {
		return notFound(name)
	}
	return err
}

// List returns the blob names starting with prefix. Badger iterates keys in
// byte order, so the result is already sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = []byte(prefix)

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
			names = append(names, string(it.Item().Key()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func notFound(name string) error {
	return fmt.Errorf("badger: %q: %w", name, blobstore.ErrNotFound)
}

// slogAdapter routes badger's logger to slog, dropping info and debug.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Errorf(f string, v ...any) {
	if a.l != nil {
		a.l.Error(fmt.Sprintf(f, v...), "component", "badger")
	}
}

func (a slogAdapter) Warningf(f string, v ...any) {
	if a.l != nil {
		a.l.Warn(fmt.Sprintf(f, v...), "component", "badger")
	}
}

func (slogAdapter) Infof(string, ...any)  {}
func (slogAdapter) Debugf(string, ...any) {}
