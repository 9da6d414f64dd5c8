// Package bolt provides a blobstore.Store backed by a single bbolt file.
package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hupe1980/vecdir/blobstore"
)

var _ blobstore.Store = (*Store)(nil)

var bucketBlobs = []byte("blobs")

// Store is a blobstore.Store that keeps every blob in one bbolt bucket.
// Each Put commits its own transaction, so replacement is atomic.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlobs)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Get returns a copy of the named blob. bbolt values are only valid inside
// the transaction.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		k, v := tx.Bucket(bucketBlobs).Cursor().Seek([]byte(name))
		if k == nil || !bytes.Equal(k, []byte(name)) {
			return notFound(name)
		}
		out = bytes.Clone(v)
		if out == nil {
			out = []byte{}
		}
		return nil
	})
	return out, err
}

// Put stores data under name.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	if err := blobstore.ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlobs).Put([]byte(name), data)
	})
}

// Delete removes the named blob.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		// Get cannot distinguish a missing key from an empty value.
		if k, _ := b.Cursor().Seek([]byte(name)); k == nil || !bytes.Equal(k, []byte(name)) {
			return notFound(name)
		}
		return b.Delete([]byte(name))
	})
}

// List returns the names starting with prefix in key order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var names []string
	p := []byte(prefix)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketBlobs).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			names = append(names, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func notFound(name string) error {
	return fmt.Errorf("bolt: %q: %w", name, blobstore.ErrNotFound)
}
