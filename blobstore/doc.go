// Package blobstore provides the storage abstraction that databases persist
// collections through.
//
// A Store holds whole blobs addressed by flat names. Implementations must be
// safe for concurrent use and must replace blobs atomically: a reader sees
// either the previous or the new contents of a blob, never a mix, and a
// failed Put leaves the previous contents in place.
//
// # Built-in Implementations
//
//   - LocalStore: one file per blob in a directory (temp file, fsync, rename)
//   - MemoryStore: process memory, for tests and ephemeral databases
//   - s3.Store: Amazon S3
//   - minio.Store: MinIO and other S3-compatible services
//   - badger.Store: a BadgerDB key-value store
//   - bolt.Store: a bbolt database file
//
// # Wrappers
//
//   - CachingStore: LRU read cache with deduplicated concurrent reads
//   - LimitedStore: caps concurrent requests and throughput
//
// # Custom Implementations
//
//	type Store interface {
//	    Get(ctx, name) ([]byte, error)      // ErrNotFound if absent
//	    Put(ctx, name, data) error          // atomic replace
//	    Delete(ctx, name) error             // ErrNotFound if absent
//	    List(ctx, prefix) ([]string, error) // sorted names
//	}
//
// The blobtest package holds a conformance suite for implementations.
package blobstore
