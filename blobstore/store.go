package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrInvalidName is returned for names that cannot address a blob.
var ErrInvalidName = errors.New("blobstore: invalid blob name")

// Store is a flat namespace of atomically replaced blobs.
type Store interface {
	// Get returns the contents of the named blob.
	Get(ctx context.Context, name string) ([]byte, error)
	// Put creates or atomically replaces the named blob.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes the named blob.
	Delete(ctx context.Context, name string) error
	// List returns the names starting with prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ValidateName rejects names that are empty, contain a path separator or
// NUL, or are dot entries.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func notFound(name string) error {
	return fmt.Errorf("blobstore: %q: %w", name, ErrNotFound)
}
