package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/hupe1980/vecdir/internal/fs"
	"github.com/hupe1980/vecdir/internal/mmap"
)

const tempSuffix = ".tmp"

var _ Store = (*LocalStore)(nil)

// LocalStore implements Store with one file per blob in a directory.
//
// Put writes a temporary file, fsyncs it, renames it over the target and
// fsyncs the directory. Get memory-maps the file and copies it out.
type LocalStore struct {
	root string
	fs   fs.FileSystem
	mmap bool
	seq  atomic.Uint64
}

// FileSystem is the file API a LocalStore writes through. Wrapping it lets
// callers inject faults or observe file operations.
type FileSystem = fs.FileSystem

// File is an open file of a FileSystem.
type File = fs.File

// OSFileSystem returns the FileSystem backed by the os package.
func OSFileSystem() FileSystem {
	return fs.LocalFS{}
}

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithFileSystem routes file operations through fsys. Reads then go through
// fsys instead of mmap.
func WithFileSystem(fsys FileSystem) LocalOption {
	return func(s *LocalStore) {
		s.fs = fsys
		s.mmap = false
	}
}

// NewLocalStore creates a LocalStore rooted at root, creating the directory
// if it does not exist.
func NewLocalStore(root string, opts ...LocalOption) (*LocalStore, error) {
	s := &LocalStore{root: root, fs: fs.Default, mmap: true}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root %q: %w", root, err)
	}
	return s, nil
}

// Root returns the directory the store writes to.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, name)
}

// Get reads the named blob.
func (s *LocalStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		data []byte
		err  error
	)
	if s.mmap {
		data, err = mmap.ReadFile(s.path(name))
	} else {
		data, err = s.readFile(s.path(name))
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, notFound(name)
	}
	return data, err
}

func (s *LocalStore) readFile(path string) ([]byte, error) {
	f, err := s.fs.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Put atomically replaces the named blob.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.path(name)
	tmpPath := fmt.Sprintf("%s.%d-%d%s", path, os.Getpid(), s.seq.Add(1), tempSuffix)

	f, err := s.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return err
	}

	if err := s.fs.Rename(tmpPath, path); err != nil {
		_ = s.fs.Remove(tmpPath)
		return err
	}

	// Directory handles cannot be fsynced on Windows.
	if runtime.GOOS == "windows" {
		return nil
	}
	return fs.SyncDir(s.fs, s.root)
}

// Delete removes the named blob.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.fs.Remove(s.path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return notFound(name)
		}
		return err
	}
	return nil
}

// List returns regular files with the prefix, skipping in-progress writes.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := s.fs.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, tempSuffix) || !strings.HasPrefix(name, prefix) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}
