package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hupe1980/vecdir"
	"github.com/hupe1980/vecdir/blobstore"
	"github.com/hupe1980/vecdir/blobstore/badger"
	"github.com/hupe1980/vecdir/blobstore/bolt"
	"github.com/hupe1980/vecdir/codec"
)

// boltFile is the bolt database file inside the data directory.
const boltFile = "vecdir.bolt"

// openDatabase opens the configured backend. The returned func releases it.
func openDatabase(ctx context.Context, s Settings, logOut io.Writer) (*vecdir.Database, func() error, error) {
	level, err := parseLevel(s.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	comp, err := codec.Parse(s.Compression)
	if err != nil {
		return nil, nil, err
	}

	handler := slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})
	opts := []vecdir.Option{
		vecdir.WithLogger(vecdir.NewLogger(handler)),
		vecdir.WithCompression(comp),
	}
	if s.CacheSize > 0 {
		opts = append(opts, vecdir.WithCacheSize(s.CacheSize))
	}

	switch s.Backend {
	case "", "local":
		db, err := vecdir.Open(ctx, s.Dir, opts...)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil

	case "badger":
		store, err := badger.Open(badger.Options{Dir: s.Dir, Logger: slog.New(handler)})
		if err != nil {
			return nil, nil, err
		}
		return withStore(ctx, store, opts)

	case "bolt":
		if err := os.MkdirAll(s.Dir, 0o755); err != nil {
			return nil, nil, err
		}
		store, err := bolt.Open(filepath.Join(s.Dir, boltFile))
		if err != nil {
			return nil, nil, err
		}
		return withStore(ctx, store, opts)

	default:
		return nil, nil, fmt.Errorf("unknown backend %q (want local, badger or bolt)", s.Backend)
	}
}

type closableStore interface {
	blobstore.Store
	Close() error
}

func withStore(ctx context.Context, store closableStore, opts []vecdir.Option) (*vecdir.Database, func() error, error) {
	db, err := vecdir.NewDatabase(ctx, store, opts...)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	release := func() error {
		_ = db.Close()
		return store.Close()
	}
	return db, release, nil
}
