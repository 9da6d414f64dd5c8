package commands

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/vecdir"
)

// id is the identifier type collections managed by the CLI use.
type id = uint64

// withDatabase opens the configured database, runs fn and releases it.
func withDatabase(v *viper.Viper, cmd *cobra.Command, fn func(ctx context.Context, db *vecdir.Database, s Settings) error) (err error) {
	s, err := settings(v)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	db, release, err := openDatabase(ctx, s, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := release(); err == nil {
			err = cerr
		}
	}()
	return fn(ctx, db, s)
}

// loadCollection loads name using the shape recorded in its header.
func loadCollection(ctx context.Context, db *vecdir.Database, name string) (*vecdir.Collection[id], vecdir.BlobInfo, error) {
	info, err := db.Info(ctx, name)
	if err != nil {
		return nil, vecdir.BlobInfo{}, err
	}
	c, err := vecdir.GetCollection[id](ctx, db, name, info.Shape)
	if err != nil {
		return nil, vecdir.BlobInfo{}, err
	}
	return c, info, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
