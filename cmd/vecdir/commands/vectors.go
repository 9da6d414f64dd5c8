package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/vecdir"
	"github.com/hupe1980/vecdir/testutil"
)

func newImportCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <name>",
		Short: "Insert synthetic vectors into a collection",
		Long: `Insert generated vectors into an existing collection and save it.

Vectors are uniform over the collection's quantization range, or drawn
around random centroids with --clusters. IDs continue after the largest
live ID.

Examples:
  vecdir import docs --count 50000
  vecdir import docs --count 1000 --clusters 16 --spread 0.05`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			count, _ := f.GetInt("count")
			seed, _ := f.GetInt64("seed")
			clusters, _ := f.GetInt("clusters")
			spread, _ := f.GetFloat32("spread")
			if count <= 0 {
				return fmt.Errorf("--count must be positive, got %d", count)
			}

			return withDatabase(v, cmd, func(ctx context.Context, db *vecdir.Database, s Settings) error {
				c, info, err := loadCollection(ctx, db, args[0])
				if err != nil {
					return err
				}

				next := id(0)
				for existing := range c.All() {
					if existing >= next {
						next = existing + 1
					}
				}

				rng := testutil.NewRNG(seed)
				var vectors [][]float32
				if clusters > 0 {
					vectors = rng.ClusteredVectors(count, info.Shape.Dimension, clusters, spread)
				} else {
					cfg := c.Config()
					vectors = make([][]float32, count)
					for i := range vectors {
						vectors[i] = make([]float32, info.Shape.Dimension)
						rng.FillUniformRange(vectors[i], cfg.RangeMin, cfg.RangeMax)
					}
				}

				records := make([]vecdir.Record[id], count)
				for i, vec := range vectors {
					records[i] = vecdir.Record[id]{ID: next + id(i), Vector: vec}
				}
				if err := c.InsertBatch(records); err != nil {
					return err
				}
				if err := vecdir.SaveCollection(ctx, db, args[0], c); err != nil {
					return err
				}

				if s.JSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"name": args[0], "imported": count, "count": c.Len()})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d vectors into %s (%d total)\n", count, args[0], c.Len())
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.Int("count", 1000, "number of vectors to insert")
	f.Int64("seed", 1, "random seed")
	f.Int("clusters", 0, "draw vectors around this many centroids (0 for uniform)")
	f.Float32("spread", 0.1, "standard deviation around each centroid")
	return cmd
}

type searchHit struct {
	Rank     int     `json:"rank"`
	ID       id      `json:"id"`
	Distance float32 `json:"distance"`
}

func newSearchCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <name>",
		Short: "Run a k-nearest-neighbor query",
		Long: `Search a collection with an explicit or random query vector.

Examples:
  vecdir search docs --query 0.1,0.2,0.3,0.4 -k 3
  vecdir search docs --random --seed 7 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			query, _ := f.GetFloat32Slice("query")
			random, _ := f.GetBool("random")
			seed, _ := f.GetInt64("seed")
			k, _ := f.GetInt("k")
			if len(query) == 0 && !random {
				return errors.New("either --query or --random is required")
			}

			return withDatabase(v, cmd, func(ctx context.Context, db *vecdir.Database, s Settings) error {
				c, info, err := loadCollection(ctx, db, args[0])
				if err != nil {
					return err
				}
				if random {
					cfg := c.Config()
					query = make([]float32, info.Shape.Dimension)
					testutil.NewRNG(seed).FillUniformRange(query, cfg.RangeMin, cfg.RangeMax)
				}

				results, err := c.Search(query, k)
				if err != nil {
					return err
				}

				hits := make([]searchHit, len(results))
				for i, r := range results {
					hits[i] = searchHit{Rank: i + 1, ID: r.ID, Distance: r.Distance}
				}
				if s.JSON {
					return writeJSON(cmd.OutOrStdout(), hits)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "RANK\tID\tDISTANCE")
				for _, h := range hits {
					fmt.Fprintf(w, "%d\t%d\t%g\n", h.Rank, h.ID, h.Distance)
				}
				return w.Flush()
			})
		},
	}

	f := cmd.Flags()
	f.Float32Slice("query", nil, "comma-separated query vector")
	f.Bool("random", false, "use a random query vector")
	f.Int64("seed", 1, "seed for --random")
	f.IntP("k", "k", 10, "number of neighbors")
	return cmd
}
