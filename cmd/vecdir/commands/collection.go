package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/vecdir"
	"github.com/hupe1980/vecdir/distance"
)

func newListCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(v, cmd, func(_ context.Context, db *vecdir.Database, s Settings) error {
				names := db.Names()
				if s.JSON {
					return writeJSON(cmd.OutOrStdout(), names)
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			})
		},
	}
}

func newCreateCmd(v *viper.Viper) *cobra.Command {
	def := vecdir.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty collection",
		Long: `Create an empty collection with uint64 IDs.

The code size is dim*bits/8 bytes, so dim*bits must be a multiple of 8.

Examples:
  vecdir create docs --dim 384 --bits 4 --metric cosine
  vecdir create small --dim 16 --bits 8 --index flat`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			dim, _ := f.GetInt("dim")
			bits, _ := f.GetInt("bits")
			if dim <= 0 || bits <= 0 || dim*bits%8 != 0 {
				return fmt.Errorf("dim*bits must be a positive multiple of 8 (dim=%d, bits=%d)", dim, bits)
			}
			shape := vecdir.Shape{Dimension: dim, CodeSize: dim * bits / 8}

			metricName, _ := f.GetString("metric")
			metric, err := distance.ParseMetric(metricName)
			if err != nil {
				return err
			}
			indexName, _ := f.GetString("index")
			index, err := vecdir.ParseIndexKind(indexName)
			if err != nil {
				return err
			}

			cfg := vecdir.DefaultConfig()
			cfg.Metric = metric
			cfg.Index = index
			cfg.M, _ = f.GetInt("m")
			cfg.EfConstruction, _ = f.GetInt("ef-construction")
			cfg.EfSearch, _ = f.GetInt("ef-search")
			cfg.FlatThreshold, _ = f.GetInt("flat-threshold")
			cfg.Seed, _ = f.GetUint64("seed")
			cfg.RangeMin, _ = f.GetFloat32("range-min")
			cfg.RangeMax, _ = f.GetFloat32("range-max")

			return withDatabase(v, cmd, func(ctx context.Context, db *vecdir.Database, s Settings) error {
				if _, err := vecdir.CreateCollection[id](ctx, db, args[0], shape, &cfg, nil); err != nil {
					return err
				}
				if s.JSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"name": args[0], "shape": shape})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s, %s, %s)\n", args[0], shape, metric, index)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.Int("dim", 0, "vector dimension (required)")
	f.Int("bits", 8, "bits per component: 1, 2, 4, 8, 16 or 32")
	f.String("metric", "l2", "distance metric: l2, cosine or dot")
	f.String("index", def.Index.String(), "index: auto, flat or hnsw")
	f.Int("m", def.M, "HNSW links per node")
	f.Int("ef-construction", def.EfConstruction, "HNSW build beam width")
	f.Int("ef-search", def.EfSearch, "HNSW query beam width")
	f.Int("flat-threshold", def.FlatThreshold, "entries before auto switches to HNSW")
	f.Uint64("seed", def.Seed, "HNSW level seed")
	f.Float32("range-min", def.RangeMin, "lower bound of the quantization range")
	f.Float32("range-max", def.RangeMax, "upper bound of the quantization range")
	_ = cmd.MarkFlagRequired("dim")
	return cmd
}

func newInfoCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Describe a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(v, cmd, func(ctx context.Context, db *vecdir.Database, s Settings) error {
				c, info, err := loadCollection(ctx, db, args[0])
				if err != nil {
					return err
				}
				cfg, stats := c.Config(), c.Stats()
				if s.JSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"name":   args[0],
						"blob":   info,
						"config": cfg,
						"stats":  stats,
					})
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "name\t%s\n", args[0])
				fmt.Fprintf(w, "shape\t%s\n", info.Shape)
				fmt.Fprintf(w, "id\t%s (%d bytes)\n", info.IDKind, info.IDWidth)
				fmt.Fprintf(w, "metric\t%s\n", cfg.Metric)
				fmt.Fprintf(w, "index\t%s (serving %s)\n", cfg.Index, stats.Index)
				fmt.Fprintf(w, "count\t%d\n", stats.Count)
				fmt.Fprintf(w, "deleted\t%d\n", stats.Deleted)
				fmt.Fprintf(w, "compression\t%s\n", info.Compression)
				fmt.Fprintf(w, "size\t%d bytes (%d raw)\n", info.StoredSize, info.RawSize)
				if len(stats.GraphLevels) > 0 {
					fmt.Fprintf(w, "graph levels\t%v\n", stats.GraphLevels)
					fmt.Fprintf(w, "graph edges\t%v\n", stats.GraphEdges)
				}
				return w.Flush()
			})
		},
	}
}

func newCompactCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "compact <name>",
		Short: "Drop deleted entries from a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(v, cmd, func(ctx context.Context, db *vecdir.Database, s Settings) error {
				c, _, err := loadCollection(ctx, db, args[0])
				if err != nil {
					return err
				}
				removed := c.Stats().Deleted
				compacted, err := c.Compact()
				if err != nil {
					return err
				}
				if err := vecdir.SaveCollection(ctx, db, args[0], compacted); err != nil {
					return err
				}
				if s.JSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"name": args[0], "removed": removed, "count": compacted.Len()})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "compacted %s: removed %d, %d remain\n", args[0], removed, compacted.Len())
				return nil
			})
		},
	}
}

func newDeleteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(v, cmd, func(ctx context.Context, db *vecdir.Database, s Settings) error {
				if err := db.DeleteCollection(ctx, args[0]); err != nil {
					return err
				}
				if s.JSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"name": args[0], "deleted": true})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}
