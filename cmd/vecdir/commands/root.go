// Package commands implements the vecdir CLI.
package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const appName = "vecdir"

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree with its own configuration, so tests
// can run commands side by side.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Embedded vector database CLI",
		Long: `vecdir - A command line interface for vecdir databases.

A database is a directory (or a badger/bolt store inside it) holding
named collections of quantized vectors.

Configuration precedence: flags, VECDIR_* environment variables,
vecdir.yaml (or the file given with --config).

Examples:
  # Create a 128-dimensional, 8-bit collection and fill it
  vecdir create docs --dim 128 --bits 8
  vecdir import docs --count 10000

  # Query it
  vecdir search docs --random -k 5

  # Use a bolt store instead of one file per collection
  VECDIR_BACKEND=bolt vecdir list`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(v)
		},
	}

	addGlobalFlags(rootCmd.PersistentFlags())
	// Binding keeps pointers to the flags, so values parsed later are seen.
	_ = v.BindPFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newListCmd(v),
		newCreateCmd(v),
		newImportCmd(v),
		newInfoCmd(v),
		newSearchCmd(v),
		newCompactCmd(v),
		newDeleteCmd(v),
	)
	return rootCmd
}
