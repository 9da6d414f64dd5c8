// Package main provides the vecdir CLI tool.
//
// Usage:
//
//	vecdir [flags] <command> [args]
//
// Commands:
//
//	list     - List collections
//	create   - Create an empty collection
//	import   - Insert synthetic vectors into a collection
//	info     - Describe a collection
//	search   - Run a k-nearest-neighbor query
//	compact  - Drop deleted entries from a collection
//	delete   - Delete a collection
//
// Configuration:
//
//	Flags, VECDIR_* environment variables and an optional vecdir.yaml in
//	the working directory, in that order of precedence.
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/vecdir/cmd/vecdir/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
