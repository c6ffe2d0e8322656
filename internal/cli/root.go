package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "catalogd",
	Short: "Catalog bootstrap and built-in schema evolution",
	Long: `catalogd opens a durable catalog: it rebuilds the in-memory state, assigns
ids to the built-in objects of this release, migrates the built-ins whose
definitions changed together with every object that depends on them, and
produces the initial rows of the introspection tables.

The catalog lives either in an embedded Badger directory or in a PostgreSQL
table. Settings are read from catalogd.yaml in --config-dir, then from the
environment (a .env file in the working directory is loaded first), then
from flags.

Exit Codes:
  0  - Success
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration or parameters
  11 - Catalog store unreachable
  12 - Persisted catalog is corrupt
  13 - Item depends on a disabled introspection log
  14 - Catalog content migration failed
  15 - Write attempted against a read-only catalog`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo()
		return nil
	}
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().Bool("help", false, "Help for catalogd")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for all commands")
	addStoreFlags(rootCmd)
}

// getVerboseFlag safely retrieves the verbose flag value
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to get verbose flag: %v\n", err)
		return false
	}
	return verbose
}
