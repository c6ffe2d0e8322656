package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vsayer/materialize/internal/bootstrap"
	"github.com/vsayer/materialize/internal/index"
	"github.com/vsayer/materialize/internal/logging"
	"github.com/vsayer/materialize/internal/render"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List catalog items and their dependencies",
	Long: `Open the catalog read-only and list its items with the ids they use and
the ids that use them. Only user items are listed unless --all is given.

Examples:
  catalogd items --data-dir ./catalog
  catalogd items --all --plans`,
	Args: cobra.NoArgs,
	RunE: runItems,
}

type itemsFlagValues struct {
	all     bool
	plans   bool
	timeout time.Duration
}

var itemsFlags itemsFlagValues

func init() {
	rootCmd.AddCommand(itemsCmd)

	itemsCmd.Flags().BoolVar(&itemsFlags.all, "all", false, "Include built-in items")
	itemsCmd.Flags().BoolVar(&itemsFlags.plans, "plans", false,
		"Show cached plan descriptions of indexes and materialized views")
	itemsCmd.Flags().DurationVar(&itemsFlags.timeout, "timeout", time.Minute,
		"Catastrophic failure protection timeout (default 1m)")
}

func runItems(cmd *cobra.Command, args []string) error {
	verbose := getVerboseFlag(cmd)
	logger := logging.NewConsoleLogger(verbose)

	projectCfg, err := loadProjectConfig(storeFlags.configDir)
	if err != nil {
		return err
	}
	settings, err := resolveStore(cmd, projectCfg)
	if err != nil {
		return err
	}
	settings.readOnly = true
	if verbose {
		logStoreVerbose(settings)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), itemsFlags.timeout)
	defer cancel()

	store, err := openStore(ctx, settings, logger, time.Now)
	if err != nil {
		return err
	}
	defer store.Close()

	cfg, err := buildBootstrapConfig(cmd, projectCfg, store, logger)
	if err != nil {
		return err
	}
	// Listing must not block on an external parameter source.
	cfg.SystemParameterFrontend = nil

	res, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return err
	}

	entries := res.Catalog.Entries()
	if !itemsFlags.all {
		entries = userEntries(entries)
	}
	printer := render.NewPrinter(os.Stdout, render.ColorEnabled(os.Stdout), render.Width(os.Stdout))
	if itemsFlags.plans {
		printer.Items(entries, res.Catalog.Plan)
	} else {
		printer.Items(entries, nil)
	}
	return nil
}

func userEntries(entries []*index.Entry) []*index.Entry {
	out := make([]*index.Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID.IsUser() {
			out = append(out, e)
		}
	}
	return out
}
