package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vsayer/materialize/internal/bootstrap"
	"github.com/vsayer/materialize/internal/builtin"
	"github.com/vsayer/materialize/internal/config"
	"github.com/vsayer/materialize/internal/durable"
	"github.com/vsayer/materialize/internal/logging"
	"github.com/vsayer/materialize/internal/paramsync"
	"github.com/vsayer/materialize/internal/render"
	"github.com/vsayer/materialize/internal/secrets"
	"github.com/vsayer/materialize/internal/telemetry"
	"github.com/vsayer/materialize/pkg/catalog"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Open the catalog and migrate changed built-ins",
	Long: `Open the catalog, migrating every built-in whose definition changed since
the last release together with everything that depends on it, then print
the migration plan and a summary of the opened catalog.

The first bootstrap of an empty store initializes it. With --read-only
nothing is written: ids are allocated in memory and the plan shows what a
writable bootstrap would do.

Examples:
  catalogd bootstrap --data-dir ./catalog
  catalogd bootstrap --conn postgresql://catalog@localhost/catalog --read-only
  catalogd bootstrap --param max_tables=100 --metrics-file catalogd.prom`,
	Args: cobra.NoArgs,
	RunE: runBootstrap,
}

type bootstrapFlagValues struct {
	params         []string
	paramsFile     string
	secretsDir     string
	skipMigrations bool
	traces         string
	metricsFile    string
	timeout        time.Duration
}

var bootstrapFlags bootstrapFlagValues

func init() {
	rootCmd.AddCommand(bootstrapCmd)

	bootstrapCmd.Flags().StringSliceVar(&bootstrapFlags.params, "param", nil,
		"System parameter defaults as name=value pairs (can be specified multiple times)\n"+
			"Override parameters.defaults in catalogd.yaml; persisted values still win\n"+
			"Example: --param max_tables=100")
	bootstrapCmd.Flags().StringVar(&bootstrapFlags.paramsFile, "params-file", "",
		"Pull system parameters from this .env file on the first writable boot\n"+
			"(default: parameters.sync_file in catalogd.yaml)")
	bootstrapCmd.Flags().StringVar(&bootstrapFlags.secretsDir, "secrets-dir", "",
		"Directory holding connection secrets (default: secrets_dir in catalogd.yaml)")
	bootstrapCmd.Flags().BoolVar(&bootstrapFlags.skipMigrations, "skip-migrations", false,
		"Do not run catalog content migrations")
	bootstrapCmd.Flags().StringVar(&bootstrapFlags.traces, "traces", "",
		"Trace exporter: none|stdout (default: telemetry.traces in catalogd.yaml)")
	bootstrapCmd.Flags().StringVar(&bootstrapFlags.metricsFile, "metrics-file", "",
		"Write bootstrap metrics to this file in Prometheus text format")
	bootstrapCmd.Flags().DurationVar(&bootstrapFlags.timeout, "timeout", 5*time.Minute,
		"Catastrophic failure protection timeout (default 5m)\n"+
			"Bounds store connection, parameter pull and bootstrap together")
}

func runBootstrap(cmd *cobra.Command, args []string) error {
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
	if verbose {
		logStoreVerbose(settings)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), bootstrapFlags.timeout)
	defer cancel()

	traces := projectCfg.Telemetry.Traces
	if bootstrapFlags.traces != "" {
		traces = bootstrapFlags.traces
	}
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "catalogd",
		ServiceVersion: catalogVersion(),
		TraceExporter:  traces,
		Output:         os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", catalog.ErrInvalidConfig, err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("Failed to flush traces: %v", err)
		}
	}()

	store, err := openStore(ctx, settings, logger, time.Now)
	if err != nil {
		return err
	}
	defer store.Close()

	cfg, err := buildBootstrapConfig(cmd, projectCfg, store, logger)
	if err != nil {
		return err
	}
	res, err := bootstrap.Open(ctx, cfg)

	if bootstrapFlags.metricsFile != "" {
		if werr := telemetry.WriteTextfile(bootstrapFlags.metricsFile); werr != nil {
			logger.Warn("Failed to write metrics to %s: %v", bootstrapFlags.metricsFile, werr)
		}
	}
	if err != nil {
		return err
	}

	printer := render.NewPrinter(os.Stdout, render.ColorEnabled(os.Stdout), render.Width(os.Stdout))
	printer.Migration(res.Migration)
	printer.Summary(summarize(res, cfg.BuildVersion, settings.readOnly))
	return nil
}

// buildBootstrapConfig merges catalogd.yaml with the bootstrap flags.
func buildBootstrapConfig(
	cmd *cobra.Command,
	projectCfg *config.ProjectConfig,
	store *durable.Store,
	logger catalog.Logger,
) (bootstrap.Config, error) {
	retention, err := projectCfg.Retention()
	if err != nil {
		return bootstrap.Config{}, fmt.Errorf("%w: %w", catalog.ErrInvalidConfig, err)
	}
	overrides, err := parseParameterFlags(bootstrapFlags.params)
	if err != nil {
		return bootstrap.Config{}, err
	}

	cfg := bootstrap.Config{
		Store:                   store,
		Builtins:                builtin.Default(),
		BuildVersion:            catalogVersion(),
		EnvironmentID:           projectCfg.EnvironmentID,
		SkipMigrations:          projectCfg.SkipMigrations,
		SystemParameterDefaults: mergeParameters(projectCfg.Parameters.Defaults, overrides),
		EgressIPs:               projectCfg.EgressIPs,
		StorageUsageRetention:   retention,
		Logger:                  logger,
	}
	if cmd.Flags().Changed("skip-migrations") {
		cfg.SkipMigrations = bootstrapFlags.skipMigrations
	}

	paramsFile := projectCfg.Parameters.SyncFile
	if bootstrapFlags.paramsFile != "" {
		paramsFile = bootstrapFlags.paramsFile
	}
	if paramsFile != "" {
		cfg.SystemParameterFrontend = paramsync.NewEnvFileFrontend(paramsFile)
	}

	secretsDir := projectCfg.SecretsDir
	if bootstrapFlags.secretsDir != "" {
		secretsDir = bootstrapFlags.secretsDir
	}
	if secretsDir != "" {
		cfg.Secrets = secrets.NewDirReader(secretsDir)
	}

	return cfg, cfg.Validate()
}

func summarize(res *bootstrap.Result, buildVersion string, readOnly bool) render.Summary {
	cat := res.Catalog
	s := render.Summary{
		SessionID:       cat.Config().SessionID.String(),
		BuildVersion:    buildVersion,
		LastSeenVersion: res.LastSeenVersion,
		BootTS:          cat.Config().BootTS,
		ReadOnly:        readOnly,
		Databases:       len(cat.Databases()),
		Schemas:         len(cat.Schemas()),
		Roles:           len(cat.Roles()),
		Clusters:        len(cat.Clusters()),
		TableUpdates:    len(res.BuiltinTableUpdates),
	}
	if res.Migration != nil {
		s.Migrated = len(res.Migration.AllCreateOps)
	}
	for _, e := range cat.Entries() {
		if e.ID.IsSystem() {
			s.SystemItems++
		} else {
			s.UserItems++
		}
	}
	return s
}
