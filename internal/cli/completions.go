package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/vsayer/materialize/internal/config"
	"github.com/vsayer/materialize/internal/durable/pgstore"
	"github.com/vsayer/materialize/internal/sysvars"
	"github.com/vsayer/materialize/internal/telemetry"
)

var (
	storeBackends  = []string{config.BackendBadger, config.BackendPostgres}
	traceExporters = []string{telemetry.ExporterNone, telemetry.ExporterStdout}
	authMethods    = []string{pgstore.AuthPassword, pgstore.AuthAWSIAM, pgstore.AuthAzure, pgstore.AuthGoogle}
)

func completeFrom(values []string, toComplete string) []string {
	var matches []string
	for _, v := range values {
		if strings.HasPrefix(v, toComplete) {
			matches = append(matches, v)
		}
	}
	return matches
}

// completeStoreBackends provides shell completion for the --store flag.
func completeStoreBackends(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return completeFrom(storeBackends, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeAuthMethods provides shell completion for the --auth flag.
func completeAuthMethods(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return completeFrom(authMethods, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeTraceExporters provides shell completion for the --traces flag.
func completeTraceExporters(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return completeFrom(traceExporters, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeParameters completes --param with "name=" for every system parameter.
func completeParameters(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if strings.Contains(toComplete, "=") {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names := sysvars.New().Names()
	for i, n := range names {
		names[i] = n + "="
	}
	return completeFrom(names, toComplete), cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}

// completeDirectories provides shell completion for directory paths.
func completeDirectories(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	// Let the shell handle directory completion
	return nil, cobra.ShellCompDirectiveFilterDirs
}

func init() {
	_ = rootCmd.RegisterFlagCompletionFunc("store", completeStoreBackends)
	_ = rootCmd.RegisterFlagCompletionFunc("auth", completeAuthMethods)
	_ = rootCmd.RegisterFlagCompletionFunc("config-dir", completeDirectories)
	_ = rootCmd.RegisterFlagCompletionFunc("data-dir", completeDirectories)
	_ = bootstrapCmd.RegisterFlagCompletionFunc("traces", completeTraceExporters)
	_ = bootstrapCmd.RegisterFlagCompletionFunc("param", completeParameters)
	_ = bootstrapCmd.RegisterFlagCompletionFunc("secrets-dir", completeDirectories)
}
