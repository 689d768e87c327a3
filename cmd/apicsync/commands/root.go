package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "apicsync",
		Short: "Reconcile cloud networks onto an APIC fabric",
		Long: `apicsync drives a fabric controller from control-plane events.

Every command is idempotent: objects that already exist with the wanted
attributes are left alone, and a failed multi-step operation removes the
objects it created before returning the error.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "apicsync.yaml", "config file path (.yaml or .cue)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newInfraCommand())
	rootCmd.AddCommand(newNetworkCommand())
	rootCmd.AddCommand(newSubnetCommand())
	rootCmd.AddCommand(newPathCommand())
	rootCmd.AddCommand(newRouterCommand())
	rootCmd.AddCommand(newHostLinkCommand())
	rootCmd.AddCommand(newDiscoverCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newCleanCommand())
	rootCmd.AddCommand(newPolicyCommand())

	return rootCmd
}
