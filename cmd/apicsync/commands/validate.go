package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file",
		Long: `Load the configuration file, apply defaults and run every validation
rule without contacting the controller.`,
		Example: `  apicsync validate -c /etc/apicsync/apicsync.cue`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			summary := map[string]interface{}{
				"controllers":       cfg.APIC.BaseURLs(),
				"store":             cfg.Store.Path,
				"static_switches":   len(cfg.Engine.Switches),
				"external_networks": len(cfg.Engine.ExternalNetworks),
				"discovery_hosts":   len(cfg.Discovery.Hosts),
			}
			return printResult(summary, fmt.Sprintf("%s: ok (%d controllers, %d static switches, %d discovery hosts)",
				configPath, len(cfg.APIC.Hosts), len(cfg.Engine.Switches), len(cfg.Discovery.Hosts)))
		},
	}
}
