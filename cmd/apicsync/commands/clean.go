package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove the shared infrastructure and local records",
		Long: `Delete the access infrastructure and the switch profiles apicsync created,
then drop every local record except the audit trail. Tenant objects are
left in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("clean removes fabric access configuration; pass --yes to confirm")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.Clean(ctx); err != nil {
					return err
				}
				return printResult(map[string]bool{"cleaned": true}, "fabric access configuration removed")
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the clean-up")
	return cmd
}
