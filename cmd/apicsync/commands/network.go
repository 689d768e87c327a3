package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newNetworkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Manage the tenant objects backing a network",
		Long: `A network maps onto a bridge domain and an endpoint group of the same
name inside the tenant. The endpoint group is bound to the physical
domain so host ports can be attached to it.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "ensure <tenant> <network>",
		Short:   "Create the tenant, bridge domain and endpoint group",
		Example: `  apicsync network ensure 6f1c2a0e net-a`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				epg, err := a.manager.EnsureEPGCreatedForNetwork(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printResult(map[string]string{"tenant": args[0], "network": args[1], "epg": epg},
					fmt.Sprintf("network %s ensured as endpoint group %s", args[1], epg))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <tenant> <network>",
		Short: "Delete the endpoint group and bridge domain of a network",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.DeleteEPGForNetwork(ctx, args[0], args[1]); err != nil {
					return err
				}
				return printResult(map[string]string{"tenant": args[0], "network": args[1]},
					fmt.Sprintf("network %s deleted", args[1]))
			})
		},
	})

	return cmd
}
