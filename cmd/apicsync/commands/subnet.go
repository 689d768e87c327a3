package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSubnetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subnet",
		Short: "Manage gateway subnets on a bridge domain",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "ensure <tenant> <bridge-domain> <gateway-cidr>",
		Short:   "Add a gateway subnet to a bridge domain",
		Example: `  apicsync subnet ensure 6f1c2a0e net-a 10.0.0.1/24`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.EnsureSubnetCreated(ctx, args[0], args[1], args[2]); err != nil {
					return err
				}
				return printResult(map[string]string{"tenant": args[0], "bd": args[1], "subnet": args[2]},
					fmt.Sprintf("subnet %s ensured on %s", args[2], args[1]))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <tenant> <bridge-domain> <gateway-cidr>",
		Short: "Remove a gateway subnet from a bridge domain",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.EnsureSubnetDeleted(ctx, args[0], args[1], args[2]); err != nil {
					return err
				}
				return printResult(map[string]string{"tenant": args[0], "bd": args[1], "subnet": args[2]},
					fmt.Sprintf("subnet %s removed from %s", args[2], args[1]))
			})
		},
	})

	return cmd
}
