package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRouterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "router",
		Short: "Manage router contracts, interfaces and gateways",
		Long: `A router is a contract that allows all traffic between the networks
attached to it. Interfaces attach a network's endpoint group to the
contract; a gateway connects the router to an external routed network.`,
	}

	var vrf string

	create := &cobra.Command{
		Use:     "create <router> <owner-tenant>",
		Short:   "Create the router contract",
		Example: `  apicsync router create r1 6f1c2a0e`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.CreateRouter(ctx, args[0], args[1], vrf); err != nil {
					return err
				}
				return printResult(map[string]string{"router": args[0], "owner": args[1]},
					fmt.Sprintf("router %s created", args[0]))
			})
		},
	}
	create.Flags().StringVar(&vrf, "vrf", "", "private network to enforce (defaults to the configured context)")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <router>",
		Short: "Delete the router contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.DeleteRouter(ctx, args[0]); err != nil {
					return err
				}
				return printResult(map[string]string{"router": args[0]}, fmt.Sprintf("router %s deleted", args[0]))
			})
		},
	})

	var ifVrf string
	addIf := &cobra.Command{
		Use:   "add-interface <tenant> <router> <network>",
		Short: "Attach a network to a router",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.AddRouterInterface(ctx, args[0], args[1], args[2], ifVrf); err != nil {
					return err
				}
				return printResult(map[string]string{"tenant": args[0], "router": args[1], "network": args[2]},
					fmt.Sprintf("network %s attached to router %s", args[2], args[1]))
			})
		},
	}
	addIf.Flags().StringVar(&ifVrf, "vrf", "", "private network of the tenant")
	cmd.AddCommand(addIf)

	removeIf := &cobra.Command{
		Use:   "remove-interface <tenant> <router> <network>",
		Short: "Detach a network from a router",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.RemoveRouterInterface(ctx, args[0], args[1], args[2], ifVrf); err != nil {
					return err
				}
				return printResult(map[string]string{"tenant": args[0], "router": args[1], "network": args[2]},
					fmt.Sprintf("network %s detached from router %s", args[2], args[1]))
			})
		},
	}
	removeIf.Flags().StringVar(&ifVrf, "vrf", "", "private network of the tenant")
	cmd.AddCommand(removeIf)

	cmd.AddCommand(&cobra.Command{
		Use:   "set-gateway <router> <external-name> <network>",
		Short: "Connect a router to a configured external network",
		Long: `Build the external routed network described under engine.external_networks
for external-name and make its external endpoint group consume and
provide the router contract.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.EnsureRouterGateway(ctx, args[0], args[1], args[2]); err != nil {
					return err
				}
				return printResult(map[string]string{"router": args[0], "external": args[1], "network": args[2]},
					fmt.Sprintf("router %s gateway set to %s", args[0], args[1]))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear-gateway <router> <network>",
		Short: "Disconnect a router from its external network",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.DeleteRouterGateway(ctx, args[0], args[1]); err != nil {
					return err
				}
				return printResult(map[string]string{"router": args[0], "network": args[1]},
					fmt.Sprintf("router %s gateway cleared", args[0]))
			})
		},
	})

	return cmd
}
