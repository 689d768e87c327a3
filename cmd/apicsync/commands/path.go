package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newPathCommand() *cobra.Command {
	var encap int

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Bind host ports to network endpoint groups",
	}

	ensure := &cobra.Command{
		Use:   "ensure <tenant> <network> <host>",
		Short: "Bind every switch port of a host to the network",
		Long: `Create a static path binding with the given VLAN encapsulation for each
switch port the host is cabled to. Ports come from the host link records
first and from the static switch configuration otherwise.`,
		Example: `  apicsync path ensure 6f1c2a0e net-a compute-1 --encap 1001`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if encap <= 0 || encap >= 4095 {
				return fmt.Errorf("--encap must be a VLAN id between 1 and 4094")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.EnsurePathCreatedForPort(ctx, args[0], args[1], args[2], encap); err != nil {
					return err
				}
				return printResult(map[string]interface{}{"tenant": args[0], "network": args[1], "host": args[2], "encap": encap},
					fmt.Sprintf("host %s bound to %s on vlan-%d", args[2], args[1], encap))
			})
		},
	}
	ensure.Flags().IntVar(&encap, "encap", 0, "VLAN id of the network segment")
	_ = ensure.MarkFlagRequired("encap")
	cmd.AddCommand(ensure)

	cmd.AddCommand(&cobra.Command{
		Use:   "vlans <host>",
		Short: "Bind a host's ports for every known segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.EnsureVlansCreatedForHost(ctx, args[0]); err != nil {
					return err
				}
				return printResult(map[string]string{"host": args[0]}, fmt.Sprintf("segments bound for host %s", args[0]))
			})
		},
	})

	return cmd
}
