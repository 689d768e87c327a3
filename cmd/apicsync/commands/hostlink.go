package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noironetworks/neutron/pkg/engine"
	"github.com/noironetworks/neutron/pkg/stores"
)

func newHostLinkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "hostlink",
		Aliases: []string{"link"},
		Short:   "Manage recorded host-to-switch links",
	}

	var mac string
	add := &cobra.Command{
		Use:   "add <host> <ifname> <switch> <module/port>",
		Short: "Record a link and provision the switch port",
		Example: `  apicsync hostlink add compute-1 eth2 101 1/17 --mac 52:54:00:12:34:56`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, port, err := engine.SplitModulePort(args[3])
			if err != nil {
				return err
			}
			link := stores.HostLink{
				Host:     args[0],
				Ifname:   args[1],
				Ifmac:    mac,
				SwitchID: args[2],
				Module:   module,
				Port:     port,
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.AddHostLink(ctx, link); err != nil {
					return err
				}
				return printResult(link, fmt.Sprintf("link %s/%s -> %s eth%s/%s recorded",
					link.Host, link.Ifname, link.SwitchID, link.Module, link.Port))
			})
		},
	}
	add.Flags().StringVar(&mac, "mac", "", "MAC address of the host interface")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <host> <ifname>",
		Short: "Forget a link and release its switch port",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.RemoveHostLink(ctx, args[0], args[1]); err != nil {
					return err
				}
				return printResult(map[string]string{"host": args[0], "ifname": args[1]},
					fmt.Sprintf("link %s/%s removed", args[0], args[1]))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recorded links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				links, err := a.manager.ListHostLinks(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printResult(links, "")
				}
				printLinks(links)
				return nil
			})
		},
	})

	return cmd
}

func printLinks(links []*stores.HostLink) {
	if len(links) == 0 {
		fmt.Println("no host links recorded")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tINTERFACE\tMAC\tSWITCH\tPORT\tUPDATED")
	for _, l := range links {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\teth%s/%s\t%s\n",
			l.Host, l.Ifname, l.Ifmac, l.SwitchID, l.Module, l.Port, l.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}
