package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/noironetworks/neutron/pkg/config"
	"github.com/noironetworks/neutron/pkg/stores"
	"github.com/noironetworks/neutron/pkg/telemetry"
	"github.com/noironetworks/neutron/pkg/topology"
	"github.com/noironetworks/neutron/pkg/transports/ssh"
)

// linkCollector is a topology.Reporter that only remembers links.
type linkCollector struct {
	mu    sync.Mutex
	links []stores.HostLink
}

func (c *linkCollector) UpdateLink(_ context.Context, link stores.HostLink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links = append(c.links, link)
	return nil
}

func newDiscoverCommand() *cobra.Command {
	var (
		apply bool
		hosts []string
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Read LLDP neighbours of the configured hosts once",
		Long: `Connect to every host under discovery.hosts over SSH, read the LLDP
neighbours of its uplinks and print the switch ports found. With --apply
the links are also recorded and their switch ports provisioned.`,
		Example: `  # Show what the hosts see
  apicsync discover

  # Record the links of one host
  apicsync discover --host compute-1 --apply`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !apply {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				collector := &linkCollector{}
				err = pollHosts(cmd.Context(), cfg, hosts, collector, telemetry.NewNopLogger())
				if len(collector.links) > 0 || err == nil {
					printDiscovered(collector.links)
				}
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				svc := topology.NewService(a.manager, a.tel.Logger)
				if err := pollHosts(ctx, a.cfg, hosts, svc, a.tel.Logger); err != nil {
					return err
				}
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
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "record the links and provision their switch ports")
	cmd.Flags().StringSliceVar(&hosts, "host", nil, "only poll these hosts")
	return cmd
}

// pollHosts runs one discovery poll per selected host.
func pollHosts(ctx context.Context, cfg *config.Config, only []string, reporter topology.Reporter, logger *telemetry.Logger) error {
	selected := make(map[string]bool, len(only))
	for _, h := range only {
		selected[h] = true
	}

	var errs []error
	for _, h := range cfg.Discovery.Hosts {
		if len(selected) > 0 && !selected[h.Name] {
			continue
		}
		if err := pollHost(ctx, cfg, h, reporter, logger); err != nil {
			log.Error().Err(err).Str("host", h.Name).Msg("discovery failed")
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}

func pollHost(ctx context.Context, cfg *config.Config, h config.DiscoveryHost, reporter topology.Reporter, logger *telemetry.Logger) error {
	sshCfg := h.SSH
	client, err := ssh.NewClient(&sshCfg)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	agent := topology.NewAgent(h.Name, cfg.Discovery.Uplinks(h), client, reporter, topology.WithLogger(logger))
	return agent.Poll(ctx)
}

func printDiscovered(links []stores.HostLink) {
	if jsonOutput {
		_ = printResult(links, "")
		return
	}
	ptrs := make([]*stores.HostLink, len(links))
	for i := range links {
		ptrs[i] = &links[i]
	}
	printLinks(ptrs)
}
