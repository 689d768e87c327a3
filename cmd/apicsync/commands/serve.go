package commands

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/noironetworks/neutron/pkg/config"
	"github.com/noironetworks/neutron/pkg/telemetry"
	"github.com/noironetworks/neutron/pkg/topology"
	"github.com/noironetworks/neutron/pkg/transports/ssh"
)

func newServeCommand() *cobra.Command {
	var skipInfra bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run topology discovery continuously",
		Long: `Bring up the access infrastructure, then poll the LLDP neighbours of every
discovery host on the configured interval and provision the switch ports
they are cabled to. Prometheus metrics are served when enabled.

Changes to the discovery section of the configuration file are picked up
without a restart. Controller, store and engine settings need a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return serve(ctx, a, skipInfra)
			})
		},
	}

	cmd.Flags().BoolVar(&skipInfra, "skip-infra", false, "do not ensure the access infrastructure on start")
	return cmd
}

func serve(ctx context.Context, a *app, skipInfra bool) error {
	logger := a.tel.Logger.NewComponentLogger("serve")

	if !skipInfra {
		if err := a.manager.EnsureInfraCreated(ctx); err != nil {
			return err
		}
	}

	if a.policies != nil && len(a.cfg.Policy.Paths) > 0 {
		if err := a.policies.Watch(ctx, a.cfg.Policy.Paths); err != nil {
			logger.WithError(err).Warn("policy files will not be reloaded")
		}
	}

	metricsErrs := a.tel.StartMetricsServer()
	svc := topology.NewService(a.manager, a.tel.Logger)
	pool := &agentPool{svc: svc, logger: a.tel.Logger}
	defer pool.stop()

	reloads := make(chan *config.Config, 1)
	watcher := config.NewWatcher(configPath, a.cfg, a.tel.Logger, func(cfg *config.Config) {
		select {
		case reloads <- cfg:
		default:
			<-reloads
			reloads <- cfg
		}
	})
	watchErrs := make(chan error, 1)
	go func() { watchErrs <- watcher.Run(ctx) }()

	pool.start(ctx, a.cfg.Discovery)
	logger.WithField("hosts", len(a.cfg.Discovery.Hosts)).Info("apicsync serving")

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case cfg := <-reloads:
			logger.Info("configuration changed, restarting discovery")
			pool.stop()
			pool.start(ctx, cfg.Discovery)
		case err := <-watchErrs:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Warn("configuration watcher stopped")
			}
			watchErrs = nil
		case err, ok := <-metricsErrs:
			if !ok {
				metricsErrs = nil
				continue
			}
			if err != nil {
				return err
			}
		}
	}
}

// agentPool runs one discovery agent per host.
type agentPool struct {
	svc    *topology.Service
	logger *telemetry.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (p *agentPool) start(parent context.Context, d config.DiscoveryConfig) {
	if !d.Enabled {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel

	for _, h := range d.Hosts {
		sshCfg := h.SSH
		client, err := ssh.NewClient(&sshCfg)
		if err != nil {
			log.Error().Err(err).Str("host", h.Name).Msg("skipping discovery host")
			continue
		}
		agent := topology.NewAgent(h.Name, d.Uplinks(h), client, p.svc, topology.WithLogger(p.logger))

		p.wg.Add(1)
		go func(name string) {
			defer p.wg.Done()
			defer client.Disconnect()
			if err := agent.Run(ctx, d.PollInterval); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("host", name).Msg("discovery agent stopped")
			}
		}(h.Name)
	}
}

func (p *agentPool) stop() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.wg.Wait()
}
