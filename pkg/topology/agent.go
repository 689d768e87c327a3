package topology

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noironetworks/neutron/pkg/stores"
	"github.com/noironetworks/neutron/pkg/telemetry"
	"github.com/noironetworks/neutron/pkg/transports/ssh"
)

// ForceResendEvery is the default number of polls between full resends.
const ForceResendEvery = 100

// Reporter receives link updates. A link with an empty SwitchID reports
// that the interface lost its fabric neighbour.
type Reporter interface {
	UpdateLink(ctx context.Context, link stores.HostLink) error
}

// Agent tracks the fabric neighbours of one host's uplinks.
type Agent struct {
	host       string
	uplinks    []string
	runner     ssh.Runner
	reporter   Reporter
	logger     *telemetry.Logger
	forceEvery int

	count int
	peers map[string]stores.HostLink
	macs  map[string]string
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithLogger sets the agent logger.
func WithLogger(l *telemetry.Logger) AgentOption {
	return func(a *Agent) { a.logger = l }
}

// WithForceResendEvery overrides ForceResendEvery.
func WithForceResendEvery(n int) AgentOption {
	return func(a *Agent) { a.forceEvery = n }
}

// NewAgent creates an agent for host polling uplinks through runner.
func NewAgent(host string, uplinks []string, runner ssh.Runner, reporter Reporter, opts ...AgentOption) *Agent {
	a := &Agent{
		host:       host,
		uplinks:    uplinks,
		runner:     runner,
		reporter:   reporter,
		forceEvery: ForceResendEvery,
		peers:      make(map[string]stores.HostLink),
		macs:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = telemetry.NewNopLogger()
	}
	a.logger = a.logger.NewComponentLogger("topology-agent").WithField("host", host)
	return a
}

// Links returns the links the agent last reported, keyed by interface.
func (a *Agent) Links() map[string]stores.HostLink {
	out := make(map[string]stores.HostLink, len(a.peers))
	for k, v := range a.peers {
		out[k] = v
	}
	return out
}

// Poll reads the LLDP neighbours once and reports what changed. A link
// whose report fails is retried on the next poll.
func (a *Agent) Poll(ctx context.Context) error {
	if len(a.uplinks) == 0 {
		return nil
	}

	force := false
	a.count++
	if a.count >= a.forceEvery {
		force = true
		a.count = 0
	}

	out, err := a.runner.Run(ctx, "lldpctl -f keyvalue "+strings.Join(a.uplinks, " "))
	if err != nil {
		return fmt.Errorf("lldp query on %s: %w", a.host, err)
	}

	stale := make(map[string]stores.HostLink, len(a.peers))
	for iface, link := range a.peers {
		stale[iface] = link
	}

	var errs []error
	for _, n := range ParseLLDP(out) {
		delete(stale, n.Interface)
		link := stores.HostLink{
			Host:     a.host,
			Ifname:   n.Interface,
			Ifmac:    a.mac(ctx, n.Interface),
			SwitchID: n.SwitchID,
			Module:   n.Module,
			Port:     n.Port,
		}
		prev, known := a.peers[n.Interface]
		if !force && known && sameLink(prev, link) {
			continue
		}
		if err := a.reporter.UpdateLink(ctx, link); err != nil {
			errs = append(errs, fmt.Errorf("report %s/%s: %w", a.host, n.Interface, err))
			continue
		}
		a.logger.WithField("ifname", n.Interface).
			WithField("switch", n.SwitchID).
			WithField("port", n.Module+"/"+n.Port).
			Debug("reported link")
		a.peers[n.Interface] = link
	}

	for iface := range stale {
		gone := stores.HostLink{Host: a.host, Ifname: iface}
		if err := a.reporter.UpdateLink(ctx, gone); err != nil {
			errs = append(errs, fmt.Errorf("report removal of %s/%s: %w", a.host, iface, err))
			continue
		}
		a.logger.WithField("ifname", iface).Info("fabric neighbour lost")
		delete(a.peers, iface)
	}
	return errors.Join(errs...)
}

// Run polls every interval until ctx is cancelled. Poll failures are
// logged and do not stop the loop.
func (a *Agent) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := a.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.WithError(err).Warn("lldp poll failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// mac returns the hardware address of iface. It is informational only,
// so a failed lookup yields "" and is retried on the next poll.
func (a *Agent) mac(ctx context.Context, iface string) string {
	if mac, ok := a.macs[iface]; ok {
		return mac
	}
	mac, err := a.runner.Run(ctx, "cat /sys/class/net/"+iface+"/address")
	if err != nil {
		a.logger.WithError(err).WithField("ifname", iface).Warn("cannot read interface address")
		return ""
	}
	a.macs[iface] = mac
	return mac
}

func sameLink(a, b stores.HostLink) bool {
	return a.SamePort(&b) && a.Ifmac == b.Ifmac
}
