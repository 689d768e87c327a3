package engine

import (
	"context"
	"errors"

	"github.com/noironetworks/neutron/pkg/stores"
)

// AddHostLink records a host interface cabled to a switch port. The first
// link of a host on a port brings up that switch's access profiles and
// binds the host's segments.
func (m *Manager) AddHostLink(ctx context.Context, link stores.HostLink) error {
	key := link.Host + "/" + link.Ifname
	err := m.run(ctx, "add_host_link", key, func(ctx context.Context, u *undoStack) error {
		onPort, err := m.store.ListHostLinksForPort(ctx, link.SwitchID, link.Module, link.Port)
		if err != nil {
			return err
		}
		known := false
		for _, l := range onPort {
			if l.Host == link.Host {
				known = true
				break
			}
		}

		if err := m.putHostLink(ctx, u, &link); err != nil {
			return err
		}
		if known {
			return nil
		}
		if err := m.ensureSwitchInfra(ctx, u, link.SwitchID); err != nil {
			return err
		}
		return m.ensureVlansForHost(ctx, u, link.Host)
	})
	m.countHostLinks(ctx)
	return err
}

// putHostLink writes a link and registers restoring what it replaced.
func (m *Manager) putHostLink(ctx context.Context, u *undoStack, link *stores.HostLink) error {
	prev, err := m.store.GetHostLink(ctx, link.Host, link.Ifname)
	if err != nil && !errors.Is(err, stores.ErrNotFound) {
		return err
	}
	if err := m.store.PutHostLink(ctx, link); err != nil {
		return err
	}
	host, ifname := link.Host, link.Ifname
	u.push("restore host link "+host+"/"+ifname, func(ctx context.Context) error {
		if prev != nil {
			return m.store.PutHostLink(ctx, prev)
		}
		return m.store.DeleteHostLink(ctx, host, ifname)
	})
	return nil
}

// RemoveHostLink forgets a host link and trims the switch's access
// profiles to the links that remain. A switch left without links loses its
// node and port profiles. Unknown links are ignored.
func (m *Manager) RemoveHostLink(ctx context.Context, host, ifname string) error {
	err := m.run(ctx, "remove_host_link", host+"/"+ifname, func(ctx context.Context, u *undoStack) error {
		link, err := m.store.GetHostLink(ctx, host, ifname)
		if errors.Is(err, stores.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := m.store.DeleteHostLink(ctx, host, ifname); err != nil {
			return err
		}

		links, err := m.store.ListHostLinks(ctx)
		if err != nil {
			return err
		}
		var onSwitch, onPort, onModule int
		for _, l := range links {
			if l.SwitchID != link.SwitchID {
				continue
			}
			onSwitch++
			if l.Module == link.Module {
				onModule++
			}
			if l.SamePort(link) {
				onPort++
			}
		}

		switch {
		case onSwitch == 0:
			return m.removeSwitchInfra(ctx, link.SwitchID)
		case onModule == 0:
			rec, err := m.store.GetPortProfile(ctx, link.SwitchID)
			if errors.Is(err, stores.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			return m.remove(ctx, "infraHPortS", rec.ProfileID, "hports-"+link.Module, "range")
		case onPort == 0:
			return m.ensureSwitchInfra(ctx, u, link.SwitchID)
		}
		return nil
	})
	m.countHostLinks(ctx)
	return err
}

func (m *Manager) removeSwitchInfra(ctx context.Context, switchID string) error {
	if err := m.remove(ctx, "infraNodeP", switchID); err != nil {
		return err
	}
	rec, err := m.store.GetPortProfile(ctx, switchID)
	if errors.Is(err, stores.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := m.remove(ctx, "infraAccPortP", rec.ProfileID); err != nil {
		return err
	}
	return m.store.DeletePortProfile(ctx, switchID)
}

// UpdateLink applies one discovered link state. An empty switch means the
// interface lost its neighbour. A link that moved is removed and added
// again rather than updated in place.
func (m *Manager) UpdateLink(ctx context.Context, link stores.HostLink) error {
	if link.SwitchID == "" {
		return m.RemoveHostLink(ctx, link.Host, link.Ifname)
	}
	current, err := m.store.GetHostLink(ctx, link.Host, link.Ifname)
	switch {
	case errors.Is(err, stores.ErrNotFound):
		return m.AddHostLink(ctx, link)
	case err != nil:
		return err
	}
	if current.SamePort(&link) && current.Ifmac == link.Ifmac {
		return nil
	}
	if err := m.RemoveHostLink(ctx, link.Host, link.Ifname); err != nil {
		return err
	}
	return m.AddHostLink(ctx, link)
}

// ListHostLinks returns every recorded host link.
func (m *Manager) ListHostLinks(ctx context.Context) ([]*stores.HostLink, error) {
	return m.store.ListHostLinks(ctx)
}

func (m *Manager) countHostLinks(ctx context.Context) {
	links, err := m.store.ListHostLinks(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("failed to count host links")
		return
	}
	m.tel.Metrics.SetHostLinks(len(links))
}

// Clean deletes the shared access infrastructure, under the names it was
// last applied with and the configured ones, and the profiles of every
// known switch from the controller, then drops every local record except
// the audit trail.
func (m *Manager) Clean(ctx context.Context) error {
	return m.run(ctx, "clean", m.cfg.DomainName, func(ctx context.Context, _ *undoStack) error {
		for _, obj := range m.infraObjects() {
			if err := m.removeInfraObject(ctx, obj); err != nil {
				return err
			}
		}

		links, err := m.store.ListHostLinks(ctx)
		if err != nil {
			return err
		}
		switches := switchesOf(links)
		for sw := range m.cfg.Switches {
			switches = append(switches, sw)
		}
		seen := make(map[string]bool)
		for _, sw := range switches {
			if seen[sw] {
				continue
			}
			seen[sw] = true
			if err := m.removeSwitchInfra(ctx, sw); err != nil {
				return err
			}
		}

		if err := m.store.Clean(ctx); err != nil {
			return err
		}
		m.tel.Metrics.SetHostLinks(0)
		m.audit(ctx, stores.AuditActionClean, m.cfg.DomainName, map[string]interface{}{
			"switches":   len(seen),
			"host_links": len(links),
		})
		return nil
	})
}
