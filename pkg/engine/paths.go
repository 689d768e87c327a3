package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/noironetworks/neutron/pkg/mo"
	"github.com/noironetworks/neutron/pkg/stores"
)

// EnsurePathCreatedForPort binds the network's endpoint group with VLAN
// encap to every switch port the host is cabled to. It fails with
// ErrHostNotConfigured when no link of the host is known.
func (m *Manager) EnsurePathCreatedForPort(ctx context.Context, tenant, network, host string, encap int) error {
	return m.run(ctx, "ensure_path", tenant+"/"+network+"@"+host, func(ctx context.Context, u *undoStack) error {
		return m.ensurePathForPort(ctx, u, tenant, network, host, encap)
	})
}

func (m *Manager) ensurePathForPort(ctx context.Context, u *undoStack, tenant, network, host string, encap int) error {
	epg, err := m.ensureEPG(ctx, u, tenant, network)
	if err != nil {
		return err
	}
	links, err := m.store.ListHostLinksForHost(ctx, host)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return fmt.Errorf("%w: %s", ErrHostNotConfigured, host)
	}
	for _, l := range links {
		if err := m.ensurePathBinding(ctx, u, tenant, epg, encap, l.SwitchID, l.Module, l.Port); err != nil {
			return err
		}
	}
	return m.recordSegment(ctx, network, encap)
}

// recordSegment stores the VLAN a network is bound with on its endpoint
// group record.
func (m *Manager) recordSegment(ctx context.Context, network string, encap int) error {
	rec, err := m.store.GetNetworkEPG(ctx, network)
	if errors.Is(err, stores.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.SegmentationID == encap {
		return nil
	}
	rec.SegmentationID = encap
	return m.store.PutNetworkEPG(ctx, rec)
}

// EnsurePathBindingForPort statically binds an endpoint group to one
// switch port with VLAN encap.
func (m *Manager) EnsurePathBindingForPort(ctx context.Context, tenant, epg string, encap int, switchID, module, port string) error {
	key := fmt.Sprintf(PortDNPath, switchID, module, port)
	return m.run(ctx, "ensure_path_binding", key, func(ctx context.Context, u *undoStack) error {
		return m.ensurePathBinding(ctx, u, tenant, epg, encap, switchID, module, port)
	})
}

func (m *Manager) ensurePathBinding(ctx context.Context, u *undoStack, tenant, epg string, encap int, switchID, module, port string) error {
	pathDN := fmt.Sprintf(PortDNPath, switchID, module, port)
	attrs := mo.Attributes{
		"encap":       "vlan-" + strconv.Itoa(encap),
		"mode":        "regular",
		"instrImedcy": "immediate",
	}
	return m.ensure(ctx, u, "fvRsPathAtt", attrs, tenant, m.cfg.AppProfileName, epg, pathDN)
}

// EnsureVlansCreatedForHost binds every segment the host carries to the
// host's switch ports. Without a segment source there is nothing to bind.
func (m *Manager) EnsureVlansCreatedForHost(ctx context.Context, host string) error {
	return m.run(ctx, "ensure_host_vlans", host, func(ctx context.Context, u *undoStack) error {
		return m.ensureVlansForHost(ctx, u, host)
	})
}

func (m *Manager) ensureVlansForHost(ctx context.Context, u *undoStack, host string) error {
	if m.segments == nil {
		return nil
	}
	segments, err := m.segments.SegmentsForHost(ctx, host)
	if err != nil {
		return err
	}
	for _, seg := range segments {
		tenant, err := m.names.Tenant(ctx, seg.TenantID)
		if err != nil {
			return err
		}
		network, err := m.names.Network(ctx, seg.NetworkID)
		if err != nil {
			return err
		}
		if err := m.ensurePathForPort(ctx, u, tenant, network, host, seg.SegmentationID); err != nil {
			return err
		}
	}
	return nil
}
