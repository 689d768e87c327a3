package engine

import (
	"context"
	"errors"
	"net/netip"

	"github.com/noironetworks/neutron/pkg/mo"
	"github.com/noironetworks/neutron/pkg/stores"
)

// EnsureTenantCreated makes sure a tenant exists.
func (m *Manager) EnsureTenantCreated(ctx context.Context, tenant string) error {
	return m.run(ctx, "ensure_tenant", tenant, func(ctx context.Context, u *undoStack) error {
		return m.ensure(ctx, u, "fvTenant", nil, tenant)
	})
}

// EnsureBDCreated creates a bridge domain bound to the shared context of
// ctxOwner, enforcing that context first. An empty owner means the common
// tenant.
func (m *Manager) EnsureBDCreated(ctx context.Context, tenant, bd, ctxOwner string) error {
	return m.run(ctx, "ensure_bd", tenant+"/"+bd, func(ctx context.Context, u *undoStack) error {
		if err := m.ensureContext(ctx, u, ownerOrCommon(ctxOwner), ContextShared, ContextEnforced); err != nil {
			return err
		}
		if err := m.ensure(ctx, u, "fvBD", nil, tenant, bd); err != nil {
			return err
		}
		return m.ensure(ctx, u, "fvRsCtx", mo.Attributes{"tnFvCtxName": ContextShared}, tenant, bd)
	})
}

// DeleteBD deletes a bridge domain.
func (m *Manager) DeleteBD(ctx context.Context, tenant, bd string) error {
	return m.run(ctx, "delete_bd", tenant+"/"+bd, func(ctx context.Context, _ *undoStack) error {
		return m.remove(ctx, "fvBD", tenant, bd)
	})
}

// EnsureSubnetCreated adds a gateway subnet such as 10.0.0.1/24 to a
// bridge domain.
func (m *Manager) EnsureSubnetCreated(ctx context.Context, tenant, bd, gatewayCIDR string) error {
	if err := validateGateway(gatewayCIDR); err != nil {
		return err
	}
	return m.run(ctx, "ensure_subnet", tenant+"/"+bd+"/"+gatewayCIDR, func(ctx context.Context, u *undoStack) error {
		return m.ensure(ctx, u, "fvSubnet", nil, tenant, bd, gatewayCIDR)
	})
}

// EnsureSubnetDeleted removes a gateway subnet from a bridge domain.
func (m *Manager) EnsureSubnetDeleted(ctx context.Context, tenant, bd, gatewayCIDR string) error {
	if err := validateGateway(gatewayCIDR); err != nil {
		return err
	}
	return m.run(ctx, "delete_subnet", tenant+"/"+bd+"/"+gatewayCIDR, func(ctx context.Context, _ *undoStack) error {
		return m.remove(ctx, "fvSubnet", tenant, bd, gatewayCIDR)
	})
}

func validateGateway(cidr string) error {
	if _, err := netip.ParsePrefix(cidr); err != nil {
		return NewPermanentError("invalid gateway address", err).
			WithResource(cidr).WithCode(ErrCodeValidation)
	}
	return nil
}

// EnsureFilterCreated creates an empty filter.
func (m *Manager) EnsureFilterCreated(ctx context.Context, tenant, filter string) error {
	return m.run(ctx, "ensure_filter", tenant+"/"+filter, func(ctx context.Context, u *undoStack) error {
		return m.ensure(ctx, u, "vzFilter", nil, tenant, filter)
	})
}

// ensureTenantFilter creates a filter with one entry matching all traffic.
func (m *Manager) ensureTenantFilter(ctx context.Context, u *undoStack, tenant, filter string) error {
	if err := m.ensure(ctx, u, "vzFilter", nil, tenant, filter); err != nil {
		return err
	}
	return m.ensure(ctx, u, "vzEntry", nil, tenant, filter, ContractEntry)
}

// EnsureContextEnforced sets a context's policy enforcement on. An empty
// owner means the common tenant.
func (m *Manager) EnsureContextEnforced(ctx context.Context, owner, vrf string) error {
	owner = ownerOrCommon(owner)
	return m.run(ctx, "ensure_context_enforced", owner+"/"+vrf, func(ctx context.Context, u *undoStack) error {
		return m.ensureContext(ctx, u, owner, vrf, ContextEnforced)
	})
}

// EnsureContextUnenforced sets a context's policy enforcement off.
func (m *Manager) EnsureContextUnenforced(ctx context.Context, tenant, vrf string) error {
	return m.run(ctx, "ensure_context_unenforced", tenant+"/"+vrf, func(ctx context.Context, u *undoStack) error {
		return m.ensureContext(ctx, u, tenant, vrf, ContextUnenforced)
	})
}

func (m *Manager) ensureContext(ctx context.Context, u *undoStack, tenant, vrf, pref string) error {
	if vrf == "" {
		vrf = ContextShared
	}
	return m.ensure(ctx, u, "fvCtx", mo.Attributes{"pcEnfPref": pref}, tenant, vrf)
}

// EnsureContextAnyContract makes every endpoint group of a context both
// provide and consume a contract.
func (m *Manager) EnsureContextAnyContract(ctx context.Context, tenant, vrf, contract string) error {
	return m.run(ctx, "ensure_context_any_contract", tenant+"/"+vrf, func(ctx context.Context, u *undoStack) error {
		if err := m.ensure(ctx, u, "vzAny", nil, tenant, vrf); err != nil {
			return err
		}
		if err := m.ensure(ctx, u, "vzRsAnyToProv", nil, tenant, vrf, contract); err != nil {
			return err
		}
		return m.ensure(ctx, u, "vzRsAnyToCons", nil, tenant, vrf, contract)
	})
}

// EnsureEPGCreatedForNetwork returns the endpoint group of a network,
// creating its bridge domain, the group, the bridge domain association
// and the physical domain attachment when the group is missing.
func (m *Manager) EnsureEPGCreatedForNetwork(ctx context.Context, tenant, network string) (epg string, err error) {
	err = m.run(ctx, "ensure_epg", tenant+"/"+network, func(ctx context.Context, u *undoStack) error {
		epg, err = m.ensureEPG(ctx, u, tenant, network)
		return err
	})
	return epg, err
}

func (m *Manager) ensureEPG(ctx context.Context, u *undoStack, tenant, network string) (string, error) {
	app := m.cfg.AppProfileName

	rec, err := m.store.GetNetworkEPG(ctx, network)
	switch {
	case err == nil:
		found, err := m.exists(ctx, "fvAEPg", tenant, app, rec.EPGID)
		if err != nil {
			return "", err
		}
		if found {
			return rec.EPGID, nil
		}
		m.logger.WithField("network", network).WithField("epg", rec.EPGID).
			Warn("endpoint group missing on controller, recreating")
		if err := m.store.DeleteNetworkEPG(ctx, network); err != nil {
			return "", err
		}
	case !errors.Is(err, stores.ErrNotFound):
		return "", err
	}

	epg := network
	physDN, err := m.physDomainDN()
	if err != nil {
		return "", err
	}
	if err := m.ensure(ctx, u, "fvBD", nil, tenant, network); err != nil {
		return "", err
	}
	if err := m.ensure(ctx, u, "fvAEPg", nil, tenant, app, epg); err != nil {
		return "", err
	}
	if err := m.ensure(ctx, u, "fvRsBd", mo.Attributes{"tnFvBDName": network}, tenant, app, epg); err != nil {
		return "", err
	}
	if err := m.ensure(ctx, u, "fvRsDomAtt", nil, tenant, app, epg, physDN); err != nil {
		return "", err
	}

	if err := m.store.PutNetworkEPG(ctx, &stores.NetworkEPG{NetworkID: network, EPGID: epg}); err != nil {
		return "", err
	}
	u.push("forget epg "+network, func(ctx context.Context) error {
		return m.store.DeleteNetworkEPG(ctx, network)
	})
	return epg, nil
}

// DeleteEPGForNetwork deletes the endpoint group of a network and forgets it.
func (m *Manager) DeleteEPGForNetwork(ctx context.Context, tenant, network string) error {
	return m.run(ctx, "delete_epg", tenant+"/"+network, func(ctx context.Context, _ *undoStack) error {
		epg := network
		if rec, err := m.store.GetNetworkEPG(ctx, network); err == nil {
			epg = rec.EPGID
		} else if !errors.Is(err, stores.ErrNotFound) {
			return err
		}
		if err := m.remove(ctx, "fvAEPg", tenant, m.cfg.AppProfileName, epg); err != nil {
			return err
		}
		return m.store.DeleteNetworkEPG(ctx, network)
	})
}

// SetContractForEPG makes an endpoint group consume a contract, or
// provide it when provider is set.
func (m *Manager) SetContractForEPG(ctx context.Context, tenant, epg, contract string, provider bool) error {
	return m.run(ctx, "set_epg_contract", tenant+"/"+epg+"/"+contract, func(ctx context.Context, u *undoStack) error {
		return m.setContractForEPG(ctx, u, tenant, epg, contract, provider)
	})
}

func (m *Manager) setContractForEPG(ctx context.Context, u *undoStack, tenant, epg, contract string, provider bool) error {
	class := "fvRsCons"
	if provider {
		class = "fvRsProv"
	}
	if err := m.ensure(ctx, u, class, nil, tenant, m.cfg.AppProfileName, epg, contract); err != nil {
		return err
	}
	if provider {
		return m.markProvider(ctx, epg, true)
	}
	return nil
}

// DeleteContractForEPG removes a consumed contract, or a provided one
// when provider is set.
func (m *Manager) DeleteContractForEPG(ctx context.Context, tenant, epg, contract string, provider bool) error {
	return m.run(ctx, "delete_epg_contract", tenant+"/"+epg+"/"+contract, func(ctx context.Context, _ *undoStack) error {
		return m.deleteContractForEPG(ctx, tenant, epg, contract, provider)
	})
}

func (m *Manager) deleteContractForEPG(ctx context.Context, tenant, epg, contract string, provider bool) error {
	class := "fvRsCons"
	if provider {
		class = "fvRsProv"
	}
	if err := m.remove(ctx, class, tenant, m.cfg.AppProfileName, epg, contract); err != nil {
		return err
	}
	if provider {
		return m.markProvider(ctx, epg, false)
	}
	return nil
}

// markProvider records whether the network's group provides a contract.
// Groups without a record are left alone.
func (m *Manager) markProvider(ctx context.Context, epg string, provider bool) error {
	rec, err := m.store.GetNetworkEPG(ctx, epg)
	if errors.Is(err, stores.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Provider == provider {
		return nil
	}
	rec.Provider = provider
	return m.store.PutNetworkEPG(ctx, rec)
}
