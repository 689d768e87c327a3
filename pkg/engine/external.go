package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/noironetworks/neutron/pkg/mo"
	"github.com/noironetworks/neutron/pkg/stores"
)

// EnsureExternalRoutedNetworkCreated creates an external routed network in
// owner's tenant linked to vrf.
func (m *Manager) EnsureExternalRoutedNetworkCreated(ctx context.Context, network, owner, vrf string) error {
	owner = ownerOrCommon(owner)
	return m.run(ctx, "ensure_l3out", owner+"/"+network, func(ctx context.Context, u *undoStack) error {
		return m.ensureRoutedNetwork(ctx, u, network, owner, vrf)
	})
}

func (m *Manager) ensureRoutedNetwork(ctx context.Context, u *undoStack, network, owner, vrf string) error {
	if vrf == "" {
		vrf = ContextShared
	}
	if err := m.ensure(ctx, u, "l3extOut", nil, owner, network); err != nil {
		return err
	}
	return m.ensure(ctx, u, "l3extRsEctx", mo.Attributes{"tnFvCtxName": vrf}, owner, network)
}

// EnsureLogicalNodeProfileCreated attaches the border leaf and its uplink
// port to an external routed network. An empty encap makes the port a
// routed port rather than a sub-interface.
func (m *Manager) EnsureLogicalNodeProfileCreated(ctx context.Context, network, switchID, module, port, encap, address, owner string) error {
	owner = ownerOrCommon(owner)
	return m.run(ctx, "ensure_l3out_node", owner+"/"+network, func(ctx context.Context, u *undoStack) error {
		return m.ensureLogicalNodeProfile(ctx, u, network, switchID, module, port, encap, address, owner)
	})
}

func (m *Manager) ensureLogicalNodeProfile(ctx context.Context, u *undoStack, network, switchID, module, port, encap, address, owner string) error {
	nodeDN := fmt.Sprintf(NodeDNPath, switchID)
	if err := m.ensure(ctx, u, "l3extRsNodeL3OutAtt", mo.Attributes{"rtrId": ExtRouterID},
		owner, network, ExtNode, nodeDN); err != nil {
		return err
	}

	ifType := "sub-interface"
	if encap == "" {
		encap = "unknown"
		ifType = "l3-port"
	}
	attrs := mo.Attributes{"encap": encap, "addr": address, "ifInstT": ifType}
	portDN := fmt.Sprintf(PortDNPath, switchID, module, port)
	return m.ensure(ctx, u, "l3extRsPathL3OutAtt", attrs, owner, network, ExtNode, ExtInterface, portDN)
}

// EnsureStaticRouteCreated adds a static route through nextHop on the
// border leaf. An empty subnet means the default route.
func (m *Manager) EnsureStaticRouteCreated(ctx context.Context, network, switchID, nextHop, subnet, owner string) error {
	owner = ownerOrCommon(owner)
	return m.run(ctx, "ensure_static_route", owner+"/"+network, func(ctx context.Context, u *undoStack) error {
		return m.ensureStaticRoute(ctx, u, network, switchID, nextHop, subnet, owner)
	})
}

func (m *Manager) ensureStaticRoute(ctx context.Context, u *undoStack, network, switchID, nextHop, subnet, owner string) error {
	if subnet == "" {
		subnet = DefaultRoute
	}
	nodeDN := fmt.Sprintf(NodeDNPath, switchID)
	return m.ensure(ctx, u, "ipNexthopP", nil, owner, network, ExtNode, nodeDN, subnet, nextHop)
}

// EnsureExternalEPGCreated adds the external endpoint group classifying
// subnet. An empty subnet means the default route.
func (m *Manager) EnsureExternalEPGCreated(ctx context.Context, network, subnet, owner string) error {
	owner = ownerOrCommon(owner)
	return m.run(ctx, "ensure_external_epg", owner+"/"+network, func(ctx context.Context, u *undoStack) error {
		return m.ensureExternalEPG(ctx, u, network, subnet, owner)
	})
}

func (m *Manager) ensureExternalEPG(ctx context.Context, u *undoStack, network, subnet, owner string) error {
	if subnet == "" {
		subnet = DefaultRoute
	}
	return m.ensure(ctx, u, "l3extSubnet", nil, owner, network, ExtEPG, subnet)
}

// EnsureExternalEPGConsumedContract makes the external endpoint group
// consume a contract.
func (m *Manager) EnsureExternalEPGConsumedContract(ctx context.Context, network, contract, owner string) error {
	owner = ownerOrCommon(owner)
	return m.run(ctx, "ensure_external_epg_consumer", owner+"/"+network, func(ctx context.Context, u *undoStack) error {
		return m.ensure(ctx, u, "fvRsCons__Ext", nil, owner, network, ExtEPG, contract)
	})
}

// EnsureExternalEPGProvidedContract makes the external endpoint group
// provide a contract.
func (m *Manager) EnsureExternalEPGProvidedContract(ctx context.Context, network, contract, owner string) error {
	owner = ownerOrCommon(owner)
	return m.run(ctx, "ensure_external_epg_provider", owner+"/"+network, func(ctx context.Context, u *undoStack) error {
		return m.ensure(ctx, u, "fvRsProv__Ext", nil, owner, network, ExtEPG, contract)
	})
}

// DeleteExternalEPGContract removes a router's contract from the external
// endpoint group of network. Routers without a contract are ignored.
func (m *Manager) DeleteExternalEPGContract(ctx context.Context, router, network string) error {
	return m.run(ctx, "delete_external_epg_contract", router+"/"+network, func(ctx context.Context, _ *undoStack) error {
		return m.deleteExternalEPGContract(ctx, router, network)
	})
}

func (m *Manager) deleteExternalEPGContract(ctx context.Context, router, network string) error {
	rec, err := m.store.GetRouterContract(ctx, router)
	if errors.Is(err, stores.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := m.remove(ctx, "fvRsCons__Ext", rec.TenantID, network, ExtEPG, rec.ContractID); err != nil {
		return err
	}
	return m.remove(ctx, "fvRsProv__Ext", rec.TenantID, network, ExtEPG, rec.ContractID)
}

// EnsureExternalRoutedNetworkDeleted deletes an external routed network
// and everything under it.
func (m *Manager) EnsureExternalRoutedNetworkDeleted(ctx context.Context, network, owner string) error {
	owner = ownerOrCommon(owner)
	return m.run(ctx, "delete_l3out", owner+"/"+network, func(ctx context.Context, _ *undoStack) error {
		return m.remove(ctx, "l3extOut", owner, network)
	})
}

// EnsureRouterGateway connects a router to the configured external network
// named extName: the router contract, the shared context, the routed
// network with its border leaf, default route and external endpoint group
// both consuming and providing the contract. A failure removes whatever
// part of the routed network this call created.
func (m *Manager) EnsureRouterGateway(ctx context.Context, router, extName, network string) error {
	ext, ok := m.cfg.ExternalNetworks[extName]
	if !ok {
		return NewPermanentError("external network not configured", nil).
			WithResource(extName).WithCode(ErrCodeNotFound)
	}
	module, port, err := SplitModulePort(ext.Port)
	if err != nil {
		return NewPermanentError("invalid external network port", err).
			WithResource(extName).WithCode(ErrCodeValidation)
	}

	owner := TenantCommon
	return m.run(ctx, "ensure_router_gateway", router+"/"+network, func(ctx context.Context, u *undoStack) error {
		rec, err := m.ensureRouterContract(ctx, u, router, owner)
		if err != nil {
			return err
		}
		if err := m.ensureContext(ctx, u, owner, ContextShared, ContextEnforced); err != nil {
			return err
		}
		if err := m.ensureRoutedNetwork(ctx, u, network, owner, ContextShared); err != nil {
			return err
		}
		if err := m.ensureLogicalNodeProfile(ctx, u, network, ext.Switch, module, port, ext.Encap, ext.CIDRExposed, owner); err != nil {
			return err
		}
		if err := m.ensureStaticRoute(ctx, u, network, ext.Switch, ext.GatewayIP, DefaultRoute, owner); err != nil {
			return err
		}
		if err := m.ensureExternalEPG(ctx, u, network, DefaultRoute, owner); err != nil {
			return err
		}
		if err := m.ensure(ctx, u, "fvRsCons__Ext", nil, owner, network, ExtEPG, rec.ContractID); err != nil {
			return err
		}
		return m.ensure(ctx, u, "fvRsProv__Ext", nil, owner, network, ExtEPG, rec.ContractID)
	})
}

// DeleteRouterGateway detaches a router from an external network and
// deletes the routed network.
func (m *Manager) DeleteRouterGateway(ctx context.Context, router, network string) error {
	return m.run(ctx, "delete_router_gateway", router+"/"+network, func(ctx context.Context, _ *undoStack) error {
		if err := m.deleteExternalEPGContract(ctx, router, network); err != nil {
			return err
		}
		return m.remove(ctx, "l3extOut", TenantCommon, network)
	})
}
