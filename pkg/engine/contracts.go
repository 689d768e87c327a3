package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/noironetworks/neutron/pkg/mo"
	"github.com/noironetworks/neutron/pkg/stores"
)

// EnsureRouterContract creates the contract of a router in owner's tenant
// with a subject, a filter permitting all traffic and a contract interface,
// and records it. Contracts in the common tenant are global; the others
// are scoped to their tenant.
func (m *Manager) EnsureRouterContract(ctx context.Context, router, owner string) (rec *stores.RouterContract, err error) {
	owner = ownerOrCommon(owner)
	err = m.run(ctx, "ensure_router_contract", router, func(ctx context.Context, u *undoStack) error {
		rec, err = m.ensureRouterContract(ctx, u, router, owner)
		return err
	})
	return rec, err
}

func (m *Manager) ensureRouterContract(ctx context.Context, u *undoStack, router, owner string) (*stores.RouterContract, error) {
	contract := ContractName(router)
	scope := ScopeTenant
	if owner == TenantCommon {
		scope = ScopeGlobal
	}

	if err := m.ensure(ctx, u, "vzBrCP", mo.Attributes{"scope": scope}, owner, contract); err != nil {
		return nil, err
	}
	if err := m.ensure(ctx, u, "vzSubj", nil, owner, contract, ContractSubject); err != nil {
		return nil, err
	}
	if err := m.ensureTenantFilter(ctx, u, owner, ContractFilter); err != nil {
		return nil, err
	}
	if err := m.ensure(ctx, u, "vzRsSubjFiltAtt", nil, owner, contract, ContractSubject, ContractFilter); err != nil {
		return nil, err
	}
	if err := m.ensure(ctx, u, "vzCPIf", nil, owner, ContractInterface); err != nil {
		return nil, err
	}
	tDn := fmt.Sprintf(ContractDNPath, owner, contract)
	if err := m.ensure(ctx, u, "vzRsIf", mo.Attributes{"tDn": tDn}, owner, ContractInterface); err != nil {
		return nil, err
	}

	want := &stores.RouterContract{
		RouterID:   router,
		TenantID:   owner,
		ContractID: contract,
		FilterID:   ContractFilter,
	}
	prev, err := m.store.GetRouterContract(ctx, router)
	switch {
	case err == nil:
		if prev.TenantID == want.TenantID && prev.ContractID == want.ContractID && prev.FilterID == want.FilterID {
			return prev, nil
		}
	case !errors.Is(err, stores.ErrNotFound):
		return nil, err
	default:
		prev = nil
	}

	if err := m.store.PutRouterContract(ctx, want); err != nil {
		return nil, err
	}
	u.push("restore router contract "+router, func(ctx context.Context) error {
		if prev != nil {
			return m.store.PutRouterContract(ctx, prev)
		}
		return m.store.DeleteRouterContract(ctx, router)
	})
	return want, nil
}

// DeleteRouterContract deletes a router's contract and forgets it. Routers
// without a recorded contract are ignored.
func (m *Manager) DeleteRouterContract(ctx context.Context, router string) error {
	return m.run(ctx, "delete_router_contract", router, func(ctx context.Context, _ *undoStack) error {
		return m.deleteRouterContract(ctx, router)
	})
}

func (m *Manager) deleteRouterContract(ctx context.Context, router string) error {
	rec, err := m.store.GetRouterContract(ctx, router)
	if errors.Is(err, stores.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := m.remove(ctx, "vzBrCP", rec.TenantID, rec.ContractID); err != nil {
		return err
	}
	return m.store.DeleteRouterContract(ctx, router)
}

// MakeTenantContractGlobal widens a router contract's scope to the fabric.
func (m *Manager) MakeTenantContractGlobal(ctx context.Context, router string) error {
	return m.changeContractScope(ctx, router, ScopeGlobal)
}

// MakeTenantContractLocal narrows a router contract's scope to its tenant.
func (m *Manager) MakeTenantContractLocal(ctx context.Context, router string) error {
	return m.changeContractScope(ctx, router, ScopeTenant)
}

func (m *Manager) changeContractScope(ctx context.Context, router, scope string) error {
	return m.run(ctx, "set_contract_scope", router, func(ctx context.Context, _ *undoStack) error {
		rec, err := m.store.GetRouterContract(ctx, router)
		if errors.Is(err, stores.ErrNotFound) {
			return NewPermanentError("router has no contract", err).
				WithResource(router).WithCode(ErrCodeNotFound)
		}
		if err != nil {
			return err
		}
		return m.client.MO("vzBrCP").Update(ctx, mo.Attributes{"scope": scope}, rec.TenantID, rec.ContractID)
	})
}

// CreateRouter creates the router's contract and enforces its context.
func (m *Manager) CreateRouter(ctx context.Context, router, owner, vrf string) error {
	owner = ownerOrCommon(owner)
	return m.run(ctx, "create_router", router, func(ctx context.Context, u *undoStack) error {
		if _, err := m.ensureRouterContract(ctx, u, router, owner); err != nil {
			return err
		}
		return m.ensureContext(ctx, u, owner, vrf, ContextEnforced)
	})
}

// AddRouterInterface attaches a network to a router: its bridge domain
// moves to the router's context and its endpoint group provides and
// consumes the router contract.
func (m *Manager) AddRouterInterface(ctx context.Context, tenant, router, network, vrf string) error {
	if vrf == "" {
		vrf = ContextShared
	}
	if err := m.CreateRouter(ctx, router, TenantCommon, ContextShared); err != nil {
		return err
	}
	return m.run(ctx, "add_router_interface", router+"/"+network, func(ctx context.Context, u *undoStack) error {
		contract := ContractName(router)
		epg, err := m.ensureEPG(ctx, u, tenant, network)
		if err != nil {
			return err
		}
		if err := m.ensure(ctx, u, "fvRsCtx", mo.Attributes{"tnFvCtxName": vrf}, tenant, network); err != nil {
			return err
		}
		if err := m.setContractForEPG(ctx, u, tenant, epg, contract, true); err != nil {
			return err
		}
		return m.setContractForEPG(ctx, u, tenant, epg, contract, false)
	})
}

// RemoveRouterInterface detaches a network from a router and moves its
// bridge domain back to vrf.
func (m *Manager) RemoveRouterInterface(ctx context.Context, tenant, router, network, vrf string) error {
	if vrf == "" {
		vrf = ContextShared
	}
	return m.run(ctx, "remove_router_interface", router+"/"+network, func(ctx context.Context, u *undoStack) error {
		contract := ContractName(router)
		epg, err := m.ensureEPG(ctx, u, tenant, network)
		if err != nil {
			return err
		}
		if err := m.deleteContractForEPG(ctx, tenant, epg, contract, true); err != nil {
			return err
		}
		if err := m.deleteContractForEPG(ctx, tenant, epg, contract, false); err != nil {
			return err
		}
		return m.ensure(ctx, u, "fvRsCtx", mo.Attributes{"tnFvCtxName": vrf}, tenant, network)
	})
}

// DeleteRouter deletes the router's contract.
func (m *Manager) DeleteRouter(ctx context.Context, router string) error {
	return m.run(ctx, "delete_router", router, func(ctx context.Context, _ *undoStack) error {
		return m.deleteRouterContract(ctx, router)
	})
}
