package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/noironetworks/neutron/pkg/mo"
	"github.com/noironetworks/neutron/pkg/stores"
)

// EnsureInfraCreated brings up the shared access infrastructure: the VLAN
// namespace, the physical domain, the entity and function profiles, then
// the profiles of every switch with a recorded host link and of every
// switch port in the static switch dictionary.
func (m *Manager) EnsureInfraCreated(ctx context.Context) error {
	err := m.run(ctx, "ensure_infra", m.cfg.DomainName, func(ctx context.Context, u *undoStack) error {
		vlanMin, vlanMax, err := m.cfg.VlanBounds()
		if err != nil {
			return NewPermanentError("invalid vlan range", err).WithCode(ErrCodeValidation)
		}
		nsDN, err := m.ensureVlanNamespace(ctx, u, m.cfg.VlanNamespace, vlanMin, vlanMax)
		if err != nil {
			return err
		}
		physDN, err := m.ensurePhysDomain(ctx, u, m.cfg.DomainName, nsDN)
		if err != nil {
			return err
		}
		entDN, err := m.ensureEntityProfile(ctx, u, m.cfg.EntityProfile, physDN)
		if err != nil {
			return err
		}
		if _, err := m.ensureFunctionProfile(ctx, u, m.cfg.FunctionProfile, entDN); err != nil {
			return err
		}
		return m.recordInfraNames(ctx)
	})
	if err != nil {
		return err
	}

	links, err := m.store.ListHostLinks(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, sw := range switchesOf(links) {
		if err := m.EnsureInfraCreatedForSwitch(ctx, sw); err != nil {
			errs = append(errs, fmt.Errorf("switch %s: %w", sw, err))
		}
	}

	for _, link := range m.staticLinks() {
		if err := m.AddHostLink(ctx, link); err != nil {
			errs = append(errs, fmt.Errorf("static link %s on %s/%s/%s: %w",
				link.Host, link.SwitchID, link.Module, link.Port, err))
		}
	}
	return errors.Join(errs...)
}

// Keys of the infrastructure names last applied to the controller.
const (
	keyVlanNamespace   = "infra.vlan_namespace"
	keyPhysDomain      = "infra.phys_domain"
	keyEntityProfile   = "infra.entity_profile"
	keyFunctionProfile = "infra.function_profile"
)

// infraObject is a shared infrastructure object owned by the engine.
type infraObject struct {
	key        string
	class      string
	configured string
	modes      []string
}

func (m *Manager) infraObjects() []infraObject {
	return []infraObject{
		{key: keyVlanNamespace, class: "fvnsVlanInstP", configured: m.cfg.VlanNamespace, modes: []string{"dynamic", "static"}},
		{key: keyPhysDomain, class: "physDomP", configured: m.cfg.DomainName},
		{key: keyEntityProfile, class: "infraAttEntityP", configured: m.cfg.EntityProfile},
		{key: keyFunctionProfile, class: "infraAccPortGrp", configured: m.cfg.FunctionProfile},
	}
}

func (m *Manager) recordInfraNames(ctx context.Context) error {
	for _, obj := range m.infraObjects() {
		if err := m.store.PutKey(ctx, obj.key, obj.configured); err != nil {
			return err
		}
	}
	return nil
}

// appliedNames returns the name recorded for obj when it differs from the
// configured one, followed by the configured name.
func (m *Manager) appliedNames(ctx context.Context, obj infraObject) ([]string, error) {
	applied, err := m.store.GetKey(ctx, obj.key)
	switch {
	case errors.Is(err, stores.ErrNotFound):
		return []string{obj.configured}, nil
	case err != nil:
		return nil, err
	case applied != obj.configured:
		return []string{applied, obj.configured}, nil
	}
	return []string{obj.configured}, nil
}

// removeInfraObject deletes obj under every name it may have been applied with.
func (m *Manager) removeInfraObject(ctx context.Context, obj infraObject) error {
	names, err := m.appliedNames(ctx, obj)
	if err != nil {
		return err
	}
	for _, name := range names {
		if len(obj.modes) == 0 {
			if err := m.remove(ctx, obj.class, name); err != nil {
				return err
			}
			continue
		}
		for _, mode := range obj.modes {
			if err := m.remove(ctx, obj.class, name, mode); err != nil {
				return err
			}
		}
	}
	return nil
}

// staticLinks expands the switch dictionary into host links, sorted.
func (m *Manager) staticLinks() []stores.HostLink {
	var links []stores.HostLink
	for sw, ports := range m.cfg.Switches {
		for modulePort, hosts := range ports {
			module, port, err := SplitModulePort(modulePort)
			if err != nil {
				m.logger.WithError(err).WithField("switch", sw).Warn("skipping switch port")
				continue
			}
			for _, host := range hosts {
				links = append(links, stores.HostLink{
					Host:     host,
					Ifname:   StaticIfname,
					SwitchID: sw,
					Module:   module,
					Port:     port,
				})
			}
		}
	}
	sort.Slice(links, func(i, j int) bool {
		a, b := links[i], links[j]
		if a.SwitchID != b.SwitchID {
			return a.SwitchID < b.SwitchID
		}
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		if a.Port != b.Port {
			return a.Port < b.Port
		}
		return a.Host < b.Host
	})
	return links
}

// EnsureVlanNamespaceCreated creates a static VLAN namespace with one
// encapsulation block and returns its distinguished name.
func (m *Manager) EnsureVlanNamespaceCreated(ctx context.Context, name, vlanMin, vlanMax string) (dn string, err error) {
	err = m.run(ctx, "ensure_vlan_ns", name, func(ctx context.Context, u *undoStack) error {
		dn, err = m.ensureVlanNamespace(ctx, u, name, vlanMin, vlanMax)
		return err
	})
	return dn, err
}

func (m *Manager) ensureVlanNamespace(ctx context.Context, u *undoStack, name, vlanMin, vlanMax string) (string, error) {
	if err := m.ensure(ctx, u, "fvnsVlanInstP", nil, name, "static"); err != nil {
		return "", err
	}
	from, to := "vlan-"+vlanMin, "vlan-"+vlanMax
	attrs := mo.Attributes{"name": "encap", "from": from, "to": to}
	if err := m.ensure(ctx, u, "fvnsEncapBlk__vlan", attrs, name, "static", from, to); err != nil {
		return "", err
	}
	return m.dn("fvnsVlanInstP", name, "static")
}

// EnsurePhysDomainCreated creates the physical domain and binds it to a
// VLAN namespace when one is given.
func (m *Manager) EnsurePhysDomainCreated(ctx context.Context, name, vlanNsDN string) (dn string, err error) {
	err = m.run(ctx, "ensure_phys_domain", name, func(ctx context.Context, u *undoStack) error {
		dn, err = m.ensurePhysDomain(ctx, u, name, vlanNsDN)
		return err
	})
	return dn, err
}

func (m *Manager) ensurePhysDomain(ctx context.Context, u *undoStack, name, vlanNsDN string) (string, error) {
	if err := m.ensure(ctx, u, "physDomP", nil, name); err != nil {
		return "", err
	}
	if vlanNsDN != "" {
		if err := m.ensure(ctx, u, "infraRsVlanNs", mo.Attributes{"tDn": vlanNsDN}, name); err != nil {
			return "", err
		}
	}
	return m.dn("physDomP", name)
}

func (m *Manager) physDomainDN() (string, error) {
	return m.dn("physDomP", m.cfg.DomainName)
}

// EnsureEntityProfileCreated creates the attachable entity profile and
// attaches the physical domain to it.
func (m *Manager) EnsureEntityProfileCreated(ctx context.Context, name, physDN string) (dn string, err error) {
	err = m.run(ctx, "ensure_entity_profile", name, func(ctx context.Context, u *undoStack) error {
		dn, err = m.ensureEntityProfile(ctx, u, name, physDN)
		return err
	})
	return dn, err
}

func (m *Manager) ensureEntityProfile(ctx context.Context, u *undoStack, name, physDN string) (string, error) {
	if err := m.ensure(ctx, u, "infraAttEntityP", nil, name); err != nil {
		return "", err
	}
	if err := m.ensure(ctx, u, "infraRsDomP", nil, name, physDN); err != nil {
		return "", err
	}
	return m.dn("infraAttEntityP", name)
}

// EnsureFunctionProfileCreated creates the access port group and attaches
// the entity profile to it.
func (m *Manager) EnsureFunctionProfileCreated(ctx context.Context, name, entityDN string) (dn string, err error) {
	err = m.run(ctx, "ensure_function_profile", name, func(ctx context.Context, u *undoStack) error {
		dn, err = m.ensureFunctionProfile(ctx, u, name, entityDN)
		return err
	})
	return dn, err
}

func (m *Manager) ensureFunctionProfile(ctx context.Context, u *undoStack, name, entityDN string) (string, error) {
	if err := m.ensure(ctx, u, "infraAccPortGrp", nil, name); err != nil {
		return "", err
	}
	if err := m.ensure(ctx, u, "infraRsAttEntP", mo.Attributes{"tDn": entityDN}, name); err != nil {
		return "", err
	}
	return m.dn("infraAccPortGrp", name)
}

// EnsureInfraCreatedForSwitch creates the node profile and port profile of
// a switch, then one port selector per module and one port block per
// contiguous run of linked ports.
func (m *Manager) EnsureInfraCreatedForSwitch(ctx context.Context, switchID string) error {
	return m.run(ctx, "ensure_switch_infra", switchID, func(ctx context.Context, u *undoStack) error {
		return m.ensureSwitchInfra(ctx, u, switchID)
	})
}

func (m *Manager) ensureSwitchInfra(ctx context.Context, u *undoStack, switchID string) error {
	if err := m.ensureNodeProfile(ctx, u, switchID); err != nil {
		return err
	}
	ppName, err := m.ensurePortProfile(ctx, u, switchID)
	if err != nil {
		return err
	}

	modules, err := m.portsByModule(ctx, switchID)
	if err != nil {
		return err
	}
	funcDN, err := m.dn("infraAccPortGrp", m.cfg.FunctionProfile)
	if err != nil {
		return err
	}

	for _, module := range sortedKeys(modules) {
		hname := "hports-" + module
		if err := m.ensure(ctx, u, "infraHPortS", nil, ppName, hname, "range"); err != nil {
			return err
		}
		if err := m.ensure(ctx, u, "infraRsAccBaseGrp", mo.Attributes{"tDn": funcDN}, ppName, hname, "range"); err != nil {
			return err
		}
		wanted := make(map[string]bool)
		for _, r := range GroupByRanges(modules[module]) {
			block := fmt.Sprintf("%d-%d", r.From, r.To)
			wanted[block] = true
			attrs := mo.Attributes{
				"name":     block,
				"fromCard": module,
				"toCard":   module,
				"fromPort": strconv.Itoa(r.From),
				"toPort":   strconv.Itoa(r.To),
			}
			if err := m.ensure(ctx, u, "infraPortBlk", attrs, ppName, hname, "range", block); err != nil {
				return err
			}
		}
		if err := m.pruneStaleBlocks(ctx, ppName, hname, wanted); err != nil {
			return err
		}
	}
	return nil
}

// pruneStaleBlocks deletes port blocks of a selector left over from an
// earlier grouping of its ports.
func (m *Manager) pruneStaleBlocks(ctx context.Context, ppName, hname string, wanted map[string]bool) error {
	children, err := m.client.MO("infraHPortS").GetSubtree(ctx, mo.SubtreeOptions{Class: "infraPortBlk"}, ppName, hname, "range")
	if err != nil {
		return err
	}
	for _, env := range children {
		attrs, ok := env.AttributesOf("infraPortBlk")
		if !ok || attrs["name"] == "" || wanted[attrs["name"]] {
			continue
		}
		if err := m.remove(ctx, "infraPortBlk", ppName, hname, "range", attrs["name"]); err != nil {
			return err
		}
	}
	return nil
}

// portsByModule returns the linked port numbers of a switch per module.
func (m *Manager) portsByModule(ctx context.Context, switchID string) (map[string][]int, error) {
	links, err := m.store.ListHostLinks(ctx)
	if err != nil {
		return nil, err
	}
	modules := make(map[string][]int)
	for _, l := range links {
		if l.SwitchID != switchID {
			continue
		}
		port, err := strconv.Atoi(l.Port)
		if err != nil {
			return nil, NewPermanentError("invalid port number", err).
				WithResource(l.Host + "/" + l.Ifname).WithCode(ErrCodeValidation)
		}
		modules[l.Module] = append(modules[l.Module], port)
	}
	return modules, nil
}

// EnsureNodeProfileCreatedForSwitch creates a node profile whose leaf
// selector matches exactly one switch.
func (m *Manager) EnsureNodeProfileCreatedForSwitch(ctx context.Context, switchID string) error {
	return m.run(ctx, "ensure_node_profile", switchID, func(ctx context.Context, u *undoStack) error {
		return m.ensureNodeProfile(ctx, u, switchID)
	})
}

func (m *Manager) ensureNodeProfile(ctx context.Context, u *undoStack, switchID string) error {
	if err := m.ensure(ctx, u, "infraNodeP", nil, switchID); err != nil {
		return err
	}
	if err := m.ensure(ctx, u, "infraLeafS", nil, switchID, "leaf", "range"); err != nil {
		return err
	}
	attrs := mo.Attributes{"from_": switchID, "to_": switchID}
	return m.ensure(ctx, u, "infraNodeBlk", attrs, switchID, "leaf", "range", "node")
}

// EnsurePortProfileCreatedForSwitch returns the access port profile of a
// switch. Its name is generated once and remembered; a remembered profile
// that no longer exists on the controller is replaced by a new one.
func (m *Manager) EnsurePortProfileCreatedForSwitch(ctx context.Context, switchID string) (name string, err error) {
	err = m.run(ctx, "ensure_port_profile", switchID, func(ctx context.Context, u *undoStack) error {
		name, err = m.ensurePortProfile(ctx, u, switchID)
		return err
	})
	return name, err
}

func (m *Manager) ensurePortProfile(ctx context.Context, u *undoStack, switchID string) (string, error) {
	rec, err := m.store.GetPortProfile(ctx, switchID)
	switch {
	case err == nil:
		found, err := m.exists(ctx, "infraAccPortP", rec.ProfileID)
		if err != nil {
			return "", err
		}
		ppDN, err := m.dn("infraAccPortP", rec.ProfileID)
		if err != nil {
			return "", err
		}
		if found {
			if err := m.ensure(ctx, u, "infraRsAccPortP", nil, switchID, ppDN); err != nil {
				return "", err
			}
			return rec.ProfileID, nil
		}
		m.logger.WithField("switch", switchID).WithField("profile", rec.ProfileID).
			Warn("port profile missing on controller, recreating")
		if err := m.remove(ctx, "infraRsAccPortP", switchID, ppDN); err != nil {
			return "", err
		}
		if err := m.store.DeletePortProfile(ctx, switchID); err != nil {
			return "", err
		}
	case !errors.Is(err, stores.ErrNotFound):
		return "", err
	}

	name := m.newID()
	if err := m.ensure(ctx, u, "infraAccPortP", nil, name); err != nil {
		return "", err
	}
	ppDN, err := m.dn("infraAccPortP", name)
	if err != nil {
		return "", err
	}
	if err := m.ensure(ctx, u, "infraRsAccPortP", nil, switchID, ppDN); err != nil {
		return "", err
	}
	if err := m.store.PutPortProfile(ctx, &stores.PortProfile{NodeID: switchID, ProfileID: name}); err != nil {
		return "", err
	}
	u.push("forget port profile "+switchID, func(ctx context.Context) error {
		return m.store.DeletePortProfile(ctx, switchID)
	})
	return name, nil
}

// EnsureBGPPodPolicyCreated makes every spine a route reflector unless the
// policy already names some, and binds the policy to all pods.
func (m *Manager) EnsureBGPPodPolicyCreated(ctx context.Context) error {
	b := m.cfg.BGP
	return m.run(ctx, "ensure_bgp_pod_policy", b.PolicyName, func(ctx context.Context, u *undoStack) error {
		if err := m.ensure(ctx, u, "bgpInstPol", nil, b.PolicyName); err != nil {
			return err
		}

		reflectors, err := m.client.MO("bgpRRP").GetSubtree(ctx, mo.SubtreeOptions{}, b.PolicyName)
		if err != nil {
			return err
		}
		if len(reflectors) == 0 {
			spines, err := m.client.MO("fabricNode").ListAll(ctx, map[string]string{"role": "spine"})
			if err != nil {
				return err
			}
			for _, node := range spines {
				if err := m.ensure(ctx, u, "bgpRRNodePEp", nil, b.PolicyName, node["id"]); err != nil {
					return err
				}
			}
		}

		if err := m.ensure(ctx, u, "bgpAsP", mo.Attributes{"asn": b.ASN}, b.PolicyName); err != nil {
			return err
		}
		if err := m.ensure(ctx, u, "fabricPodPGrp", nil, b.PodPolicyGroup); err != nil {
			return err
		}

		ref := m.client.MO("fabricRsPodPGrpBGPRRP")
		current, found, err := ref.Get(ctx, b.PodPolicyGroup)
		if err != nil {
			return err
		}
		if !found || current["tnBgpInstPolName"] == "" {
			if err := ref.Update(ctx, mo.Attributes{"tnBgpInstPolName": b.PolicyName}, b.PodPolicyGroup); err != nil {
				return err
			}
		}

		if err := m.ensure(ctx, u, "fabricPodS__ALL", mo.Attributes{"type": "ALL"}, b.PodSelector); err != nil {
			return err
		}
		tDn := fmt.Sprintf(PodPolicyGroupDNPath, b.PodPolicyGroup)
		return m.ensure(ctx, u, "fabricRsPodPGrp", mo.Attributes{"tDn": tDn}, b.PodSelector)
	})
}

func switchesOf(links []*stores.HostLink) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range links {
		if !seen[l.SwitchID] {
			seen[l.SwitchID] = true
			out = append(out, l.SwitchID)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string][]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
