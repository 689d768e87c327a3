package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Config holds the controller-side names the engine creates and reuses.
type Config struct {
	AppProfileName  string `yaml:"app_profile_name" json:"app_profile_name" validate:"required"`
	VlanNamespace   string `yaml:"vlan_ns_name" json:"vlan_ns_name" validate:"required"`
	VlanRange       string `yaml:"vlan_range" json:"vlan_range" validate:"required"`
	DomainName      string `yaml:"domain_name" json:"domain_name" validate:"required"`
	EntityProfile   string `yaml:"entity_profile" json:"entity_profile" validate:"required"`
	FunctionProfile string `yaml:"function_profile" json:"function_profile" validate:"required"`

	// NameMapping selects how control-plane ids become controller names.
	NameMapping NamingStrategy `yaml:"name_mapping" json:"name_mapping" validate:"oneof=use_name use_uuid"`

	BGP BGPConfig `yaml:"bgp" json:"bgp"`

	// Switches maps switch id to "module/port" to the hosts cabled there.
	Switches map[string]map[string][]string `yaml:"switches" json:"switches"`

	// ExternalNetworks maps an external network name to its uplink.
	ExternalNetworks map[string]ExternalNetwork `yaml:"external_networks" json:"external_networks" validate:"dive"`
}

// BGPConfig names the fabric BGP route reflector policy objects.
type BGPConfig struct {
	PolicyName     string `yaml:"policy_name" json:"policy_name"`
	ASN            string `yaml:"asn" json:"asn" validate:"omitempty,numeric"`
	PodPolicyGroup string `yaml:"pod_policy_group" json:"pod_policy_group"`
	PodSelector    string `yaml:"pod_selector" json:"pod_selector"`
}

// ExternalNetwork describes the routed uplink of an external network.
type ExternalNetwork struct {
	Switch       string `yaml:"switch" json:"switch" validate:"required"`
	Port         string `yaml:"port" json:"port" validate:"required"`
	Encap        string `yaml:"encap" json:"encap"`
	CIDRExposed  string `yaml:"cidr_exposed" json:"cidr_exposed" validate:"required,cidr"`
	GatewayIP    string `yaml:"gateway_ip" json:"gateway_ip" validate:"required,ip"`
	RouterSubnet string `yaml:"router_subnet" json:"router_subnet" validate:"omitempty,cidr"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		AppProfileName:  "openstack_app",
		VlanNamespace:   "openstack_ns",
		VlanRange:       "2:4093",
		DomainName:      "openstack",
		EntityProfile:   "openstack_entity",
		FunctionProfile: "openstack_function",
		NameMapping:     NamingUseName,
		BGP: BGPConfig{
			PolicyName:     "default",
			ASN:            "1",
			PodPolicyGroup: "default",
			PodSelector:    "default",
		},
	}
}

// withDefaults fills empty fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AppProfileName == "" {
		c.AppProfileName = d.AppProfileName
	}
	if c.VlanNamespace == "" {
		c.VlanNamespace = d.VlanNamespace
	}
	if c.VlanRange == "" {
		c.VlanRange = d.VlanRange
	}
	if c.DomainName == "" {
		c.DomainName = d.DomainName
	}
	if c.EntityProfile == "" {
		c.EntityProfile = d.EntityProfile
	}
	if c.FunctionProfile == "" {
		c.FunctionProfile = d.FunctionProfile
	}
	if c.NameMapping == "" {
		c.NameMapping = d.NameMapping
	}
	if c.BGP.PolicyName == "" {
		c.BGP.PolicyName = d.BGP.PolicyName
	}
	if c.BGP.ASN == "" {
		c.BGP.ASN = d.BGP.ASN
	}
	if c.BGP.PodPolicyGroup == "" {
		c.BGP.PodPolicyGroup = d.BGP.PodPolicyGroup
	}
	if c.BGP.PodSelector == "" {
		c.BGP.PodSelector = d.BGP.PodSelector
	}
	return c
}

// VlanBounds parses VlanRange. A physical network prefix such as
// "physnet1:100:200" is ignored.
func (c Config) VlanBounds() (vlanMin, vlanMax string, err error) {
	parts := strings.Split(c.VlanRange, ":")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("vlan range %q: want min:max", c.VlanRange)
	}
	vlanMin, vlanMax = parts[len(parts)-2], parts[len(parts)-1]
	lo, err := strconv.Atoi(vlanMin)
	if err != nil {
		return "", "", fmt.Errorf("vlan range %q: %w", c.VlanRange, err)
	}
	hi, err := strconv.Atoi(vlanMax)
	if err != nil {
		return "", "", fmt.Errorf("vlan range %q: %w", c.VlanRange, err)
	}
	if lo < 1 || hi > 4094 || lo > hi {
		return "", "", fmt.Errorf("vlan range %q out of bounds", c.VlanRange)
	}
	return vlanMin, vlanMax, nil
}

// SplitModulePort splits a "module/port" switch port key.
func SplitModulePort(s string) (module, port string, err error) {
	module, port, ok := strings.Cut(s, "/")
	if !ok || module == "" || port == "" {
		return "", "", fmt.Errorf("switch port %q: want module/port", s)
	}
	return module, port, nil
}
