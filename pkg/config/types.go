package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/noironetworks/neutron/pkg/engine"
	"github.com/noironetworks/neutron/pkg/policy"
	"github.com/noironetworks/neutron/pkg/stores"
	"github.com/noironetworks/neutron/pkg/telemetry"
	"github.com/noironetworks/neutron/pkg/transports/apic"
	"github.com/noironetworks/neutron/pkg/transports/ssh"
)

// Config is the complete apicsync configuration.
type Config struct {
	APIC      apic.Config      `yaml:"apic" json:"apic"`
	Store     stores.Config    `yaml:"store" json:"store"`
	Engine    engine.Config    `yaml:"engine" json:"engine"`
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`
	Discovery DiscoveryConfig  `yaml:"discovery" json:"discovery"`
	Policy    policy.Config    `yaml:"policy" json:"policy"`

	// Segments lists the VLAN segments each host carries, keyed by host.
	Segments map[string][]engine.Segment `yaml:"segments" json:"segments"`
}

// DiscoveryConfig configures LLDP topology discovery.
type DiscoveryConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval" validate:"gte=0"`

	// UplinkPorts are the host interfaces facing the fabric.
	UplinkPorts []string        `yaml:"uplink_ports" json:"uplink_ports" validate:"dive,required"`
	Hosts       []DiscoveryHost `yaml:"hosts" json:"hosts" validate:"dive"`
}

// DiscoveryHost is one compute host polled over SSH.
type DiscoveryHost struct {
	// Name is the host name known to the control plane.
	Name string     `yaml:"name" json:"name" validate:"required"`
	SSH  ssh.Config `yaml:"ssh" json:"ssh"`

	// UplinkPorts overrides DiscoveryConfig.UplinkPorts.
	UplinkPorts []string `yaml:"uplink_ports" json:"uplink_ports" validate:"dive,required"`
}

// Uplinks returns the interfaces to poll on h.
func (d DiscoveryConfig) Uplinks(h DiscoveryHost) []string {
	if len(h.UplinkPorts) > 0 {
		return h.UplinkPorts
	}
	return d.UplinkPorts
}

// Default returns the configuration used for fields a file leaves out.
func Default() *Config {
	return &Config{
		APIC:      *apic.DefaultConfig(),
		Store:     stores.Config{Path: "apicsync.db"},
		Engine:    engine.DefaultConfig(),
		Telemetry: *telemetry.DefaultConfig(),
		Discovery: DiscoveryConfig{
			PollInterval: 60 * time.Second,
		},
	}
}

// applyDefaults fills values a partial file may leave at their zero value.
func (c *Config) applyDefaults() {
	if c.APIC.LoginTimeout == 0 {
		c.APIC.LoginTimeout = apic.DefaultLoginTimeout
	}
	if c.APIC.MaxRedirects == 0 {
		c.APIC.MaxRedirects = apic.DefaultMaxRedirects
	}
	if c.Discovery.PollInterval == 0 {
		c.Discovery.PollInterval = 60 * time.Second
	}
	for i := range c.Discovery.Hosts {
		h := &c.Discovery.Hosts[i]
		def := ssh.DefaultConfig(h.SSH.Host, h.SSH.User)
		if h.SSH.Host == "" {
			h.SSH.Host = h.Name
		}
		if h.SSH.Port == 0 {
			h.SSH.Port = def.Port
		}
		if h.SSH.AuthMethod == "" {
			h.SSH.AuthMethod = def.AuthMethod
		}
		if h.SSH.ConnectionTimeout == 0 {
			h.SSH.ConnectionTimeout = def.ConnectionTimeout
		}
		if h.SSH.CommandTimeout == 0 {
			h.SSH.CommandTimeout = def.CommandTimeout
		}
		if h.SSH.MaxKeepAliveRetries == 0 {
			h.SSH.MaxKeepAliveRetries = def.MaxKeepAliveRetries
		}
		if h.SSH.ProxyHost != "" && h.SSH.ProxyPort == 0 {
			h.SSH.ProxyPort = def.ProxyPort
		}
	}
}

// StaticSegments returns Segments as an engine segment source.
func (c *Config) StaticSegments() engine.StaticSegments {
	return engine.StaticSegments(c.Segments)
}

// ValidationError is one problem found in a configuration file.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path (e.g., "engine.external_networks.ext1.port").
	Path string `json:"path,omitempty"`

	Message string `json:"message"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors is returned when a configuration does not validate.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.String()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}
