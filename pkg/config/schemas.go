package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// configSchema constrains CUE configuration files before they are decoded.
const configSchema = `
#Duration: =~"^([0-9]+([.][0-9]+)?(ns|us|µs|ms|s|m|h))+$"

#ModulePort: =~"^[0-9]+/[0-9]+$"

#SSH: {
	host?:                     string
	port?:                     int & >0 & <=65535
	user?:                     string
	auth_method?:              "password" | "key" | "agent"
	password?:                 string
	private_key_path?:         string
	private_key_passphrase?:   string
	known_hosts_path?:         string
	strict_host_key_checking?: bool
	connection_timeout?:       #Duration
	command_timeout?:          #Duration
	keepalive_interval?:       #Duration
	max_keepalive_retries?:    int & >=0
	sudo?:                     bool
	proxy_host?:               string
	proxy_port?:               int & >0 & <=65535
	proxy_user?:               string
	proxy_auth_method?:        "password" | "key" | "agent"
	proxy_password?:           string
	proxy_private_key_path?:   string
}

#Config: {
	apic: {
		hosts: [string, ...string]
		port?:                 int & >0 & <=65535
		use_ssl?:              bool
		insecure_skip_verify?: bool
		username?:             string & !=""
		password?:             string
		login_timeout?:        #Duration
		request_timeout?:      #Duration
		max_redirects?:        int & >=0
	}

	store?: {
		path?:              string & !=""
		max_open_conns?:    int & >=0
		max_idle_conns?:    int & >=0
		conn_max_lifetime?: #Duration
	}

	engine?: {
		app_profile_name?: string
		vlan_ns_name?:     string
		vlan_range?:       =~"^([^:]+:)?[0-9]+:[0-9]+$"
		domain_name?:      string
		entity_profile?:   string
		function_profile?: string
		name_mapping?:     "use_name" | "use_uuid"
		bgp?: {
			policy_name?:      string
			asn?:              =~"^[0-9]+$"
			pod_policy_group?: string
			pod_selector?:     string
		}
		switches?: [string]: [#ModulePort]: [...string]
		external_networks?: [string]: {
			switch:         string
			port:           #ModulePort
			encap?:         string
			cidr_exposed:   string
			gateway_ip:     string
			router_subnet?: string
		}
	}

	telemetry?: {...}

	discovery?: {
		enabled?:       bool
		poll_interval?: #Duration
		uplink_ports?: [...string]
		hosts?: [...{
			name: string & !=""
			ssh?: #SSH
			uplink_ports?: [...string]
		}]
	}

	policy?: {
		enabled?: bool
		paths?: [...string & !=""]
		disable?: [...string]
	}

	segments?: [string]: [...{
		tenant_id:       string
		network_id:      string
		segmentation_id: int & >0 & <4095
	}]
}
`

var (
	schemaOnce  sync.Once
	schemaCtx   *cue.Context
	schemaValue cue.Value
	schemaErr   error
)

// loadSchema compiles the configuration schema once per process.
func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		val := schemaCtx.CompileString(configSchema, cue.Filename("schema.cue"))
		if err := val.Err(); err != nil {
			schemaErr = fmt.Errorf("failed to compile config schema: %w", err)
			return
		}
		schemaValue = val.LookupPath(cue.ParsePath("#Config"))
	})
	return schemaCtx, schemaValue, schemaErr
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(err error) ValidationErrors {
	var out ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		ve := ValidationError{Message: fmt.Sprintf(format, args...)}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		if path := e.Path(); len(path) > 0 {
			ve.Path = joinPath(path)
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Message: err.Error()})
	}
	return out
}

func joinPath(parts []string) string {
	s := parts[0]
	for _, p := range parts[1:] {
		s += "." + p
	}
	return s
}
