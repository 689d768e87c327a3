// Package config loads the apicsync configuration.
//
// A configuration file is YAML or CUE, chosen by extension. CUE documents
// are unified with an embedded schema before decoding, so type and range
// mistakes are reported with file positions. Both formats then decode
// through the same YAML decoder onto Default(), which keeps defaults for
// every field the file leaves out, and finish with struct-tag validation
// (go-playground/validator) plus the cross-field checks in Validate.
//
// Example (YAML):
//
//	apic:
//	  hosts: [apic1.example.com, apic2.example.com:8443]
//	  username: admin
//	  password: secret
//	  use_ssl: true
//	engine:
//	  vlan_range: "100:200"
//	  switches:
//	    "101":
//	      "1/3": [compute-1]
//	discovery:
//	  enabled: true
//	  uplink_ports: [eth2]
//	  hosts:
//	    - name: compute-1
//	      ssh: {user: root, auth_method: key}
//
// Watcher re-reads the file when it changes and hands each valid revision
// to a callback.
package config
