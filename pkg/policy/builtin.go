package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		reservedTenantsPolicy(),
		commonTenantDeletesPolicy(),
		switchNodeIDPolicy(),
	}
}

// reservedTenantsPolicy keeps tenant objects out of the controller's own tenants.
func reservedTenantsPolicy() Policy {
	return Policy{
		Name:        "reserved-tenants",
		Description: "Tenant objects may not be created or deleted in the infra and mgmt tenants",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"tenancy"},
		Rego: `package apicsync.policies.reserved_tenants

import rego.v1

tenant_operations := {
	"ensure_tenant",
	"ensure_bd",
	"delete_bd",
	"ensure_subnet",
	"delete_subnet",
	"ensure_filter",
	"ensure_context_enforced",
	"ensure_context_unenforced",
	"ensure_context_any_contract",
	"ensure_epg",
	"delete_epg",
	"set_epg_contract",
	"delete_epg_contract",
	"ensure_path",
}

reserved := {"infra", "mgmt"}

deny contains violation if {
	tenant_operations[input.operation]
	tenant := input.path[0]
	reserved[tenant]
	violation := {
		"message": sprintf("tenant %s is reserved for the controller", [tenant]),
		"severity": "error",
	}
}
`,
	}
}

// commonTenantDeletesPolicy flags deletions in the shared common tenant.
func commonTenantDeletesPolicy() Policy {
	return Policy{
		Name:        "common-tenant-deletes",
		Description: "Deleting objects in the common tenant affects every tenant that uses them",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"tenancy"},
		Rego: `package apicsync.policies.common_tenant_deletes

import rego.v1

deny contains violation if {
	startswith(input.operation, "delete_")
	input.path[0] == "common"
	violation := sprintf("%s removes %s from the common tenant", [input.operation, input.key])
}
`,
	}
}

// switchNodeIDPolicy rejects switch ids outside the leaf node range.
func switchNodeIDPolicy() Policy {
	return Policy{
		Name:        "switch-node-id",
		Description: "Switch profiles are only built for node ids 101 to 4000",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"infra"},
		Rego: `package apicsync.policies.switch_node_id

import rego.v1

switch_operations := {
	"ensure_switch_infra",
	"ensure_node_profile",
	"ensure_port_profile",
}

deny contains violation if {
	switch_operations[input.operation]
	not valid_node(input.key)
	violation := {
		"message": sprintf("switch %s is not a leaf node id", [input.key]),
		"severity": "error",
	}
}

valid_node(id) if {
	regex.match("^[0-9]+$", id)
	n := to_number(id)
	n >= 101
	n <= 4000
}
`,
	}
}
