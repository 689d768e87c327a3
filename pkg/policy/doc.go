// Package policy guards engine operations with Open Policy Agent (OPA)
// Rego policies.
//
// Before the engine runs an operation it calls Engine.Admit with the
// operation name and its key. Every enabled policy is evaluated against an
// Input document:
//
//	{
//	  "operation": "ensure_bd",
//	  "key": "tenantA/net-1",
//	  "path": ["tenantA", "net-1"],
//	  "timestamp": "2024-01-01T00:00:00Z"
//	}
//
// A policy lists its violations in a deny set. An entry is either a message
// string or an object with a message and an optional severity:
//
//	package apicsync.policies.frozen
//
//	import rego.v1
//
//	deny contains violation if {
//		input.operation == "delete_epg"
//		violation := {"message": "endpoint groups are frozen", "severity": "error"}
//	}
//
// Violations of error or critical severity deny the operation; the rest are
// logged as warnings. Built-in policies protect the controller's reserved
// tenants, flag deletions in the common tenant and reject switch ids outside
// the leaf node range. Policy files are loaded from the configured paths and
// reloaded when they change.
package policy
