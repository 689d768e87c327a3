// Package engine reconciles control-plane intent onto the fabric controller.
//
// # Overview
//
// A Manager turns tenants, networks, subnets, routers, external networks
// and host links into managed objects through the mo package. Every
// Ensure method follows the same steps:
//
//  1. Look up the local record, if the object has one, and verify it remotely
//  2. Check the object by its deterministic name
//  3. Create only what is missing or differs
//  4. Persist the record
//  5. On failure, undo what this call created, newest first
//
// Calling an Ensure method twice with the same arguments writes nothing the
// second time.
//
// # Records
//
// Identifiers the controller cannot derive are kept in stores.Store: the
// endpoint group of each network, the generated access port profile of each
// switch, router contracts, host links and name mappings. A record whose
// object disappeared from the controller is replaced.
//
// # Error Classification
//
// Errors are classified for metrics and retry decisions:
//
//   - Transient: unreachable controllers, timeouts, server errors
//   - Conflict: the controller refused a change because of another object
//   - Permanent: bad input, unknown classes, missing inventory
//
// Rollback failures never replace the original error; they are logged and
// written to the audit trail.
package engine
