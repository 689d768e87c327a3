// Package schema holds the managed object class registry and derives
// distinguished names from it.
//
// A distinguished name is "uni/" followed by the relative names of every
// class on the container chain, outermost first:
//
//	dn, err := schema.BuildFullName("fvBD", "acme", "net1")
//	// dn == "uni/tn-acme/BD-net1"
//
// Resolved classes are computed on first use and cached for the life of
// the registry.
package schema
