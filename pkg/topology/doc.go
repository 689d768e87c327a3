// Package topology discovers which leaf switch port each compute host
// uplink is cabled to.
//
// An Agent polls one host's LLDP neighbours ("lldpctl -f keyvalue") through
// an ssh.Runner. Fabric leaf switches advertise their port as a topology
// path in the LLDP port description, which the agent turns into a
// switch/module/port triple. Only changes are reported, except that every
// ForceResendEvery-th poll reports every link again. An interface whose
// neighbour disappeared is reported once with an empty switch id.
//
// A Service receives those reports and applies them one at a time to the
// reconciliation engine.
package topology
