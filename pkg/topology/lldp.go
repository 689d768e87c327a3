package topology

import (
	"regexp"
	"strings"
)

// portDescFormats are the topology paths a leaf advertises as its LLDP
// port description.
var portDescFormats = []*regexp.Regexp{
	regexp.MustCompile(`^topology/pod-1/node-(\d+)/sys/conng/path-\[eth(\d+)/(\d+)\]`),
	regexp.MustCompile(`^topology/pod-1/paths-(\d+)/pathep-\[eth(\d+)/(\d+)\]`),
}

// ParsePortDescription extracts the switch, module and port from a leaf's
// LLDP port description.
func ParsePortDescription(descr string) (switchID, module, port string, ok bool) {
	for _, re := range portDescFormats {
		if m := re.FindStringSubmatch(descr); m != nil {
			return m[1], m[2], m[3], true
		}
	}
	return "", "", "", false
}

// Neighbor is the fabric port seen on one local interface.
type Neighbor struct {
	Interface string
	SwitchID  string
	Module    string
	Port      string
}

// ParseLLDP reads "lldpctl -f keyvalue" output and returns the fabric
// neighbour of every interface whose port description is a topology path.
// Interfaces are returned in the order they first appear.
func ParseLLDP(out string) []Neighbor {
	var neighbors []Neighbor
	seen := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		fqkey, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		parts := strings.SplitN(fqkey, ".", 3)
		if len(parts) != 3 || parts[2] != "port.descr" {
			continue
		}
		iface := parts[1]
		if seen[iface] {
			continue
		}
		switchID, module, port, ok := ParsePortDescription(value)
		if !ok {
			continue
		}
		seen[iface] = true
		neighbors = append(neighbors, Neighbor{Interface: iface, SwitchID: switchID, Module: module, Port: port})
	}
	return neighbors
}
