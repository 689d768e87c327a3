package topology

import (
	"reflect"
	"testing"
)

func TestParsePortDescription(t *testing.T) {
	tests := []struct {
		descr            string
		sw, module, port string
		ok               bool
	}{
		{descr: "topology/pod-1/paths-101/pathep-[eth1/33]", sw: "101", module: "1", port: "33", ok: true},
		{descr: "topology/pod-1/node-102/sys/conng/path-[eth2/4]", sw: "102", module: "2", port: "4", ok: true},
		{descr: "topology/pod-2/paths-101/pathep-[eth1/33]"},
		{descr: "Ethernet1/33"},
		{descr: ""},
	}
	for _, tt := range tests {
		t.Run(tt.descr, func(t *testing.T) {
			sw, module, port, ok := ParsePortDescription(tt.descr)
			if ok != tt.ok || sw != tt.sw || module != tt.module || port != tt.port {
				t.Errorf("ParsePortDescription() = %s, %s, %s, %v", sw, module, port, ok)
			}
		})
	}
}

func TestParseLLDP(t *testing.T) {
	out := `lldp.eth2.via=LLDP
lldp.eth2.chassis.name=leaf-101
lldp.eth2.port.descr=topology/pod-1/paths-101/pathep-[eth1/3]
lldp.eth3.port.descr=Ethernet1/9
lldp.eth4.port.descr=topology/pod-1/node-102/sys/conng/path-[eth1/7]

garbage line
lldp.eth2.port.descr=topology/pod-1/paths-103/pathep-[eth1/1]
`
	want := []Neighbor{
		{Interface: "eth2", SwitchID: "101", Module: "1", Port: "3"},
		{Interface: "eth4", SwitchID: "102", Module: "1", Port: "7"},
	}
	if got := ParseLLDP(out); !reflect.DeepEqual(got, want) {
		t.Errorf("ParseLLDP() = %+v, want %+v", got, want)
	}
}
