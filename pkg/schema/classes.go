package schema

// Definition describes one managed object class: the class it lives under,
// its relative name format and whether it can be created remotely.
type Definition struct {
	// Container is the parent class; empty for classes attached to the root.
	Container string

	// NameFormat is the relative name with one %s per value slot.
	NameFormat string

	// Creatable is false for read-only and relationship-only classes.
	Creatable bool
}

func def(container, rn string) Definition {
	return Definition{Container: container, NameFormat: rn, Creatable: true}
}

func readOnly(container, rn string) Definition {
	return Definition{Container: container, NameFormat: rn}
}

// Classes is the registry of supported managed object classes. A "__" in a
// key disambiguates classes that share a wire name under different parents.
var Classes = map[string]Definition{
	// Tenant networking
	"fvTenant":    def("", "tn-%s"),
	"fvBD":        def("fvTenant", "BD-%s"),
	"fvRsBd":      def("fvAEPg", "rsbd"),
	"fvSubnet":    def("fvBD", "subnet-[%s]"),
	"fvCtx":       def("fvTenant", "ctx-%s"),
	"fvRsCtx":     def("fvBD", "rsctx"),
	"fvAp":        def("fvTenant", "ap-%s"),
	"fvAEPg":      def("fvAp", "epg-%s"),
	"fvRsProv":    def("fvAEPg", "rsprov-%s"),
	"fvRsCons":    def("fvAEPg", "rscons-%s"),
	"fvRsConsIf":  def("fvAEPg", "rsconsif-%s"),
	"fvRsDomAtt":  def("fvAEPg", "rsdomAtt-[%s]"),
	"fvRsPathAtt": def("fvAEPg", "rspathAtt-[%s]"),

	// Contracts
	"vzAny":            def("fvCtx", "any"),
	"vzRsAnyToCons":    def("vzAny", "rsanyToCons-%s"),
	"vzRsAnyToProv":    def("vzAny", "rsanyToProv-%s"),
	"vzBrCP":           def("fvTenant", "brc-%s"),
	"vzSubj":           def("vzBrCP", "subj-%s"),
	"vzFilter":         def("fvTenant", "flt-%s"),
	"vzRsFiltAtt":      def("vzSubj", "rsfiltAtt-%s"),
	"vzEntry":          def("vzFilter", "e-%s"),
	"vzInTerm":         def("vzSubj", "intmnl"),
	"vzRsFiltAtt__In":  def("vzInTerm", "rsfiltAtt-%s"),
	"vzOutTerm":        def("vzSubj", "outtmnl"),
	"vzRsFiltAtt__Out": def("vzOutTerm", "rsfiltAtt-%s"),
	"vzRsSubjFiltAtt":  def("vzSubj", "rssubjFiltAtt-%s"),
	"vzCPIf":           def("fvTenant", "cif-%s"),
	"vzRsIf":           def("vzCPIf", "rsif"),

	// External routed networks
	"l3extOut":            def("fvTenant", "out-%s"),
	"l3extRsEctx":         def("l3extOut", "rsectx"),
	"l3extLNodeP":         def("l3extOut", "lnodep-%s"),
	"l3extRsNodeL3OutAtt": def("l3extLNodeP", "rsnodeL3OutAtt-[%s]"),
	"ipRouteP":            def("l3extRsNodeL3OutAtt", "rt-[%s]"),
	"ipNexthopP":          def("ipRouteP", "nh-[%s]"),
	"l3extLIfP":           def("l3extLNodeP", "lifp-%s"),
	"l3extRsPathL3OutAtt": def("l3extLIfP", "rspathL3OutAtt-[%s]"),
	"l3extInstP":          def("l3extOut", "instP-%s"),
	"fvRsCons__Ext":       def("l3extInstP", "rscons-%s"),
	"fvRsProv__Ext":       def("l3extInstP", "rsprov-%s"),
	"fvCollectionCont":    def("fvRsCons", "collectionDn-[%s]"),
	"l3extSubnet":         def("l3extInstP", "extsubnet-[%s]"),

	// Domains
	"vmmProvP": readOnly("", "vmmp-%s"),
	"vmmDomP":  def("vmmProvP", "dom-%s"),
	"vmmEpPD":  def("vmmDomP", "eppd-[%s]"),
	"physDomP": def("", "phys-%s"),

	// Access infrastructure
	"infra":             def("", "infra"),
	"infraNodeP":        def("infra", "nprof-%s"),
	"infraLeafS":        def("infraNodeP", "leaves-%s-typ-%s"),
	"infraNodeBlk":      def("infraLeafS", "nodeblk-%s"),
	"infraRsAccPortP":   def("infraNodeP", "rsaccPortP-[%s]"),
	"infraAccPortP":     def("infra", "accportprof-%s"),
	"infraHPortS":       def("infraAccPortP", "hports-%s-typ-%s"),
	"infraPortBlk":      def("infraHPortS", "portblk-%s"),
	"infraRsAccBaseGrp": def("infraHPortS", "rsaccBaseGrp"),
	"infraFuncP":        def("infra", "funcprof"),
	"infraAccPortGrp":   def("infraFuncP", "accportgrp-%s"),
	"infraRsAttEntP":    def("infraAccPortGrp", "rsattEntP"),
	"infraAttEntityP":   def("infra", "attentp-%s"),
	"infraRsDomP":       def("infraAttEntityP", "rsdomP-[%s]"),
	"infraRsVlanNs":     def("physDomP", "rsvlanNs"),

	// Encapsulation namespaces
	"fvnsVlanInstP":       def("infra", "vlanns-%s-%s"),
	"fvnsEncapBlk__vlan":  def("fvnsVlanInstP", "from-%s-to-%s"),
	"fvnsVxlanInstP":      def("infra", "vxlanns-%s"),
	"fvnsEncapBlk__vxlan": def("fvnsVxlanInstP", "from-%s-to-%s"),

	// Fabric policies
	"fabric":                readOnly("", "fabric"),
	"bgpInstPol":            def("fabric", "bgpInstP-%s"),
	"bgpRRP":                def("bgpInstPol", "rr"),
	"bgpRRNodePEp":          def("bgpRRP", "node-%s"),
	"bgpAsP":                def("bgpInstPol", "as"),
	"funcprof":              readOnly("fabric", "funcprof"),
	"fabricPodPGrp":         def("funcprof", "podpgrp-%s"),
	"fabricRsPodPGrpBGPRRP": def("fabricPodPGrp", "rspodPGrpBGPRRP"),
	"fabricPodP":            def("fabric", "podprof-default"),
	"fabricPodS__ALL":       def("fabricPodP", "pods-%s-typ-ALL"),
	"fabricRsPodPGrp":       def("fabricPodS__ALL", "rspodPGrp"),

	// Read-only topology
	"fabricTopology":   readOnly("", "topology"),
	"fabricPod":        readOnly("fabricTopology", "pod-%s"),
	"fabricPathEpCont": readOnly("fabricPod", "paths-%s"),
	"fabricPathEp":     readOnly("fabricPathEpCont", "pathep-%s"),
	"fabricNode":       readOnly("fabricPod", "node-%s"),
}
