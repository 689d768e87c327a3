package engine

import (
	"context"
	"sort"
)

// Controller-side constants shared by every workflow.
const (
	ContextEnforced   = "1"
	ContextUnenforced = "2"
	ContextShared     = "shared"

	ScopeGlobal = "global"
	ScopeTenant = "tenant"

	TenantCommon = "common"

	PortDNPath           = "topology/pod-1/paths-%s/pathep-[eth%s/%s]"
	NodeDNPath           = "topology/pod-1/node-%s"
	PodPolicyGroupDNPath = "uni/fabric/funcprof/podpgrp-%s"
	ContractDNPath       = "uni/tn-%s/brc-%s"

	ExtNode      = "os-lnode"
	ExtInterface = "os-linterface"
	ExtEPG       = "os-external_epg"
	ExtRouterID  = "1.0.0.1"
	DefaultRoute = "0.0.0.0/0"

	ContractSubject   = "os-subject"
	ContractFilter    = "os-filter"
	ContractEntry     = "os-entry"
	ContractInterface = "os-interface"

	// StaticIfname marks host links read from configuration.
	StaticIfname = "static"
)

// Segment is one VLAN a host must carry for a tenant network. Ids are
// control-plane ids and are mapped to controller names before use.
type Segment struct {
	TenantID       string `yaml:"tenant_id" json:"tenant_id"`
	NetworkID      string `yaml:"network_id" json:"network_id"`
	SegmentationID int    `yaml:"segmentation_id" json:"segmentation_id"`
}

// SegmentSource reports the segments bound to a host.
type SegmentSource interface {
	SegmentsForHost(ctx context.Context, host string) ([]Segment, error)
}

// StaticSegments is a SegmentSource backed by a map.
type StaticSegments map[string][]Segment

// SegmentsForHost implements SegmentSource.
func (s StaticSegments) SegmentsForHost(_ context.Context, host string) ([]Segment, error) {
	return s[host], nil
}

// PortRange is an inclusive run of contiguous port numbers.
type PortRange struct {
	From int
	To   int
}

// GroupByRanges groups port numbers into maximal contiguous runs.
// Duplicates are ignored.
func GroupByRanges(ports []int) []PortRange {
	if len(ports) == 0 {
		return nil
	}
	sorted := append([]int(nil), ports...)
	sort.Ints(sorted)

	ranges := []PortRange{{From: sorted[0], To: sorted[0]}}
	for _, p := range sorted[1:] {
		last := &ranges[len(ranges)-1]
		switch {
		case p == last.To:
		case p == last.To+1:
			last.To = p
		default:
			ranges = append(ranges, PortRange{From: p, To: p})
		}
	}
	return ranges
}

// ContractName returns the contract name used for a router.
func ContractName(routerID string) string {
	return "contract-" + routerID
}

func ownerOrCommon(owner string) string {
	if owner == "" {
		return TenantCommon
	}
	return owner
}
