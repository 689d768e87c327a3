package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/noironetworks/neutron/pkg/mo"
	"github.com/noironetworks/neutron/pkg/stores"
)

const (
	blocks1 = pp1DN + "/hports-1-typ-range"
	path3   = "uni/tn-t1/ap-openstack_app/epg-n1/rspathAtt-[topology/pod-1/paths-101/pathep-[eth1/3]]"
)

func link(host, port string) stores.HostLink {
	return stores.HostLink{
		Host:     host,
		Ifname:   "eth1",
		Ifmac:    "fa:16:3e:00:00:01",
		SwitchID: "101",
		Module:   "1",
		Port:     port,
	}
}

func TestAddHostLinkBindsSegments(t *testing.T) {
	ctx := context.Background()
	segments := StaticSegments{
		"compute-1": {{TenantID: "t1", NetworkID: "n1", SegmentationID: 101}},
	}
	m, fabric, store := newTestManager(t, Config{}, WithSegmentSource(segments))

	if err := m.AddHostLink(ctx, link("compute-1", "3")); err != nil {
		t.Fatalf("AddHostLink() error = %v", err)
	}
	if !fabric.has(blocks1 + "/portblk-3-3") {
		t.Error("port block 3-3 missing")
	}
	attrs := fabric.attrs(path3)
	if attrs["encap"] != "vlan-101" || attrs["mode"] != "regular" || attrs["instrImedcy"] != "immediate" {
		t.Errorf("path binding attrs = %v", attrs)
	}

	if err := m.AddHostLink(ctx, link("compute-2", "4")); err != nil {
		t.Fatalf("AddHostLink(compute-2) error = %v", err)
	}
	if !fabric.has(blocks1 + "/portblk-3-4") {
		t.Error("port block 3-4 missing")
	}
	if fabric.has(blocks1 + "/portblk-3-3") {
		t.Error("stale port block 3-3 kept")
	}

	links, err := m.ListHostLinks(ctx)
	if err != nil {
		t.Fatalf("ListHostLinks() error = %v", err)
	}
	if len(links) != 2 {
		t.Errorf("links = %d, want 2", len(links))
	}

	before := fabric.postCount()
	if err := m.AddHostLink(ctx, link("compute-2", "4")); err != nil {
		t.Fatalf("repeated AddHostLink() error = %v", err)
	}
	if n := fabric.postCount() - before; n != 0 {
		t.Errorf("repeated add wrote %d objects, want 0", n)
	}

	if _, err := store.GetPortProfile(ctx, "101"); err != nil {
		t.Errorf("GetPortProfile() error = %v", err)
	}
	rec, err := store.GetNetworkEPG(ctx, "n1")
	if err != nil {
		t.Fatalf("GetNetworkEPG() error = %v", err)
	}
	if rec.SegmentationID != 101 {
		t.Errorf("SegmentationID = %d, want 101", rec.SegmentationID)
	}
}

func TestEnsurePathCreatedForPortRecordsSegment(t *testing.T) {
	ctx := context.Background()
	m, _, store := newTestManager(t, Config{})

	if err := m.AddHostLink(ctx, link("compute-1", "3")); err != nil {
		t.Fatalf("AddHostLink() error = %v", err)
	}
	for _, encap := range []int{100, 200} {
		if err := m.EnsurePathCreatedForPort(ctx, "t1", "n1", "compute-1", encap); err != nil {
			t.Fatalf("EnsurePathCreatedForPort(%d) error = %v", encap, err)
		}
		rec, err := store.GetNetworkEPG(ctx, "n1")
		if err != nil {
			t.Fatalf("GetNetworkEPG() error = %v", err)
		}
		if rec.SegmentationID != encap {
			t.Errorf("SegmentationID = %d, want %d", rec.SegmentationID, encap)
		}
	}
}

func TestRemoveHostLink(t *testing.T) {
	ctx := context.Background()
	m, fabric, store := newTestManager(t, Config{})

	for _, l := range []stores.HostLink{link("compute-1", "3"), link("compute-2", "4")} {
		if err := m.AddHostLink(ctx, l); err != nil {
			t.Fatalf("AddHostLink(%s) error = %v", l.Host, err)
		}
	}

	if err := m.RemoveHostLink(ctx, "compute-2", "eth1"); err != nil {
		t.Fatalf("RemoveHostLink(compute-2) error = %v", err)
	}
	if !fabric.has(blocks1 + "/portblk-3-3") {
		t.Error("port block 3-3 missing after removal")
	}
	if fabric.has(blocks1 + "/portblk-3-4") {
		t.Error("port block 3-4 kept after removal")
	}

	if err := m.RemoveHostLink(ctx, "compute-1", "eth1"); err != nil {
		t.Fatalf("RemoveHostLink(compute-1) error = %v", err)
	}
	if fabric.has(node101) || fabric.has(pp1DN) {
		t.Error("switch profiles kept after the last link was removed")
	}
	if _, err := store.GetPortProfile(ctx, "101"); !errors.Is(err, stores.ErrNotFound) {
		t.Errorf("GetPortProfile() error = %v, want ErrNotFound", err)
	}

	if err := m.RemoveHostLink(ctx, "compute-1", "eth1"); err != nil {
		t.Errorf("removing an unknown link error = %v", err)
	}
}

func TestUpdateLink(t *testing.T) {
	ctx := context.Background()
	m, fabric, store := newTestManager(t, Config{})

	if err := m.UpdateLink(ctx, link("compute-1", "3")); err != nil {
		t.Fatalf("UpdateLink() error = %v", err)
	}

	before := fabric.postCount()
	if err := m.UpdateLink(ctx, link("compute-1", "3")); err != nil {
		t.Fatalf("unchanged UpdateLink() error = %v", err)
	}
	if n := fabric.postCount() - before; n != 0 {
		t.Errorf("unchanged link wrote %d objects, want 0", n)
	}

	if err := m.UpdateLink(ctx, link("compute-1", "7")); err != nil {
		t.Fatalf("moved UpdateLink() error = %v", err)
	}
	got, err := store.GetHostLink(ctx, "compute-1", "eth1")
	if err != nil {
		t.Fatalf("GetHostLink() error = %v", err)
	}
	if got.Port != "7" {
		t.Errorf("port = %s, want 7", got.Port)
	}
	if !fabric.has("uni/infra/accportprof-pp-2/hports-1-typ-range/portblk-7-7") {
		t.Error("port block for the moved link missing")
	}

	gone := link("compute-1", "")
	gone.SwitchID = ""
	if err := m.UpdateLink(ctx, gone); err != nil {
		t.Fatalf("UpdateLink(no neighbour) error = %v", err)
	}
	if _, err := store.GetHostLink(ctx, "compute-1", "eth1"); !errors.Is(err, stores.ErrNotFound) {
		t.Errorf("GetHostLink() error = %v, want ErrNotFound", err)
	}
}

func TestClean(t *testing.T) {
	ctx := context.Background()
	m, fabric, store := newTestManager(t, Config{})

	if err := m.EnsureInfraCreated(ctx); err != nil {
		t.Fatalf("EnsureInfraCreated() error = %v", err)
	}
	if err := m.AddHostLink(ctx, link("compute-1", "3")); err != nil {
		t.Fatalf("AddHostLink() error = %v", err)
	}

	if err := m.Clean(ctx); err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	for _, dn := range []string{vlanDN, physDN, entDN, funcDN, node101, pp1DN} {
		if fabric.has(dn) {
			t.Errorf("%s kept after Clean", dn)
		}
	}

	links, err := store.ListHostLinks(ctx)
	if err != nil {
		t.Fatalf("ListHostLinks() error = %v", err)
	}
	if len(links) != 0 {
		t.Errorf("links after Clean = %d, want 0", len(links))
	}

	action := stores.AuditActionClean
	entries, err := store.ListAuditEntries(ctx, &action, 10, 0)
	if err != nil {
		t.Fatalf("ListAuditEntries() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("clean audit entries = %d, want 1", len(entries))
	}
}

func TestCleanRemovesAppliedInfraNames(t *testing.T) {
	ctx := context.Background()
	m, fabric, store := newTestManager(t, Config{})

	if err := m.EnsureInfraCreated(ctx); err != nil {
		t.Fatalf("EnsureInfraCreated() error = %v", err)
	}
	for key, want := range map[string]string{
		keyVlanNamespace:   "openstack_ns",
		keyPhysDomain:      "openstack",
		keyEntityProfile:   "openstack_entity",
		keyFunctionProfile: "openstack_function",
	} {
		got, err := store.GetKey(ctx, key)
		if err != nil {
			t.Fatalf("GetKey(%s) error = %v", key, err)
		}
		if got != want {
			t.Errorf("GetKey(%s) = %q, want %q", key, got, want)
		}
	}

	renamed := NewManager(mo.NewClient(fabric, nil), store, Config{
		DomainName:      "fabric2",
		VlanNamespace:   "fabric2_ns",
		EntityProfile:   "fabric2_entity",
		FunctionProfile: "fabric2_function",
	})
	if err := renamed.Clean(ctx); err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	for _, dn := range []string{vlanDN, physDN, entDN, funcDN} {
		if fabric.has(dn) {
			t.Errorf("%s kept after Clean under new names", dn)
		}
	}
	if _, err := store.GetKey(ctx, keyPhysDomain); !errors.Is(err, stores.ErrNotFound) {
		t.Errorf("GetKey() after Clean error = %v, want ErrNotFound", err)
	}
}
