package mo

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/noironetworks/neutron/pkg/schema"
	"github.com/noironetworks/neutron/pkg/transports/apic"
)

type postCall struct {
	path  string
	class string
	attrs apic.Attributes
}

// recordingRequester captures posts and answers gets from a canned table.
type recordingRequester struct {
	posts   []postCall
	gets    []string
	replies map[string][]apic.Envelope
	postErr error
}

func newRecordingRequester() *recordingRequester {
	return &recordingRequester{replies: make(map[string][]apic.Envelope)}
}

func (r *recordingRequester) Get(_ context.Context, path string) ([]apic.Envelope, error) {
	r.gets = append(r.gets, path)
	return r.replies[path], nil
}

func (r *recordingRequester) Post(_ context.Context, path string, body []byte) ([]apic.Envelope, error) {
	if r.postErr != nil {
		return nil, r.postErr
	}
	var env apic.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	class := env.Class()
	r.posts = append(r.posts, postCall{path: path, class: class, attrs: env[class].Attributes})
	return nil, nil
}

func TestCreateCreatesAncestorsOutermostFirst(t *testing.T) {
	req := newRecordingRequester()
	c := NewClient(req, nil)

	err := c.MO("fvRsDomAtt").Create(context.Background(), nil, "acme", "app", "net-42", "uni/phys-openstack")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	want := []string{
		"/mo/uni/tn-acme.json",
		"/mo/uni/tn-acme/ap-app.json",
		"/mo/uni/tn-acme/ap-app/epg-net-42.json",
		"/mo/uni/tn-acme/ap-app/epg-net-42/rsdomAtt-[uni/phys-openstack].json",
	}
	if len(req.posts) != len(want) {
		t.Fatalf("posts = %d, want %d", len(req.posts), len(want))
	}
	for i, p := range req.posts {
		if p.path != want[i] {
			t.Errorf("post[%d] path = %s, want %s", i, p.path, want[i])
		}
	}
	for _, p := range req.posts[:3] {
		if len(p.attrs) != 0 {
			t.Errorf("container %s posted attributes %v, want none", p.class, p.attrs)
		}
	}
	if got := req.posts[3].attrs["status"]; got != StatusCreated {
		t.Errorf("status = %q, want %q", got, StatusCreated)
	}
}

func TestCreateStopsAtNonCreatableContainer(t *testing.T) {
	req := newRecordingRequester()
	c := NewClient(req, nil)

	err := c.MO("infraRsAttEntP").Create(context.Background(), apic.Attributes{"tDn": "uni/infra/attentp-x"}, "grp")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(req.posts) != 2 {
		t.Fatalf("posts = %d, want 2", len(req.posts))
	}
	if req.posts[0].path != "/mo/uni/infra/funcprof/accportgrp-grp.json" {
		t.Errorf("container path = %s", req.posts[0].path)
	}
	// rsattEntP has no value slot so it is not creatable.
	if _, ok := req.posts[1].attrs["status"]; ok {
		t.Errorf("relationship post carries status: %v", req.posts[1].attrs)
	}
	if req.posts[1].attrs["tDn"] != "uni/infra/attentp-x" {
		t.Errorf("tDn = %q", req.posts[1].attrs["tDn"])
	}
}

func TestCreateKeepsExplicitStatus(t *testing.T) {
	req := newRecordingRequester()
	c := NewClient(req, nil)
	attrs := apic.Attributes{"status": "modified"}

	if err := c.MO("fvTenant").Create(context.Background(), attrs, "acme"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := req.posts[0].attrs["status"]; got != "modified" {
		t.Errorf("status = %q, want modified", got)
	}
	if len(attrs) != 1 {
		t.Errorf("caller attributes mutated: %v", attrs)
	}
}

func TestArityMismatchSendsNothing(t *testing.T) {
	req := newRecordingRequester()
	c := NewClient(req, nil)

	err := c.MO("fvBD").Create(context.Background(), nil, "acme")
	if !errors.Is(err, schema.ErrArityMismatch) {
		t.Fatalf("Create() error = %v, want ErrArityMismatch", err)
	}
	if len(req.posts) != 0 {
		t.Errorf("posts = %d, want 0", len(req.posts))
	}
}

func TestUnknownClass(t *testing.T) {
	c := NewClient(newRecordingRequester(), nil)
	if _, _, err := c.MO("noSuchClass").Get(context.Background(), "x"); !errors.Is(err, schema.ErrUnknownClass) {
		t.Errorf("Get() error = %v, want ErrUnknownClass", err)
	}
	if _, err := c.MO("noSuchClass").ListAll(context.Background(), nil); !errors.Is(err, schema.ErrUnknownClass) {
		t.Errorf("ListAll() error = %v, want ErrUnknownClass", err)
	}
}

func TestGet(t *testing.T) {
	req := newRecordingRequester()
	req.replies["/mo/uni/tn-acme/BD-net.json?query-target=self"] = []apic.Envelope{
		apic.NewEnvelope("fvBD", apic.Attributes{"name": "net", "arpFlood": "no"}),
	}
	c := NewClient(req, nil)

	attrs, ok, err := c.MO("fvBD").Get(context.Background(), "acme", "net")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v, %v", attrs, ok, err)
	}
	if attrs["arpFlood"] != "no" {
		t.Errorf("arpFlood = %q", attrs["arpFlood"])
	}

	_, ok, err = c.MO("fvBD").Get(context.Background(), "acme", "other")
	if err != nil || ok {
		t.Errorf("Get() on absent object = %v, %v", ok, err)
	}
}

func TestGetSubtreePath(t *testing.T) {
	req := newRecordingRequester()
	c := NewClient(req, nil)

	if _, err := c.MO("bgpInstPol").GetSubtree(context.Background(), SubtreeOptions{Class: "bgpRRNodePEp"}, "default"); err != nil {
		t.Fatalf("GetSubtree() error = %v", err)
	}
	if _, err := c.MO("fvTenant").GetSubtree(context.Background(), SubtreeOptions{}, "acme"); err != nil {
		t.Fatalf("GetSubtree() error = %v", err)
	}
	want := []string{
		"/mo/uni/fabric/bgpInstP-default.json?query-target=children&target-subtree-class=bgpRRNodePEp&rsp-subtree=full",
		"/mo/uni/tn-acme.json?query-target=children&rsp-subtree=full",
	}
	if !reflect.DeepEqual(req.gets, want) {
		t.Errorf("gets = %v, want %v", req.gets, want)
	}
}

func TestListAllAndNames(t *testing.T) {
	req := newRecordingRequester()
	filter := map[string]string{"role": "spine"}
	path := "/class/fabricNode.json?query-target-filter=" + url.QueryEscape(FilterExpression("fabricNode", filter))
	req.replies[path] = []apic.Envelope{
		apic.NewEnvelope("fabricNode", apic.Attributes{"name": "spine1", "id": "201"}),
		apic.NewEnvelope("fabricNode", apic.Attributes{"name": "spine2", "id": "202"}),
	}
	c := NewClient(req, nil)

	names, err := c.MO("fabricNode").ListNames(context.Background(), filter)
	if err != nil {
		t.Fatalf("ListNames() error = %v", err)
	}
	if !reflect.DeepEqual(names, []string{"spine1", "spine2"}) {
		t.Errorf("names = %v", names)
	}

	u, err := url.Parse(req.gets[0])
	if err != nil {
		t.Fatalf("parse %s: %v", req.gets[0], err)
	}
	if got := u.Query().Get("query-target-filter"); got != `and(eq(fabricNode.role,"spine"))` {
		t.Errorf("filter = %s", got)
	}
}

func TestListAllWithoutFilter(t *testing.T) {
	req := newRecordingRequester()
	c := NewClient(req, nil)
	if _, err := c.MO("fvTenant").ListAll(context.Background(), nil); err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if req.gets[0] != "/class/fvTenant.json" {
		t.Errorf("path = %s", req.gets[0])
	}
}

func TestFilterExpressionSortsKeys(t *testing.T) {
	got := FilterExpression("fvBD", map[string]string{"tenant": "acme", "name": "net"})
	want := `and(eq(fvBD.name,"net"),eq(fvBD.tenant,"acme"))`
	if got != want {
		t.Errorf("FilterExpression() = %s, want %s", got, want)
	}
	if FilterExpression("fvBD", nil) != "" {
		t.Error("empty filter should produce no expression")
	}
}

func TestUpdateAndDelete(t *testing.T) {
	req := newRecordingRequester()
	c := NewClient(req, nil)
	ctx := context.Background()

	if err := c.MO("fabricRsPodPGrpBGPRRP").Update(ctx, apic.Attributes{"tnBgpInstPolName": "default"}, "pg"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := c.MO("fvBD").Delete(ctx, "acme", "net"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if len(req.posts) != 2 {
		t.Fatalf("posts = %d, want 2", len(req.posts))
	}
	if req.posts[0].path != "/mo/uni/fabric/funcprof/podpgrp-pg/rspodPGrpBGPRRP.json" {
		t.Errorf("update path = %s", req.posts[0].path)
	}
	if _, ok := req.posts[0].attrs["status"]; ok {
		t.Error("update should not set status")
	}
	if req.posts[1].attrs["status"] != StatusDeleted {
		t.Errorf("delete status = %q", req.posts[1].attrs["status"])
	}
}

func TestContainerFailureIsWrapped(t *testing.T) {
	req := newRecordingRequester()
	req.postErr = &apic.RemoteRejectedError{Status: 400, Code: "102", Text: "configured object not found"}
	c := NewClient(req, nil)

	err := c.MO("fvBD").Create(context.Background(), nil, "acme", "net")
	if err == nil {
		t.Fatal("Create() error = nil")
	}
	if _, ok := apic.IsRejected(err); !ok {
		t.Errorf("error %v does not unwrap to RemoteRejectedError", err)
	}
	if !strings.Contains(err.Error(), "uni/tn-acme") {
		t.Errorf("error %q does not name the container", err)
	}
}

func TestMOIsMemoized(t *testing.T) {
	c := NewClient(newRecordingRequester(), nil)
	if c.MO("fvBD") != c.MO("fvBD") {
		t.Error("MO() returned distinct accessors for the same class")
	}
}
