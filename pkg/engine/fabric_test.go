package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/noironetworks/neutron/pkg/mo"
	"github.com/noironetworks/neutron/pkg/stores"
	"github.com/noironetworks/neutron/pkg/transports/apic"
)

type fabricObject struct {
	class string
	attrs apic.Attributes
}

type fabricPost struct {
	dn    string
	class string
	attrs apic.Attributes
}

// fakeFabric is an in-memory controller keyed by distinguished name.
type fakeFabric struct {
	mu      sync.Mutex
	objects map[string]fabricObject
	posts   []fabricPost
	failOn  map[string]error
}

func newFakeFabric() *fakeFabric {
	return &fakeFabric{
		objects: make(map[string]fabricObject),
		failOn:  make(map[string]error),
	}
}

var filterTerm = regexp.MustCompile(`eq\([^.]+\.([^,]+),"([^"]*)"\)`)

func (f *fakeFabric) Get(_ context.Context, path string) ([]apic.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, rawQuery, _ := strings.Cut(path, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasPrefix(p, "/class/"):
		class := strings.TrimSuffix(strings.TrimPrefix(p, "/class/"), ".json")
		want := map[string]string{}
		for _, m := range filterTerm.FindAllStringSubmatch(q.Get("query-target-filter"), -1) {
			want[m[1]] = m[2]
		}
		var out []apic.Envelope
		for _, dn := range f.sortedDNs() {
			obj := f.objects[dn]
			if obj.class != class || !matches(obj.attrs, want) {
				continue
			}
			out = append(out, apic.NewEnvelope(obj.class, copyAttrs(obj.attrs)))
		}
		return out, nil

	case strings.HasPrefix(p, "/mo/"):
		dn := strings.TrimSuffix(strings.TrimPrefix(p, "/mo/"), ".json")
		if q.Get("query-target") == "children" {
			class := q.Get("target-subtree-class")
			var out []apic.Envelope
			for _, d := range f.sortedDNs() {
				obj := f.objects[d]
				if !strings.HasPrefix(d, dn+"/") || (class != "" && obj.class != class) {
					continue
				}
				out = append(out, apic.NewEnvelope(obj.class, copyAttrs(obj.attrs)))
			}
			return out, nil
		}
		obj, ok := f.objects[dn]
		if !ok {
			return nil, nil
		}
		return []apic.Envelope{apic.NewEnvelope(obj.class, copyAttrs(obj.attrs))}, nil
	}
	return nil, fmt.Errorf("unexpected path %s", path)
}

func (f *fakeFabric) Post(_ context.Context, path string, body []byte) ([]apic.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	dn := strings.TrimSuffix(strings.TrimPrefix(path, "/mo/"), ".json")
	var env apic.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	class := env.Class()
	attrs, _ := env.AttributesOf(class)
	f.posts = append(f.posts, fabricPost{dn: dn, class: class, attrs: copyAttrs(attrs)})

	if attrs["status"] == mo.StatusDeleted {
		for d := range f.objects {
			if d == dn || strings.HasPrefix(d, dn+"/") {
				delete(f.objects, d)
			}
		}
		return nil, nil
	}
	if err, ok := f.failOn[dn]; ok {
		return nil, err
	}

	obj, ok := f.objects[dn]
	if !ok {
		obj = fabricObject{class: class, attrs: apic.Attributes{}}
	}
	for k, v := range attrs {
		if k != "status" {
			obj.attrs[k] = v
		}
	}
	f.objects[dn] = obj
	return nil, nil
}

// put seeds an object without recording a post.
func (f *fakeFabric) put(dn, class string, attrs apic.Attributes) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[dn] = fabricObject{class: class, attrs: copyAttrs(attrs)}
}

// drop deletes an object and its subtree behind the engine's back.
func (f *fakeFabric) drop(dn string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for d := range f.objects {
		if d == dn || strings.HasPrefix(d, dn+"/") {
			delete(f.objects, d)
		}
	}
}

func (f *fakeFabric) has(dn string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[dn]
	return ok
}

func (f *fakeFabric) attrs(dn string) apic.Attributes {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyAttrs(f.objects[dn].attrs)
}

func (f *fakeFabric) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

// created returns the distinguished names posted without status=deleted, in order.
func (f *fakeFabric) created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.posts {
		if p.attrs["status"] != mo.StatusDeleted {
			out = append(out, p.dn)
		}
	}
	return out
}

// deletes returns the distinguished names posted with status=deleted, in order.
func (f *fakeFabric) deletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.posts {
		if p.attrs["status"] == mo.StatusDeleted {
			out = append(out, p.dn)
		}
	}
	return out
}

func (f *fakeFabric) sortedDNs() []string {
	dns := make([]string, 0, len(f.objects))
	for dn := range f.objects {
		dns = append(dns, dn)
	}
	sort.Strings(dns)
	return dns
}

func copyAttrs(a apic.Attributes) apic.Attributes {
	out := make(apic.Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func newTestStore(t *testing.T) *stores.SQLiteStore {
	t.Helper()
	store, err := stores.Open(context.Background(), stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// sequence returns a generator yielding prefix-1, prefix-2, ...
func sequence(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestManager(t *testing.T, cfg Config, opts ...Option) (*Manager, *fakeFabric, *stores.SQLiteStore) {
	t.Helper()
	fabric := newFakeFabric()
	store := newTestStore(t)
	opts = append([]Option{WithIDGenerator(sequence("pp"))}, opts...)
	m := NewManager(mo.NewClient(fabric, nil), store, cfg, opts...)
	return m, fabric, store
}
