package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/noironetworks/neutron/pkg/stores"
)

func TestNameMapper(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	display := map[string]string{"t1": "Acme", "n1": "web"}
	lookup := func(_ context.Context, _ NameType, id string) (string, error) {
		name, ok := display[id]
		if !ok {
			return "", errors.New("no such object")
		}
		return name, nil
	}

	tests := []struct {
		name     string
		strategy NamingStrategy
		typ      NameType
		id       string
		want     string
	}{
		{name: "use_name", strategy: NamingUseName, typ: NameTypeNetwork, id: "n1", want: "web"},
		{name: "use_uuid", strategy: NamingUseUUID, typ: NameTypeTenant, id: "t1", want: "Acme-t1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNameMapper(store, tt.strategy, lookup, nil)
			got, err := n.Map(ctx, tt.typ, tt.id)
			if err != nil {
				t.Fatalf("Map() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Map() = %s, want %s", got, tt.want)
			}
		})
	}

	// A rename after the first mapping does not move the controller name.
	display["n1"] = "frontend"
	n := NewNameMapper(store, NamingUseName, lookup, nil)
	if got, _ := n.Network(ctx, "n1"); got != "web" {
		t.Errorf("Network() after rename = %s, want web", got)
	}

	if err := n.Forget(ctx, NameTypeNetwork, "n1"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	if got, _ := n.Network(ctx, "n1"); got != "frontend" {
		t.Errorf("Network() after Forget = %s, want frontend", got)
	}
}

func TestNameMapperLookupFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	lookup := func(context.Context, NameType, string) (string, error) {
		return "", errors.New("control plane unavailable")
	}
	n := NewNameMapper(store, NamingUseName, lookup, nil)

	got, err := n.Router(ctx, "r1")
	if err != nil {
		t.Fatalf("Router() error = %v", err)
	}
	if got != "r1" {
		t.Errorf("Router() = %s, want the id", got)
	}
	if _, err := store.GetName(ctx, "r1", string(NameTypeRouter)); !errors.Is(err, stores.ErrNotFound) {
		t.Errorf("fallback name was remembered: %v", err)
	}
}

func TestNameMapperWithoutLookup(t *testing.T) {
	n := NewNameMapper(newTestStore(t), "", nil, nil)
	got, err := n.Tenant(context.Background(), "t1")
	if err != nil || got != "t1" {
		t.Errorf("Tenant() = %s, %v; want t1", got, err)
	}
	if got, _ := n.Tenant(context.Background(), ""); got != "" {
		t.Errorf("Tenant(\"\") = %q", got)
	}
}
