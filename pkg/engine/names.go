package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/noironetworks/neutron/pkg/stores"
	"github.com/noironetworks/neutron/pkg/telemetry"
)

// NamingStrategy selects how control-plane ids become controller names.
type NamingStrategy string

const (
	// NamingUseName uses the display name alone.
	NamingUseName NamingStrategy = "use_name"

	// NamingUseUUID appends the id to the display name.
	NamingUseUUID NamingStrategy = "use_uuid"
)

// NameType is the kind of control-plane object being named.
type NameType string

const (
	NameTypeTenant  NameType = "tenant"
	NameTypeNetwork NameType = "network"
	NameTypeSubnet  NameType = "subnet"
	NameTypePort    NameType = "port"
	NameTypeRouter  NameType = "router"
)

// NameLookup returns the display name of a control-plane object.
type NameLookup func(ctx context.Context, typ NameType, id string) (string, error)

// NameMapper maps control-plane ids to controller names. A mapping is
// remembered once made so later renames do not move controller objects.
type NameMapper struct {
	store    stores.Store
	strategy NamingStrategy
	lookup   NameLookup
	logger   *telemetry.Logger
}

// NewNameMapper creates a mapper. A nil lookup maps every id to itself.
func NewNameMapper(store stores.Store, strategy NamingStrategy, lookup NameLookup, logger *telemetry.Logger) *NameMapper {
	if strategy == "" {
		strategy = NamingUseName
	}
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &NameMapper{store: store, strategy: strategy, lookup: lookup, logger: logger}
}

// Map returns the controller name for id. A failed lookup is logged and
// the id itself is used without being remembered.
func (n *NameMapper) Map(ctx context.Context, typ NameType, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	name, err := n.store.GetName(ctx, id, string(typ))
	if err == nil {
		return name, nil
	}
	if !errors.Is(err, stores.ErrNotFound) {
		return "", fmt.Errorf("map %s %s: %w", typ, id, err)
	}

	if n.lookup == nil {
		return id, nil
	}
	display, err := n.lookup(ctx, typ, id)
	if err != nil || display == "" {
		n.logger.WithError(err).WithField("type", string(typ)).WithField("id", id).
			Warn("name lookup failed, using id")
		return id, nil
	}

	name = id
	switch n.strategy {
	case NamingUseName:
		name = display
	case NamingUseUUID:
		name = display + "-" + id
	}
	if err := n.store.PutName(ctx, id, string(typ), name); err != nil {
		return "", fmt.Errorf("map %s %s: %w", typ, id, err)
	}
	return name, nil
}

// Tenant maps a tenant id.
func (n *NameMapper) Tenant(ctx context.Context, id string) (string, error) {
	return n.Map(ctx, NameTypeTenant, id)
}

// Network maps a network id.
func (n *NameMapper) Network(ctx context.Context, id string) (string, error) {
	return n.Map(ctx, NameTypeNetwork, id)
}

// Router maps a router id.
func (n *NameMapper) Router(ctx context.Context, id string) (string, error) {
	return n.Map(ctx, NameTypeRouter, id)
}

// Forget drops the remembered mapping for id.
func (n *NameMapper) Forget(ctx context.Context, typ NameType, id string) error {
	return n.store.DeleteName(ctx, id, string(typ))
}
