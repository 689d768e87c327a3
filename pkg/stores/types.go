package stores

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Audit actions written by the reconciliation engine.
const (
	AuditActionRollback       = "rollback.completed"
	AuditActionRollbackFailed = "rollback.failed"
	AuditActionClean          = "store.cleaned"
)

// NetworkEPG maps a network to the endpoint group created for it.
type NetworkEPG struct {
	NetworkID      string    `json:"network_id"`
	EPGID          string    `json:"epg_id"`
	SegmentationID int       `json:"segmentation_id"`
	Provider       bool      `json:"provider"`
	CreatedAt      time.Time `json:"created_at"`
}

// PortProfile maps a leaf switch to its generated access port profile name.
type PortProfile struct {
	NodeID    string    `json:"node_id"`
	ProfileID string    `json:"profile_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RouterContract records the contract and filter created for a router.
type RouterContract struct {
	RouterID   string    `json:"router_id"`
	TenantID   string    `json:"tenant_id"`
	ContractID string    `json:"contract_id"`
	FilterID   string    `json:"filter_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// HostLink is one host interface cabled to a leaf switch port.
type HostLink struct {
	Host      string    `json:"host"`
	Ifname    string    `json:"ifname"`
	Ifmac     string    `json:"ifmac"`
	SwitchID  string    `json:"switch_id"`
	Module    string    `json:"module"`
	Port      string    `json:"port"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SamePort reports whether two links end on the same switch port.
func (l *HostLink) SamePort(other *HostLink) bool {
	return l.SwitchID == other.SwitchID && l.Module == other.Module && l.Port == other.Port
}

// AuditEntry represents an audit trail entry
type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`              // e.g., "rollback.completed"
	Actor     string    `json:"actor"`               // component identifier
	TargetID  *string   `json:"target_id,omitempty"` // operation key
	Details   *string   `json:"details,omitempty"`   // JSON blob
	Timestamp time.Time `json:"timestamp"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	HealthCheck(ctx context.Context) error

	// Network to endpoint group records
	GetNetworkEPG(ctx context.Context, networkID string) (*NetworkEPG, error)
	PutNetworkEPG(ctx context.Context, rec *NetworkEPG) error
	DeleteNetworkEPG(ctx context.Context, networkID string) error

	// Generated port profile names
	GetPortProfile(ctx context.Context, nodeID string) (*PortProfile, error)
	PutPortProfile(ctx context.Context, rec *PortProfile) error
	DeletePortProfile(ctx context.Context, nodeID string) error

	// Router contracts
	GetRouterContract(ctx context.Context, routerID string) (*RouterContract, error)
	PutRouterContract(ctx context.Context, rec *RouterContract) error
	DeleteRouterContract(ctx context.Context, routerID string) error

	// Host links
	GetHostLink(ctx context.Context, host, ifname string) (*HostLink, error)
	PutHostLink(ctx context.Context, link *HostLink) error
	DeleteHostLink(ctx context.Context, host, ifname string) error
	ListHostLinks(ctx context.Context) ([]*HostLink, error)
	ListHostLinksForHost(ctx context.Context, host string) ([]*HostLink, error)
	ListHostLinksForPort(ctx context.Context, switchID, module, port string) ([]*HostLink, error)

	// Name mapping
	GetName(ctx context.Context, neutronID, neutronType string) (string, error)
	PutName(ctx context.Context, neutronID, neutronType, apicName string) error
	DeleteName(ctx context.Context, neutronID, neutronType string) error

	// Key map
	GetKey(ctx context.Context, key string) (string, error)
	PutKey(ctx context.Context, key, value string) error

	// Audit operations
	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, action *string, limit, offset int) ([]*AuditEntry, error)

	// Clean removes every reconciliation record.
	Clean(ctx context.Context) error
}
