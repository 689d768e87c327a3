package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const memoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config

	// flushMu serializes Clean against individual record writes.
	flushMu sync.RWMutex
}

// Config holds SQLite store configuration
type Config struct {
	Path            string        `yaml:"path" json:"path" validate:"required"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens a separate database.
	if cfg.Path == memoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Open creates, initializes and migrates a store.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

// exec runs a single-row write under the shared side of flushMu.
func (s *SQLiteStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	s.flushMu.RLock()
	defer s.flushMu.RUnlock()
	return s.db.ExecContext(ctx, query, args...)
}

// GetNetworkEPG returns the endpoint group recorded for a network.
func (s *SQLiteStore) GetNetworkEPG(ctx context.Context, networkID string) (*NetworkEPG, error) {
	query := `
		SELECT network_id, epg_id, segmentation_id, provider, created_at
		FROM network_epgs
		WHERE network_id = ?
	`

	rec := &NetworkEPG{}
	err := s.db.QueryRowContext(ctx, query, networkID).Scan(
		&rec.NetworkID,
		&rec.EPGID,
		&rec.SegmentationID,
		&rec.Provider,
		&rec.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("network epg %s: %w", networkID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get network epg: %w", err)
	}

	return rec, nil
}

// PutNetworkEPG inserts or replaces the record for a network.
func (s *SQLiteStore) PutNetworkEPG(ctx context.Context, rec *NetworkEPG) error {
	query := `
		INSERT INTO network_epgs (network_id, epg_id, segmentation_id, provider, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(network_id) DO UPDATE SET
			epg_id = excluded.epg_id,
			segmentation_id = excluded.segmentation_id,
			provider = excluded.provider
	`

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, query, rec.NetworkID, rec.EPGID, rec.SegmentationID, rec.Provider, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to put network epg: %w", err)
	}

	return nil
}

// DeleteNetworkEPG removes the record for a network. Missing rows are ignored.
func (s *SQLiteStore) DeleteNetworkEPG(ctx context.Context, networkID string) error {
	if _, err := s.exec(ctx, `DELETE FROM network_epgs WHERE network_id = ?`, networkID); err != nil {
		return fmt.Errorf("failed to delete network epg: %w", err)
	}
	return nil
}

// GetPortProfile returns the generated port profile name for a switch.
func (s *SQLiteStore) GetPortProfile(ctx context.Context, nodeID string) (*PortProfile, error) {
	query := `
		SELECT node_id, profile_id, created_at
		FROM port_profiles
		WHERE node_id = ?
	`

	rec := &PortProfile{}
	err := s.db.QueryRowContext(ctx, query, nodeID).Scan(&rec.NodeID, &rec.ProfileID, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("port profile for node %s: %w", nodeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get port profile: %w", err)
	}

	return rec, nil
}

// PutPortProfile records the port profile name for a switch.
func (s *SQLiteStore) PutPortProfile(ctx context.Context, rec *PortProfile) error {
	query := `
		INSERT INTO port_profiles (node_id, profile_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET profile_id = excluded.profile_id
	`

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if _, err := s.exec(ctx, query, rec.NodeID, rec.ProfileID, rec.CreatedAt); err != nil {
		return fmt.Errorf("failed to put port profile: %w", err)
	}

	return nil
}

// DeletePortProfile removes the port profile record for a switch.
func (s *SQLiteStore) DeletePortProfile(ctx context.Context, nodeID string) error {
	if _, err := s.exec(ctx, `DELETE FROM port_profiles WHERE node_id = ?`, nodeID); err != nil {
		return fmt.Errorf("failed to delete port profile: %w", err)
	}
	return nil
}

// GetRouterContract returns the contract recorded for a router.
func (s *SQLiteStore) GetRouterContract(ctx context.Context, routerID string) (*RouterContract, error) {
	query := `
		SELECT router_id, tenant_id, contract_id, filter_id, created_at
		FROM router_contracts
		WHERE router_id = ?
	`

	rec := &RouterContract{}
	err := s.db.QueryRowContext(ctx, query, routerID).Scan(
		&rec.RouterID,
		&rec.TenantID,
		&rec.ContractID,
		&rec.FilterID,
		&rec.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("router contract %s: %w", routerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get router contract: %w", err)
	}

	return rec, nil
}

// PutRouterContract records the contract created for a router.
func (s *SQLiteStore) PutRouterContract(ctx context.Context, rec *RouterContract) error {
	query := `
		INSERT INTO router_contracts (router_id, tenant_id, contract_id, filter_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(router_id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			contract_id = excluded.contract_id,
			filter_id = excluded.filter_id
	`

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, query, rec.RouterID, rec.TenantID, rec.ContractID, rec.FilterID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to put router contract: %w", err)
	}

	return nil
}

// DeleteRouterContract removes the contract record for a router.
func (s *SQLiteStore) DeleteRouterContract(ctx context.Context, routerID string) error {
	if _, err := s.exec(ctx, `DELETE FROM router_contracts WHERE router_id = ?`, routerID); err != nil {
		return fmt.Errorf("failed to delete router contract: %w", err)
	}
	return nil
}

const hostLinkColumns = `host, ifname, ifmac, switch_id, module, port, updated_at`

// GetHostLink returns one host interface link.
func (s *SQLiteStore) GetHostLink(ctx context.Context, host, ifname string) (*HostLink, error) {
	query := `SELECT ` + hostLinkColumns + ` FROM host_links WHERE host = ? AND ifname = ?`

	link := &HostLink{}
	err := s.db.QueryRowContext(ctx, query, host, ifname).Scan(
		&link.Host,
		&link.Ifname,
		&link.Ifmac,
		&link.SwitchID,
		&link.Module,
		&link.Port,
		&link.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("host link %s/%s: %w", host, ifname, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get host link: %w", err)
	}

	return link, nil
}

// PutHostLink inserts or replaces a host interface link.
func (s *SQLiteStore) PutHostLink(ctx context.Context, link *HostLink) error {
	query := `
		INSERT INTO host_links (` + hostLinkColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(host, ifname) DO UPDATE SET
			ifmac = excluded.ifmac,
			switch_id = excluded.switch_id,
			module = excluded.module,
			port = excluded.port,
			updated_at = excluded.updated_at
	`

	link.UpdatedAt = time.Now().UTC()
	_, err := s.exec(ctx, query,
		link.Host,
		link.Ifname,
		link.Ifmac,
		link.SwitchID,
		link.Module,
		link.Port,
		link.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put host link: %w", err)
	}

	return nil
}

// DeleteHostLink removes a host interface link.
func (s *SQLiteStore) DeleteHostLink(ctx context.Context, host, ifname string) error {
	if _, err := s.exec(ctx, `DELETE FROM host_links WHERE host = ? AND ifname = ?`, host, ifname); err != nil {
		return fmt.Errorf("failed to delete host link: %w", err)
	}
	return nil
}

// ListHostLinks lists every recorded link ordered by host and interface.
func (s *SQLiteStore) ListHostLinks(ctx context.Context) ([]*HostLink, error) {
	return s.queryHostLinks(ctx, `SELECT `+hostLinkColumns+` FROM host_links ORDER BY host, ifname`)
}

// ListHostLinksForHost lists the links of one host.
func (s *SQLiteStore) ListHostLinksForHost(ctx context.Context, host string) ([]*HostLink, error) {
	return s.queryHostLinks(ctx, `SELECT `+hostLinkColumns+` FROM host_links WHERE host = ? ORDER BY ifname`, host)
}

// ListHostLinksForPort lists the links ending on one switch port.
func (s *SQLiteStore) ListHostLinksForPort(ctx context.Context, switchID, module, port string) ([]*HostLink, error) {
	query := `SELECT ` + hostLinkColumns + ` FROM host_links
		WHERE switch_id = ? AND module = ? AND port = ?
		ORDER BY host, ifname`
	return s.queryHostLinks(ctx, query, switchID, module, port)
}

func (s *SQLiteStore) queryHostLinks(ctx context.Context, query string, args ...interface{}) ([]*HostLink, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list host links: %w", err)
	}
	defer rows.Close()

	links := []*HostLink{}
	for rows.Next() {
		link := &HostLink{}
		err := rows.Scan(
			&link.Host,
			&link.Ifname,
			&link.Ifmac,
			&link.SwitchID,
			&link.Module,
			&link.Port,
			&link.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan host link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating host links: %w", err)
	}

	return links, nil
}

// GetName returns the controller name mapped to a control-plane object.
func (s *SQLiteStore) GetName(ctx context.Context, neutronID, neutronType string) (string, error) {
	query := `SELECT apic_name FROM name_map WHERE neutron_id = ? AND neutron_type = ?`

	var name string
	err := s.db.QueryRowContext(ctx, query, neutronID, neutronType).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("name for %s %s: %w", neutronType, neutronID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get name: %w", err)
	}

	return name, nil
}

// PutName records the controller name of a control-plane object.
func (s *SQLiteStore) PutName(ctx context.Context, neutronID, neutronType, apicName string) error {
	query := `
		INSERT INTO name_map (neutron_id, neutron_type, apic_name)
		VALUES (?, ?, ?)
		ON CONFLICT(neutron_id, neutron_type) DO UPDATE SET apic_name = excluded.apic_name
	`

	if _, err := s.exec(ctx, query, neutronID, neutronType, apicName); err != nil {
		return fmt.Errorf("failed to put name: %w", err)
	}
	return nil
}

// DeleteName removes a name mapping.
func (s *SQLiteStore) DeleteName(ctx context.Context, neutronID, neutronType string) error {
	query := `DELETE FROM name_map WHERE neutron_id = ? AND neutron_type = ?`
	if _, err := s.exec(ctx, query, neutronID, neutronType); err != nil {
		return fmt.Errorf("failed to delete name: %w", err)
	}
	return nil
}

// GetKey returns a persisted configuration value.
func (s *SQLiteStore) GetKey(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM key_map WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("key %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	return value, nil
}

// PutKey persists a configuration value.
func (s *SQLiteStore) PutKey(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO key_map (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to put key: %w", err)
	}
	return nil
}

// CreateAuditEntry creates a new audit log entry
func (s *SQLiteStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	query := `
		INSERT INTO audit (action, actor, target_id, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	result, err := s.exec(ctx, query,
		entry.Action,
		entry.Actor,
		entry.TargetID,
		entry.Details,
		entry.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	// Get the auto-generated ID
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry ID: %w", err)
	}

	entry.ID = id
	return nil
}

// ListAuditEntries lists audit entries with an optional action filter and pagination
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, action *string, limit, offset int) ([]*AuditEntry, error) {
	query := `
		SELECT id, action, actor, target_id, details, timestamp
		FROM audit
		WHERE (? IS NULL OR action = ?)
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, action, action, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry := &AuditEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.Actor,
			&entry.TargetID,
			&entry.Details,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// recordTables are wiped by Clean. The audit trail is kept.
var recordTables = []string{
	"network_epgs",
	"port_profiles",
	"router_contracts",
	"host_links",
	"name_map",
	"key_map",
}

// Clean removes every reconciliation record in one transaction while
// holding flushMu exclusively.
func (s *SQLiteStore) Clean(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin clean: %w", err)
	}
	for _, table := range recordTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clean: %w", err)
	}
	return nil
}
