package engine

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/noironetworks/neutron/pkg/mo"
	"github.com/noironetworks/neutron/pkg/stores"
	"github.com/noironetworks/neutron/pkg/telemetry"
)

// Manager reconciles control-plane resources onto the fabric controller.
// Every Ensure method can be called repeatedly with the same arguments:
// objects that already exist with the wanted attributes are not written.
type Manager struct {
	client   *mo.Client
	store    stores.Store
	cfg      Config
	names    *NameMapper
	segments SegmentSource
	lookup   NameLookup
	admit    Admitter
	tel      *telemetry.Telemetry
	logger   *telemetry.Logger
	newID    func() string
}

// Admitter decides whether an operation may run. A non-nil error denies it.
type Admitter interface {
	Admit(ctx context.Context, operation, key string) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithTelemetry sets the telemetry used for logs, spans and metrics.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(m *Manager) { m.tel = tel }
}

// WithSegmentSource sets where host VLAN segments come from.
func WithSegmentSource(src SegmentSource) Option {
	return func(m *Manager) { m.segments = src }
}

// WithNameLookup sets the display name lookup used by the name mapper.
func WithNameLookup(lookup NameLookup) Option {
	return func(m *Manager) { m.lookup = lookup }
}

// WithAdmission sets the check run before every operation.
func WithAdmission(a Admitter) Option {
	return func(m *Manager) { m.admit = a }
}

// WithIDGenerator replaces the generator of opaque profile names.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// NewManager creates a reconciliation manager.
func NewManager(client *mo.Client, store stores.Store, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		client: client,
		store:  store,
		cfg:    cfg.withDefaults(),
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tel == nil {
		m.tel = telemetry.Nop()
	}
	m.logger = m.tel.Logger.NewComponentLogger("engine")
	m.names = NewNameMapper(store, m.cfg.NameMapping, m.lookup, m.logger)
	return m
}

// Names returns the manager's name mapper.
func (m *Manager) Names() *NameMapper {
	return m.names
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// run executes one reconciliation operation. On failure the undo stack
// is replayed newest first and the original error is returned unchanged.
func (m *Manager) run(ctx context.Context, op, key string, fn func(ctx context.Context, u *undoStack) error) (err error) {
	ic := m.tel.StartOperation(ctx, op, key)
	defer func() { ic.End(err) }()

	if m.admit != nil {
		if denied := m.admit.Admit(ic.Ctx, op, key); denied != nil {
			ic.Logger.WithError(denied).Warn("operation denied")
			return NewPermanentError("operation denied", denied).
				WithCode(ErrCodePolicyDenied).
				WithOperation(op).
				WithResource(key)
		}
	}

	u := &undoStack{}
	err = fn(ic.Ctx, u)
	if err == nil {
		return nil
	}

	class := Classify(err)
	m.tel.Metrics.RecordError(string(class))
	ic.Logger.WithError(err).
		WithField("error_class", string(class)).
		WithField("error_code", CodeOf(err)).
		Error("reconcile failed")
	m.rollback(ic.Ctx, op, key, u, err, ic.Logger)
	return err
}

// ensure makes sure one object exists with attrs. It writes only when the
// object is missing or an attribute differs, and registers a delete for
// objects that did not exist before the call.
func (m *Manager) ensure(ctx context.Context, u *undoStack, class string, attrs mo.Attributes, values ...string) error {
	acc := m.client.MO(class)
	current, found, err := acc.Get(ctx, values...)
	if err != nil {
		return err
	}
	if found {
		if matches(current, attrs) {
			return nil
		}
		return acc.Update(ctx, attrs, values...)
	}

	if err := acc.Create(ctx, attrs, values...); err != nil {
		return err
	}
	dn, _ := acc.FullName(values...)
	u.push("delete "+dn, func(ctx context.Context) error {
		return acc.Delete(ctx, values...)
	})
	return nil
}

// exists reports whether an object is present on the controller.
func (m *Manager) exists(ctx context.Context, class string, values ...string) (bool, error) {
	_, found, err := m.client.MO(class).Get(ctx, values...)
	return found, err
}

// dn returns the distinguished name of an object.
func (m *Manager) dn(class string, values ...string) (string, error) {
	return m.client.MO(class).FullName(values...)
}

// remove deletes an object; absent objects are not an error.
func (m *Manager) remove(ctx context.Context, class string, values ...string) error {
	return m.client.MO(class).Delete(ctx, values...)
}

func matches(current, want mo.Attributes) bool {
	for k, v := range want {
		if k == "status" {
			continue
		}
		if current[k] != v {
			return false
		}
	}
	return true
}

func (m *Manager) audit(ctx context.Context, action, target string, details interface{}) {
	entry := &stores.AuditEntry{Action: action, Actor: "engine"}
	if target != "" {
		entry.TargetID = &target
	}
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			s := string(b)
			entry.Details = &s
		}
	}
	if err := m.store.CreateAuditEntry(ctx, entry); err != nil {
		m.logger.WithError(err).Warn("failed to write audit entry")
	}
}
