package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the controller client and the
// reconciliation engine. A disabled Metrics is a valid no-op collector.
type Metrics struct {
	config MetricsConfig

	// Controller session metrics
	apicRequests        *prometheus.CounterVec
	apicRequestDuration *prometheus.HistogramVec
	apicFailovers       *prometheus.CounterVec
	apicLogins          *prometheus.CounterVec

	// Reconciliation metrics
	reconciles        *prometheus.CounterVec
	reconcileDuration *prometheus.HistogramVec
	objectsCreated    *prometheus.CounterVec
	objectsDeleted    *prometheus.CounterVec
	rollbacks         *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// Inventory metrics
	hostLinks prometheus.Gauge

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		apicRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "apic_requests_total",
				Help:      "Total number of controller requests by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		apicRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "apic_request_duration_seconds",
				Help:      "Duration of controller requests in seconds",
				Buckets:   buckets,
			},
			[]string{"method"},
		),
		apicFailovers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "apic_failovers_total",
				Help:      "Total number of endpoint rotations after connectivity failures",
			},
			[]string{"from"},
		),
		apicLogins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "apic_logins_total",
				Help:      "Total number of session logins and refreshes",
			},
			[]string{"kind", "result"},
		),

		reconciles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_operations_total",
				Help:      "Total number of reconciliation operations",
			},
			[]string{"operation", "result"},
		),
		reconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconcile_duration_seconds",
				Help:      "Duration of reconciliation operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		objectsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "objects_created_total",
				Help:      "Total number of managed objects created by class",
			},
			[]string{"class"},
		),
		objectsDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "objects_deleted_total",
				Help:      "Total number of managed objects deleted by class",
			},
			[]string{"class"},
		),
		rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollback_actions_total",
				Help:      "Total number of compensating actions by result",
			},
			[]string{"result"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),

		hostLinks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "host_links",
				Help:      "Current number of known host uplinks",
			},
		),
	}

	registry.MustRegister(
		m.apicRequests,
		m.apicRequestDuration,
		m.apicFailovers,
		m.apicLogins,
		m.reconciles,
		m.reconcileDuration,
		m.objectsCreated,
		m.objectsDeleted,
		m.rollbacks,
		m.errorsByClass,
		m.hostLinks,
	)

	return m, nil
}

// Controller session metrics

// RecordAPICRequest records one controller request and its outcome.
func (m *Metrics) RecordAPICRequest(method, outcome string, duration time.Duration) {
	if m == nil || m.apicRequests == nil {
		return
	}
	m.apicRequests.WithLabelValues(method, outcome).Inc()
	m.apicRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordFailover records a rotation away from the given endpoint.
func (m *Metrics) RecordFailover(from string) {
	if m == nil || m.apicFailovers == nil {
		return
	}
	m.apicFailovers.WithLabelValues(from).Inc()
}

// RecordLogin records a login or refresh attempt.
func (m *Metrics) RecordLogin(kind string, ok bool) {
	if m == nil || m.apicLogins == nil {
		return
	}
	m.apicLogins.WithLabelValues(kind, resultLabel(ok)).Inc()
}

// Reconciliation metrics

// RecordReconcile records a completed reconciliation operation.
func (m *Metrics) RecordReconcile(operation string, ok bool, duration time.Duration) {
	if m == nil || m.reconciles == nil {
		return
	}
	m.reconciles.WithLabelValues(operation, resultLabel(ok)).Inc()
	m.reconcileDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordObjectCreated counts a managed object written with status created.
func (m *Metrics) RecordObjectCreated(class string) {
	if m == nil || m.objectsCreated == nil {
		return
	}
	m.objectsCreated.WithLabelValues(class).Inc()
}

// RecordObjectDeleted counts a managed object delete.
func (m *Metrics) RecordObjectDeleted(class string) {
	if m == nil || m.objectsDeleted == nil {
		return
	}
	m.objectsDeleted.WithLabelValues(class).Inc()
}

// RecordRollback records the result of one compensating action.
func (m *Metrics) RecordRollback(ok bool) {
	if m == nil || m.rollbacks == nil {
		return
	}
	m.rollbacks.WithLabelValues(resultLabel(ok)).Inc()
}

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// SetHostLinks sets the current number of known host uplinks.
func (m *Metrics) SetHostLinks(count int) {
	if m == nil || m.hostLinks == nil {
		return
	}
	m.hostLinks.Set(float64(count))
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Registry returns the underlying registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. Serve errors
// are reported through the returned channel.
func (m *Metrics) StartMetricsServer() <-chan error {
	errCh := make(chan error, 1)
	if !m.config.Enabled {
		close(errCh)
		return errCh
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		defer close(errCh)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return errCh
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
