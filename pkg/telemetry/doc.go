// Package telemetry provides observability instrumentation for apicsync.
//
// The package combines structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus) behind a single Telemetry value
// that the session client and the reconciliation engine share.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger.WithDN("uni/tn-acme/BD-net1").Info("bridge domain created")
//	logger.WithError(err).Warn("rollback step failed")
//
// # Tracing
//
// Every controller request runs inside an "apic.<method>" client span and
// every engine operation inside a "reconcile.<operation>" span.
//
// # Metrics
//
// Metrics are exposed over HTTP at the configured path (default :9464/metrics):
//
//	apicsync_apic_requests_total{method,outcome}
//	apicsync_apic_failovers_total{from}
//	apicsync_apic_logins_total{kind,result}
//	apicsync_reconcile_operations_total{operation,result}
//	apicsync_rollback_actions_total{result}
//
// A Telemetry from Nop is safe to use in tests.
package telemetry
