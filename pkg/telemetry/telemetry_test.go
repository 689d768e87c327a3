package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "bad exporter", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, wantErr: true},
		{name: "bad sampling", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: true},
		{name: "missing metrics address", mutate: func(c *Config) { c.Metrics.ListenAddress = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "debug").NewComponentLogger("session")

	logger.WithHost("https://apic1:443/api").WithDN("uni/tn-acme").Info("posted")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if line["component"] != "session" {
		t.Errorf("component = %v, want session", line["component"])
	}
	if line["dn"] != "uni/tn-acme" {
		t.Errorf("dn = %v, want uni/tn-acme", line["dn"])
	}
	if line["message"] != "posted" {
		t.Errorf("message = %v, want posted", line["message"])
	}
}

func TestWriterLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "warn")
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info line written at warn level: %q", buf.String())
	}
	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn line missing: %q", buf.String())
	}
}

func TestDisabledMetricsAreNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	m.RecordAPICRequest("GET", "ok", time.Millisecond)
	m.RecordFailover("a")
	m.RecordLogin("login", true)
	m.RecordReconcile("op", false, time.Millisecond)
	m.RecordRollback(true)
	m.RecordError("transient")
	m.SetHostLinks(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled handler status = %d, want 404", rec.Code)
	}
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	cfg := DefaultConfig().Metrics
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	m.RecordAPICRequest("POST", "ok", 20*time.Millisecond)
	m.RecordFailover("https://apic1:443/api")
	m.RecordRollback(false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"apicsync_apic_requests_total",
		"apicsync_apic_failovers_total",
		"apicsync_rollback_actions_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestStartOperationEnd(t *testing.T) {
	tel := Nop()
	ic := tel.StartOperation(context.Background(), "ensure_bd", "acme/net1")
	if ic.Ctx == nil || ic.Logger == nil {
		t.Fatal("StartOperation() returned incomplete context")
	}
	if FromContext(ic.Ctx) != ic.Logger {
		t.Error("operation logger not attached to context")
	}
	ic.End(errors.New("boom"))

	ctx := tel.WithContext(context.Background())
	if FromTelemetryContext(ctx) != tel {
		t.Error("FromTelemetryContext() did not return stored telemetry")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
