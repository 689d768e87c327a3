package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apicsync.yaml")
	if err := os.WriteFile(path, []byte("apic: {hosts: [apic1]}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	initial, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	changes := make(chan *Config, 4)
	w := NewWatcher(path, initial, nil, func(cfg *Config) { changes <- cfg })
	w.delay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("apic: {hosts: [broken\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := w.Current(); got != initial {
		t.Error("invalid revision replaced the current configuration")
	}

	if err := os.WriteFile(path, []byte("apic: {hosts: [apic2]}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		if cfg.APIC.Hosts[0] != "apic2" {
			t.Errorf("reloaded hosts = %v", cfg.APIC.Hosts)
		}
		if w.Current() != cfg {
			t.Error("Current() is not the reloaded configuration")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after the file changed")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
