package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadFromFileRego(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "frozen.rego")
	if err := os.WriteFile(path, []byte(frozenPolicy), 0o644); err != nil {
		t.Fatal(err)
	}

	policy, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("loadFromFile() error = %v", err)
	}
	if policy.Name != "frozen" {
		t.Errorf("name = %s, want frozen", policy.Name)
	}
	if policy.Rego != frozenPolicy {
		t.Error("rego content does not match")
	}
	if !policy.Enabled || policy.Severity != SeverityError {
		t.Errorf("enabled = %v, severity = %s", policy.Enabled, policy.Severity)
	}
	if policy.Metadata["source"] != path {
		t.Errorf("source = %v", policy.Metadata["source"])
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	data, err := json.Marshal(Policy{
		Name:    "json-policy",
		Rego:    "package p\n\nimport rego.v1\n\ndeny contains \"no\" if { false }\n",
		Enabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "p.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	policy, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("loadFromFile() error = %v", err)
	}
	if policy.Name != "json-policy" || policy.Severity != SeverityError {
		t.Errorf("policy = %+v", policy)
	}

	unnamed := filepath.Join(dir, "unnamed.json")
	if err := os.WriteFile(unnamed, []byte(`{"rego": "package p"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loader.loadFromFile(context.Background(), unnamed); err == nil {
		t.Error("loadFromFile() accepted a policy without a name")
	}
}

func TestLoadFromPathsDirectory(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(dir, "a.rego"):      frozenPolicy,
		filepath.Join(sub, "b.rego"):      frozenPolicy,
		filepath.Join(dir, "notes.txt"):   "not a policy",
		filepath.Join(dir, "broken.json"): "{",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	if len(policies) != 2 {
		t.Errorf("loaded %d policies, want 2", len(policies))
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("LoadFromPaths() succeeded for a missing path")
	}
}

func TestExtractDescription(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "leading block", content: "# one\n# two\npackage p\n# later", want: "one two"},
		{name: "none", content: "package p\n", want: ""},
		{name: "blank lines", content: "\n# one\n\n#\n# two\n", want: "one two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractDescription(tt.content); got != tt.want {
				t.Errorf("extractDescription() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWatchReloads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	path := filepath.Join(dir, "frozen.rego")
	if err := os.WriteFile(path, []byte(frozenPolicy), 0o644); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan []Policy, 4)
	loader := NewLoader(zerolog.Nop())
	if err := loader.Watch(ctx, []string{dir}, func(p []Policy) error {
		reloaded <- p
		return nil
	}); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	updated := "# Updated.\n" + frozenPolicy
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-reloaded:
		if len(p) != 1 || p[0].Rego != updated {
			t.Errorf("reloaded = %+v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after the policy file changed")
	}
}
