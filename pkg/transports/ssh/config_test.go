package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// writeTestKey writes a fresh unencrypted ed25519 key and returns its path.
func writeTestKey(t *testing.T) string {
	t.Helper()
	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(privKey, "")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}
	return path
}

func TestDefaultConfigForDiscovery(t *testing.T) {
	config := DefaultConfig("compute-1", "stack")

	if config.Port != 22 || config.AuthMethod != AuthMethodKey {
		t.Errorf("port/auth = %d/%s, want 22/key", config.Port, config.AuthMethod)
	}
	if config.CommandTimeout != 30*time.Second {
		t.Errorf("CommandTimeout = %v, want 30s", config.CommandTimeout)
	}
	if config.Sudo {
		t.Error("Sudo enabled by default")
	}
	if !config.StrictHostKeyChecking {
		t.Error("host keys not checked by default")
	}
}

func TestValidateAuthSelection(t *testing.T) {
	keyPath := writeTestKey(t)

	tests := []struct {
		name    string
		sock    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "password",
			modify: func(c *Config) { c.AuthMethod, c.Password = AuthMethodPassword, "secret" },
		},
		{
			name:    "password missing",
			modify:  func(c *Config) { c.AuthMethod = AuthMethodPassword },
			wantErr: "password is required",
		},
		{
			name:   "key",
			modify: func(c *Config) { c.PrivateKeyPath = keyPath },
		},
		{
			name:    "key file missing",
			modify:  func(c *Config) { c.PrivateKeyPath = filepath.Join(t.TempDir(), "absent") },
			wantErr: "private key file not found",
		},
		{
			name:   "agent",
			sock:   "/run/ssh-agent.sock",
			modify: func(c *Config) { c.AuthMethod = AuthMethodAgent },
		},
		{
			name:    "agent without socket",
			modify:  func(c *Config) { c.AuthMethod = AuthMethodAgent },
			wantErr: "SSH_AUTH_SOCK",
		},
		{
			name:    "unknown method",
			modify:  func(c *Config) { c.AuthMethod = "kerberos" },
			wantErr: "unsupported auth method",
		},
		{
			name: "no command timeout",
			modify: func(c *Config) {
				c.PrivateKeyPath = keyPath
				c.CommandTimeout = 0
			},
			wantErr: "command timeout must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SSH_AUTH_SOCK", tt.sock)
			config := DefaultConfig("compute-1", "stack")
			tt.modify(config)

			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildSSHClientConfigAuthMethods(t *testing.T) {
	t.Run("password adds keyboard-interactive", func(t *testing.T) {
		config := DefaultConfig("compute-1", "stack")
		config.AuthMethod = AuthMethodPassword
		config.Password = "secret"
		config.StrictHostKeyChecking = false

		cc, err := config.BuildSSHClientConfig()
		if err != nil {
			t.Fatalf("BuildSSHClientConfig() error = %v", err)
		}
		if cc.User != "stack" || len(cc.Auth) != 2 {
			t.Errorf("user = %s, auth methods = %d; want stack, 2", cc.User, len(cc.Auth))
		}
	})

	t.Run("key", func(t *testing.T) {
		config := DefaultConfig("compute-1", "stack")
		config.PrivateKeyPath = writeTestKey(t)
		config.StrictHostKeyChecking = false

		cc, err := config.BuildSSHClientConfig()
		if err != nil {
			t.Fatalf("BuildSSHClientConfig() error = %v", err)
		}
		if len(cc.Auth) != 1 {
			t.Errorf("auth methods = %d, want 1", len(cc.Auth))
		}
	})

	t.Run("agent socket unreachable", func(t *testing.T) {
		t.Setenv("SSH_AUTH_SOCK", filepath.Join(t.TempDir(), "agent.sock"))
		config := DefaultConfig("compute-1", "stack")
		config.AuthMethod = AuthMethodAgent

		if _, err := config.BuildSSHClientConfig(); err == nil {
			t.Error("BuildSSHClientConfig() succeeded without a running agent")
		}
	})
}

func TestHostKeyChecking(t *testing.T) {
	known, _, err := generateTestKey()
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	other, _, err := generateTestKey()
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}

	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{"compute-1:22", "192.0.2.10:22"}, known)
	if err := os.WriteFile(knownHosts, []byte(line+"\n"), 0600); err != nil {
		t.Fatalf("failed to write known_hosts: %v", err)
	}

	config := DefaultConfig("compute-1", "stack")
	config.AuthMethod = AuthMethodPassword
	config.Password = "secret"
	config.KnownHostsPath = knownHosts

	cc, err := config.BuildSSHClientConfig()
	if err != nil {
		t.Fatalf("BuildSSHClientConfig() error = %v", err)
	}
	remote := &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 22}
	if err := cc.HostKeyCallback("compute-1:22", remote, known); err != nil {
		t.Errorf("known host key rejected: %v", err)
	}
	var keyErr *knownhosts.KeyError
	if err := cc.HostKeyCallback("compute-1:22", remote, other); !errors.As(err, &keyErr) {
		t.Errorf("changed host key error = %v, want KeyError", err)
	}

	config.KnownHostsPath = filepath.Join(t.TempDir(), "missing")
	if _, err := config.BuildSSHClientConfig(); err == nil {
		t.Error("BuildSSHClientConfig() succeeded with a missing known_hosts file")
	}

	config.StrictHostKeyChecking = false
	cc, err = config.BuildSSHClientConfig()
	if err != nil {
		t.Fatalf("BuildSSHClientConfig() without checking error = %v", err)
	}
	if err := cc.HostKeyCallback("compute-1:22", remote, other); err != nil {
		t.Errorf("unchecked host key rejected: %v", err)
	}
}
