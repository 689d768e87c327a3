package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// testSSHServer is a minimal SSH server answering canned commands.
type testSSHServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	addr     string
	done     chan struct{}

	mu       sync.Mutex
	commands []string
	outputs  map[string]string
}

func newTestSSHServer(t *testing.T) *testSSHServer {
	t.Helper()
	_, hostKey, err := generateTestKey()
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "testuser" && string(pass) == "testpass" {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid credentials")
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, pubKey ssh.PublicKey) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	config.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	server := &testSSHServer{
		listener: listener,
		config:   config,
		addr:     listener.Addr().String(),
		done:     make(chan struct{}),
		outputs:  map[string]string{"echo test": "test\n"},
	}
	go server.serve()
	t.Cleanup(server.close)
	return server
}

func (s *testSSHServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}
		go s.handleConnection(conn)
	}
}

func (s *testSSHServer) handleConnection(netConn net.Conn) {
	defer netConn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go s.handleChannel(channel, requests)
	}
}

func (s *testSSHServer) handleChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}

		command := string(req.Payload[4:])
		if req.WantReply {
			req.Reply(true, nil)
		}

		s.mu.Lock()
		s.commands = append(s.commands, command)
		output, ok := s.outputs[command]
		s.mu.Unlock()

		switch {
		case command == "sleep":
			channel.Write([]byte("partial\n"))
			_, _ = io.Copy(io.Discard, channel)
		case command == "true":
			channel.SendRequest("exit-status", false, []byte{0, 0, 0, 0})
		case command == "exit 1":
			channel.Stderr().Write([]byte("failed\n"))
			channel.SendRequest("exit-status", false, []byte{0, 0, 0, 1})
		case ok:
			channel.Write([]byte(output))
			channel.SendRequest("exit-status", false, []byte{0, 0, 0, 0})
		default:
			channel.Write([]byte("command: " + command + "\n"))
			channel.SendRequest("exit-status", false, []byte{0, 0, 0, 0})
		}
		return
	}
}

func (s *testSSHServer) lastCommand() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.commands) == 0 {
		return ""
	}
	return s.commands[len(s.commands)-1]
}

func (s *testSSHServer) close() {
	close(s.done)
	s.listener.Close()
}

func generateTestKey() (ssh.PublicKey, ssh.Signer, error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	signer, err := ssh.NewSignerFromKey(privKey)
	if err != nil {
		return nil, nil, err
	}
	publicKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return nil, nil, err
	}
	return publicKey, signer, nil
}

// passwordConfig returns a client config for the test server.
func passwordConfig(t *testing.T, server *testSSHServer) *Config {
	t.Helper()
	host, portStr, err := net.SplitHostPort(server.addr)
	if err != nil {
		t.Fatalf("bad server address %s: %v", server.addr, err)
	}
	port, _ := strconv.Atoi(portStr)

	config := DefaultConfig(host, "testuser")
	config.Port = port
	config.AuthMethod = AuthMethodPassword
	config.Password = "testpass"
	config.StrictHostKeyChecking = false
	config.ConnectionTimeout = 5 * time.Second
	return config
}

func TestClientConnect(t *testing.T) {
	server := newTestSSHServer(t)
	config := passwordConfig(t, server)

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Disconnect()

	if !client.IsConnected() {
		t.Error("expected client to be connected")
	}
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("health check failed: %v", err)
	}

	info := client.GetConnectionInfo()
	if info.Host != config.Host || info.User != "testuser" || info.ViaProxy {
		t.Errorf("unexpected connection info: %+v", info)
	}

	// A second Connect reuses the live connection.
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if got := client.GetConnectionInfo().ConnectedAt; !got.Equal(info.ConnectedAt) {
		t.Errorf("connection was replaced: %v != %v", got, info.ConnectedAt)
	}
}

func TestClientWrongPassword(t *testing.T) {
	server := newTestSSHServer(t)
	config := passwordConfig(t, server)
	config.Password = "wrong"

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	err = client.Connect(context.Background())
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Op != "connect" {
		t.Fatalf("expected connect TransportError, got %v", err)
	}
	if client.IsConnected() {
		t.Error("client connected with a wrong password")
	}
}

func TestClientDisconnect(t *testing.T) {
	server := newTestSSHServer(t)
	client, err := NewClient(passwordConfig(t, server))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := client.Disconnect(); err != nil {
		t.Errorf("disconnect failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected client to be disconnected")
	}
	if err := client.Disconnect(); err != nil {
		t.Errorf("second disconnect failed: %v", err)
	}
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("health check succeeded on a closed client")
	}
}

func TestClientRun(t *testing.T) {
	server := newTestSSHServer(t)
	client, err := NewClient(passwordConfig(t, server))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Disconnect()
	ctx := context.Background()

	t.Run("connects on demand", func(t *testing.T) {
		out, err := client.Run(ctx, "echo test")
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if out != "test" {
			t.Errorf("Run() = %q, want test", out)
		}
		if !client.IsConnected() {
			t.Error("Run() did not leave the client connected")
		}
	})

	t.Run("non-zero exit", func(t *testing.T) {
		_, err := client.Run(ctx, "exit 1")
		var terr *TransportError
		if !errors.As(err, &terr) {
			t.Fatalf("expected TransportError, got %v", err)
		}
		if terr.ExitStatus != 1 || terr.Stderr != "failed" || terr.Temporary() {
			t.Errorf("unexpected error details: %+v", terr)
		}
	})
}

func TestClientRunTimeout(t *testing.T) {
	server := newTestSSHServer(t)
	client, err := NewClient(passwordConfig(t, server))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.Run(ctx, "sleep")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want DeadlineExceeded", err)
	}
	var terr *TransportError
	if !errors.As(err, &terr) || !terr.Temporary() {
		t.Errorf("Run() error = %v, want temporary TransportError", err)
	}
	if elapsed := time.Since(start); elapsed > killGrace {
		t.Errorf("Run() took %v after the deadline", elapsed)
	}

	if out, err := client.Run(context.Background(), "echo test"); err != nil || out != "test" {
		t.Errorf("Run() after timeout = %q, %v", out, err)
	}
}

func TestClientRunWithSudo(t *testing.T) {
	server := newTestSSHServer(t)
	config := passwordConfig(t, server)
	config.Sudo = true

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Disconnect()

	if _, err := client.Run(context.Background(), "lldpctl -f keyvalue"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := server.lastCommand(); got != "sudo -n lldpctl -f keyvalue" {
		t.Errorf("server ran %q", got)
	}
}

func TestClientKeyBasedAuth(t *testing.T) {
	server := newTestSSHServer(t)
	config := passwordConfig(t, server)

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	pemBlock, err := ssh.MarshalPrivateKey(privKey, "")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "test_key")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(pemBlock), 0600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	config.AuthMethod = AuthMethodKey
	config.Password = ""
	config.PrivateKeyPath = keyPath

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect with key auth: %v", err)
	}
	defer client.Disconnect()
}
