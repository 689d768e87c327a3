// Package ssh runs commands on compute hosts over SSH. Topology discovery
// uses it to read LLDP neighbours and interface addresses.
package ssh

import (
	"context"
	"time"
)

// Runner executes one command and returns its trimmed standard output.
type Runner interface {
	Run(ctx context.Context, cmd string) (string, error)
}

// Transport is a Runner with an explicit connection lifecycle.
type Transport interface {
	Runner

	// Connect establishes the connection, reusing a live one.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. It is safe to call twice.
	Disconnect() error

	IsConnected() bool

	// HealthCheck verifies the connection is still alive and responsive.
	HealthCheck(ctx context.Context) error

	GetConnectionInfo() ConnectionInfo
}

// ConnectionInfo contains details about an active SSH connection.
type ConnectionInfo struct {
	Host         string
	Port         int
	User         string
	ConnectedAt  time.Time
	LastActivity time.Time
	ViaProxy     bool
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "run")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool

	// ExitStatus is the remote exit code when the command ran and failed.
	ExitStatus int

	// Stderr holds the command's error output, if any.
	Stderr string
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
