package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// killGrace bounds the wait for a killed command to release its output.
const killGrace = 5 * time.Second

// Run executes cmd on the remote host and returns its trimmed stdout.
// A non-zero exit is reported as a *TransportError carrying the exit
// status and stderr.
func (c *Client) Run(ctx context.Context, cmd string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
	}

	client, err := c.getClient(ctx)
	if err != nil {
		return "", err
	}

	finalCmd := cmd
	if c.config.Sudo {
		finalCmd = "sudo -n " + cmd
	}

	startTime := time.Now()
	log.Debug().Str("host", c.config.Host).Str("command", finalCmd).Msg("executing command")

	session, err := client.NewSession()
	if err != nil {
		return "", &TransportError{
			Op:          "run",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	done := make(chan error, 1)
	go func() {
		done <- session.Run(finalCmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		execErr = ctx.Err()
		// The buffers are owned by session.Run until it returns.
		select {
		case <-done:
		case <-time.After(killGrace):
			c.touch()
			return "", &TransportError{Op: "run", Err: execErr, IsTemporary: true}
		}
	case execErr = <-done:
	}
	c.touch()

	stdout := strings.TrimSpace(stdoutBuf.String())
	stderr := strings.TrimSpace(stderrBuf.String())

	log.Debug().
		Str("host", c.config.Host).
		Str("command", finalCmd).
		Int("stdout_len", len(stdout)).
		Dur("duration", time.Since(startTime)).
		Err(execErr).
		Msg("command completed")

	if execErr == nil {
		return stdout, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(execErr, &exitErr) {
		return stdout, &TransportError{
			Op:         "run",
			Err:        fmt.Errorf("%s exited with code %d: %s", cmd, exitErr.ExitStatus(), stderr),
			ExitStatus: exitErr.ExitStatus(),
			Stderr:     stderr,
		}
	}
	return stdout, &TransportError{
		Op:          "run",
		Err:         execErr,
		IsTemporary: true,
		Stderr:      stderr,
	}
}
