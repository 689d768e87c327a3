package apic

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned by requests issued before any login succeeded.
var ErrNotAuthenticated = errors.New("apic session not logged in")

// Codes and messages the controller uses for expired sessions.
const (
	codeForbidden    = "403"
	tokenInvalidText = "token was invalid"
	unknownErrorCode = "[code for APIC error not found]"
	unknownErrorText = "[text for APIC error not found]"
)

// AuthenticationFailedError is returned when the controller rejects a login.
type AuthenticationFailedError struct {
	User   string
	Status int
	Code   string
	Text   string
}

func (e *AuthenticationFailedError) Error() string {
	return fmt.Sprintf("apic login for %q failed: status %d, code %s: %s", e.User, e.Status, e.Code, e.Text)
}

// RemoteRejectedError is returned for non-OK controller responses.
type RemoteRejectedError struct {
	// Request is the request path and, for writes, its body.
	Request string
	Status  int
	Reason  string
	Code    string
	Text    string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("apic rejected %s: %d %s, code %s: %s", e.Request, e.Status, e.Reason, e.Code, e.Text)
}

// TokenInvalid reports whether the rejection is an expired-session response.
func (e *RemoteRejectedError) TokenInvalid() bool {
	return isTokenInvalid(e.Code, e.Text)
}

// HostNoResponseError is returned when no controller endpoint produced a
// usable response.
type HostNoResponseError struct {
	URL string
	Err error
}

func (e *HostNoResponseError) Error() string {
	return fmt.Sprintf("no response from apic at %s: %v", e.URL, e.Err)
}

func (e *HostNoResponseError) Unwrap() error {
	return e.Err
}

// Temporary reports that another attempt may succeed.
func (e *HostNoResponseError) Temporary() bool {
	return true
}

// IsRejected reports whether err carries a controller rejection and returns it.
func IsRejected(err error) (*RemoteRejectedError, bool) {
	var rejected *RemoteRejectedError
	if errors.As(err, &rejected) {
		return rejected, true
	}
	return nil, false
}
