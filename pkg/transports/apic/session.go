package apic

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/noironetworks/neutron/pkg/telemetry"
)

// CookieName is the session cookie the controller expects.
const CookieName = "APIC-cookie"

const (
	loginPath   = "/aaaLogin.json"
	refreshPath = "/aaaRefresh.json"
	logoutPath  = "/aaaLogout.json"
)

var errTooManyRedirects = errors.New("too many redirects")

// Session is an authenticated HTTP session against a ring of equivalent
// controller endpoints. It is safe for concurrent use.
type Session struct {
	client       *http.Client
	loginTimeout time.Duration
	now          func() time.Time
	tel          *telemetry.Telemetry
	logger       *telemetry.Logger

	// authMu serializes login, refresh and logout.
	authMu sync.Mutex

	mu         sync.Mutex
	bases      []string
	pos        int
	token      string
	deadline   time.Time
	timeout    time.Duration
	username   string
	password   string
	loggedIn   bool
	generation uint64
}

// NewSession creates an unauthenticated session.
func NewSession(cfg *Config, tel *telemetry.Telemetry) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid apic config: %w", err)
	}
	if tel == nil {
		tel = telemetry.Nop()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = newHTTPClient(cfg)
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	loginTimeout := cfg.LoginTimeout
	if loginTimeout <= 0 {
		loginTimeout = DefaultLoginTimeout
	}

	return &Session{
		client:       client,
		loginTimeout: loginTimeout,
		now:          now,
		tel:          tel,
		logger:       tel.Logger.NewComponentLogger("apic-session"),
		bases:        cfg.BaseURLs(),
		username:     cfg.Username,
		password:     cfg.Password,
	}, nil
}

// Connect creates a session and logs in with the configured credentials.
func Connect(ctx context.Context, cfg *Config, tel *telemetry.Telemetry) (*Session, error) {
	s, err := NewSession(cfg, tel)
	if err != nil {
		return nil, err
	}
	if cfg.Username != "" && cfg.Password != "" {
		if err := s.Login(ctx, cfg.Username, cfg.Password); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newHTTPClient(cfg *Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.UseSSL && cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // lab controllers use self-signed certificates
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}
}

// Login authenticates with the controller. Empty arguments reuse the
// credentials of the last successful login.
func (s *Session) Login(ctx context.Context, user, password string) error {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.loginLocked(ctx, user, password)
}

// Refresh extends the session, falling back to a full login when the
// controller reports the token as expired.
func (s *Session) Refresh(ctx context.Context) error {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	if !s.LoggedIn() {
		return ErrNotAuthenticated
	}
	return s.refreshLocked(ctx)
}

// Logout ends the session. Local state is cleared even when the controller
// cannot be told.
func (s *Session) Logout(ctx context.Context) {
	s.authMu.Lock()
	defer s.authMu.Unlock()

	s.mu.Lock()
	loggedIn, user := s.loggedIn, s.username
	s.mu.Unlock()

	if loggedIn && user != "" {
		body, err := userBody(user, "")
		if err == nil {
			_, err = s.do(ctx, http.MethodPost, logoutPath, body, true, 0)
		}
		if err != nil {
			s.logger.WithError(err).Warn("apic logout failed, clearing local session")
		}
	}

	s.mu.Lock()
	s.token = ""
	s.loggedIn = false
	s.deadline = time.Time{}
	s.username = ""
	s.password = ""
	s.generation++
	s.mu.Unlock()
}

// Get issues a GET for path, relative to the API base.
func (s *Session) Get(ctx context.Context, path string) ([]Envelope, error) {
	if err := s.checkSession(ctx); err != nil {
		return nil, err
	}
	return s.send(ctx, http.MethodGet, path, nil)
}

// Post issues a POST of body to path, relative to the API base.
func (s *Session) Post(ctx context.Context, path string, body []byte) ([]Envelope, error) {
	if err := s.checkSession(ctx); err != nil {
		return nil, err
	}
	return s.send(ctx, http.MethodPost, path, body)
}

// LoggedIn reports whether the session holds a token.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// CurrentBase returns the endpoint the next request will use.
func (s *Session) CurrentBase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bases[s.pos]
}

// Deadline returns the time after which the next request refreshes first.
func (s *Session) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

func (s *Session) checkSession(ctx context.Context) error {
	if loggedIn, expired := s.state(); !loggedIn {
		return ErrNotAuthenticated
	} else if !expired {
		return nil
	}

	s.authMu.Lock()
	defer s.authMu.Unlock()
	loggedIn, expired := s.state()
	if !loggedIn {
		return ErrNotAuthenticated
	}
	if !expired {
		return nil
	}
	s.logger.Debug("apic session deadline passed, refreshing")
	return s.refreshLocked(ctx)
}

func (s *Session) state() (loggedIn, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn, s.now().After(s.deadline)
}

func (s *Session) send(ctx context.Context, method, path string, body []byte) ([]Envelope, error) {
	ctx, span := s.tel.Tracer.StartRequestSpan(ctx, method, path)
	defer span.End()
	timer := telemetry.NewTimer()

	gen := s.currentGeneration()
	rep, err := s.do(ctx, method, path, body, true, 0)
	if err == nil && rep.status != http.StatusOK {
		if code, text := errorDetails(rep.imdata); isTokenInvalid(code, text) {
			s.logger.Debug("apic token was invalid, logging in again")
			if err = s.relogin(ctx, gen); err == nil {
				rep, err = s.do(ctx, method, path, body, true, 0)
			}
		}
	}

	if err != nil {
		outcome := "error"
		var noResponse *HostNoResponseError
		if errors.As(err, &noResponse) {
			outcome = "no_response"
		}
		s.tel.Metrics.RecordAPICRequest(method, outcome, timer.Duration())
		telemetry.RecordError(span, err)
		return nil, err
	}

	if rep.status != http.StatusOK {
		code, text := errorDetails(rep.imdata)
		rejected := &RemoteRejectedError{
			Request: describeRequest(path, body),
			Status:  rep.status,
			Reason:  rep.reason,
			Code:    code,
			Text:    text,
		}
		s.tel.Metrics.RecordAPICRequest(method, "rejected", timer.Duration())
		telemetry.RecordError(span, rejected)
		return nil, rejected
	}

	s.tel.Metrics.RecordAPICRequest(method, "ok", timer.Duration())
	telemetry.RecordSuccess(span)
	return rep.imdata, nil
}

// relogin logs in again unless another caller already renewed the token
// since generation gen was observed.
func (s *Session) relogin(ctx context.Context, gen uint64) error {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	if s.currentGeneration() != gen {
		return nil
	}
	return s.loginLocked(ctx, "", "")
}

func (s *Session) loginLocked(ctx context.Context, user, password string) error {
	s.mu.Lock()
	if user == "" {
		user = s.username
	}
	if password == "" {
		password = s.password
	}
	s.token = ""
	s.mu.Unlock()

	body, err := userBody(user, password)
	if err != nil {
		return err
	}

	rep, err := s.do(ctx, http.MethodPost, loginPath, body, false, s.loginTimeout)
	if err != nil {
		s.clearAuth()
		s.tel.Metrics.RecordLogin("login", false)
		return err
	}

	if rep.status != http.StatusOK {
		s.clearAuth()
		s.tel.Metrics.RecordLogin("login", false)
		code, text := errorDetails(rep.imdata)
		return &AuthenticationFailedError{User: user, Status: rep.status, Code: code, Text: text}
	}

	if err := s.saveToken(rep.imdata); err != nil {
		s.clearAuth()
		s.tel.Metrics.RecordLogin("login", false)
		return &AuthenticationFailedError{User: user, Status: rep.status, Text: err.Error()}
	}

	s.mu.Lock()
	s.username = user
	s.password = password
	s.loggedIn = true
	timeout := s.timeout
	s.mu.Unlock()

	s.tel.Metrics.RecordLogin("login", true)
	s.logger.WithField("user", user).Debugf("apic session will be refreshed in %s", timeout)
	return nil
}

func (s *Session) refreshLocked(ctx context.Context) error {
	rep, err := s.do(ctx, http.MethodGet, refreshPath, nil, true, 0)
	if err != nil {
		s.tel.Metrics.RecordLogin("refresh", false)
		return err
	}

	if rep.status == http.StatusOK {
		if err := s.saveToken(rep.imdata); err != nil {
			s.clearAuth()
			s.tel.Metrics.RecordLogin("refresh", false)
			return &AuthenticationFailedError{User: s.currentUser(), Status: rep.status, Text: err.Error()}
		}
		s.tel.Metrics.RecordLogin("refresh", true)
		return nil
	}

	code, text := errorDetails(rep.imdata)
	if isTokenInvalid(code, text) {
		s.logger.Debug("apic session timed out, logging in again")
		return s.loginLocked(ctx, "", "")
	}

	s.clearAuth()
	s.tel.Metrics.RecordLogin("refresh", false)
	return &RemoteRejectedError{
		Request: refreshPath,
		Status:  rep.status,
		Reason:  rep.reason,
		Code:    code,
		Text:    text,
	}
}

// saveToken stores the token and session timeout of a login or refresh reply.
func (s *Session) saveToken(imdata []Envelope) error {
	if len(imdata) == 0 {
		return errors.New("empty login response")
	}
	attrs, ok := imdata[0].AttributesOf("aaaLogin")
	if !ok {
		return errors.New("login response carries no aaaLogin object")
	}
	token := attrs["token"]
	if token == "" {
		return errors.New("login response carries no token")
	}
	secs, err := strconv.Atoi(attrs["refreshTimeoutSeconds"])
	if err != nil {
		return fmt.Errorf("invalid refreshTimeoutSeconds %q", attrs["refreshTimeoutSeconds"])
	}
	timeout := time.Duration(secs)*time.Second - RefreshMargin
	if timeout < 0 {
		timeout = 0
	}

	s.mu.Lock()
	s.token = token
	s.timeout = timeout
	s.deadline = s.now().Add(timeout)
	s.generation++
	s.mu.Unlock()
	return nil
}

func (s *Session) clearAuth() {
	s.mu.Lock()
	s.token = ""
	s.loggedIn = false
	s.deadline = time.Time{}
	s.mu.Unlock()
}

func (s *Session) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Session) currentUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

func (s *Session) endpoint() (base, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bases[s.pos], s.token
}

// rotate advances the ring past base unless another caller already did.
func (s *Session) rotate(base string) {
	s.mu.Lock()
	if s.bases[s.pos] == base {
		s.pos = (s.pos + 1) % len(s.bases)
	}
	next := s.bases[s.pos]
	s.mu.Unlock()

	s.tel.Metrics.RecordFailover(base)
	s.logger.WithHost(next).Debug("new controller address")
}

func (s *Session) extendDeadline() {
	s.mu.Lock()
	s.deadline = s.now().Add(s.timeout)
	s.mu.Unlock()
}

type reply struct {
	status int
	reason string
	imdata []Envelope
}

type malformedBodyError struct {
	err error
}

func (e *malformedBodyError) Error() string {
	return "malformed response body: " + e.err.Error()
}

func (e *malformedBodyError) Unwrap() error {
	return e.err
}

// do runs one exchange, trying each endpoint at most once. Connectivity
// failures rotate the ring; a completed exchange extends the deadline.
// A positive timeout bounds each attempt, and an attempt that runs past it
// counts as a connectivity failure. Only cancellation of ctx itself stops
// the walk early.
func (s *Session) do(ctx context.Context, method, path string, body []byte, withCookie bool, timeout time.Duration) (*reply, error) {
	s.mu.Lock()
	attempts := len(s.bases)
	s.mu.Unlock()

	var (
		lastErr error
		lastURL string
	)
	for i := 0; i < attempts; i++ {
		base, token := s.endpoint()
		if !withCookie {
			token = ""
		}
		lastURL = base + path

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		rep, err := s.roundTrip(attemptCtx, method, lastURL, body, token)
		cancel()
		if err == nil {
			s.extendDeadline()
			return rep, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("apic %s %s: %w", method, path, ctxErr)
		}
		var malformed *malformedBodyError
		if errors.As(err, &malformed) {
			return nil, &HostNoResponseError{URL: lastURL, Err: err}
		}

		lastErr = err
		s.logger.WithHost(base).WithError(err).Debug("controller unreachable, falling back to a new address")
		s.rotate(base)
	}
	return nil, &HostNoResponseError{URL: lastURL, Err: lastErr}
}

func (s *Session) roundTrip(ctx context.Context, method, url string, body []byte, token string) (*reply, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &malformedBodyError{err: err}
	}
	return &reply{
		status: resp.StatusCode,
		reason: http.StatusText(resp.StatusCode),
		imdata: r.ImData,
	}, nil
}

func describeRequest(path string, body []byte) string {
	if body == nil {
		return path
	}
	return path + ", data=" + string(body)
}
