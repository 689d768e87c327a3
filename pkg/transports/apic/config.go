package apic

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultPort is the controller port used when none is configured.
	DefaultPort = 80

	// DefaultLoginTimeout bounds each login attempt against one controller.
	DefaultLoginTimeout = 10 * time.Second

	// RefreshMargin is subtracted from the server session timeout so the
	// client renews before the server expires the token.
	RefreshMargin = 5 * time.Second

	// DefaultMaxRedirects is the redirect limit before a request counts as
	// a connectivity failure.
	DefaultMaxRedirects = 10
)

// Config holds controller session configuration.
type Config struct {
	// Hosts are equivalent controller addresses, tried in order. An entry
	// of the form host:port overrides Port for that host.
	Hosts []string `yaml:"hosts" json:"hosts" validate:"required,min=1,dive,hostname_port|hostname_rfc1123|ip"`

	// Port is the controller HTTP(S) port.
	Port int `yaml:"port" json:"port" validate:"omitempty,min=1,max=65535"`

	// UseSSL selects https.
	UseSSL bool `yaml:"use_ssl" json:"use_ssl"`

	// InsecureSkipVerify disables certificate verification for https.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`

	// Username and Password are used for the initial login.
	Username string `yaml:"username" json:"username" validate:"required"`
	Password string `yaml:"password" json:"password"`

	// LoginTimeout bounds each login attempt; a controller that does not
	// answer in time is skipped for the next one.
	LoginTimeout time.Duration `yaml:"login_timeout" json:"login_timeout"`

	// RequestTimeout bounds other requests; zero means no client-side bound.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// MaxRedirects is the redirect limit per request.
	MaxRedirects int `yaml:"max_redirects" json:"max_redirects"`

	// HTTPClient overrides the HTTP client built from this config.
	HTTPClient *http.Client `yaml:"-" json:"-"`

	// Clock overrides time.Now.
	Clock func() time.Time `yaml:"-" json:"-"`
}

// DefaultConfig returns a Config with defaults for the given hosts.
func DefaultConfig(hosts ...string) *Config {
	return &Config{
		Hosts:        hosts,
		Port:         DefaultPort,
		Username:     "admin",
		LoginTimeout: DefaultLoginTimeout,
		MaxRedirects: DefaultMaxRedirects,
	}
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if len(c.Hosts) == 0 {
		return fmt.Errorf("at least one controller host is required")
	}
	for _, h := range c.Hosts {
		if h == "" {
			return fmt.Errorf("controller host must not be empty")
		}
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.LoginTimeout < 0 || c.RequestTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// BaseURLs returns the API base URL of every configured host.
func (c *Config) BaseURLs() []string {
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	bases := make([]string, len(c.Hosts))
	for i, h := range c.Hosts {
		if _, _, err := net.SplitHostPort(h); err == nil {
			bases[i] = fmt.Sprintf("%s://%s/api", scheme, h)
			continue
		}
		bases[i] = fmt.Sprintf("%s://%s/api", scheme, net.JoinHostPort(h, strconv.Itoa(port)))
	}
	return bases
}
