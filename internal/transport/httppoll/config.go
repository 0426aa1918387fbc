package httppoll

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/osadchyi/cansat-ground/internal/transport"
)

const (
	// DefaultPollInterval is the fixed pull cadence against /data.
	DefaultPollInterval = transport.TimeDuration(time.Second)

	// DefaultRequestTimeout bounds a single HTTP call.
	DefaultRequestTimeout = transport.TimeDuration(10 * time.Second)
)

// Device endpoint paths.
const (
	connectPath = "/connect"
	dataPath    = "/data"
	cmdPath     = "/cmd"
)

// Config is the HTTP polling adapter configuration.
type Config struct {
	// Target is the device base URL. A bare host or host:port is
	// accepted and defaults to the http scheme, e.g. "192.168.0.5".
	Target string `yaml:"target" json:"target"`

	// PollInterval is the /data pull cadence (default: 1s).
	PollInterval transport.TimeDuration `yaml:"pollInterval" json:"pollInterval"`

	// RequestTimeout bounds each HTTP call (default: 10s).
	RequestTimeout transport.TimeDuration `yaml:"requestTimeout" json:"requestTimeout"`
}

func (c *Config) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Target) == "" {
		return fmt.Errorf("httppoll.Config: target must not be empty")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("httppoll.Config: poll interval must not be negative: %s", c.PollInterval)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("httppoll.Config: request timeout must not be negative: %s", c.RequestTimeout)
	}
	if _, err := c.baseURL(); err != nil {
		return err
	}
	return nil
}

// baseURL normalizes Target into an absolute http(s) URL.
func (c *Config) baseURL() (*url.URL, error) {
	target := strings.TrimSpace(c.Target)
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("httppoll.Config: invalid target %q: %w", c.Target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("httppoll.Config: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("httppoll.Config: target %q has no host", c.Target)
	}

	return u, nil
}
