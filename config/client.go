// Package config loads settings for the kanban-sync CLI and the relay.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	ProfileEnv      = "KANBAN_PROFILE"
	profileFileName = ".kanban-sync.yaml"

	DefaultAPIURL              = "http://localhost:5000/api"
	DefaultRequestTimeout      = 15 * time.Second
	DefaultReconnectMaxBackoff = 5 * time.Second
)

// Client is the CLI configuration. Values come from the profile file and are
// overridden by the environment.
type Client struct {
	APIURL              string        `yaml:"api_url,omitempty" env:"API_URL"`
	RealtimeURL         string        `yaml:"realtime_url,omitempty" env:"REALTIME_URL"`
	RequestTimeout      time.Duration `yaml:"request_timeout,omitempty" env:"REQUEST_TIMEOUT"`
	ReconnectMaxBackoff time.Duration `yaml:"reconnect_max_backoff,omitempty" env:"RECONNECT_MAX_BACKOFF"`
	Debug               bool          `yaml:"debug,omitempty" env:"DEBUG"`
	Token               string        `yaml:"token,omitempty" env:"KANBAN_TOKEN"`

	path string
}

// ProfilePath returns $KANBAN_PROFILE, or ~/.kanban-sync.yaml.
func ProfilePath() (string, error) {
	if p := os.Getenv(ProfileEnv); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate profile: %w", err)
	}
	return filepath.Join(home, profileFileName), nil
}

// LoadClient reads the default profile and applies environment overrides.
func LoadClient() (*Client, error) {
	path, err := ProfilePath()
	if err != nil {
		return nil, err
	}
	return LoadClientFrom(path)
}

// LoadClientFrom is LoadClient with an explicit profile path. A missing
// profile is not an error.
func LoadClientFrom(path string) (*Client, error) {
	c := &Client{
		APIURL:              DefaultAPIURL,
		RequestTimeout:      DefaultRequestTimeout,
		ReconnectMaxBackoff: DefaultReconnectMaxBackoff,
		path:                path,
	}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read profile: %w", err)
	default:
		if err := yaml.Unmarshal(raw, c); err != nil {
			return nil, fmt.Errorf("parse profile %s: %w", path, err)
		}
	}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.RealtimeURL == "" {
		c.RealtimeURL, err = DeriveRealtimeURL(c.APIURL)
		if err != nil {
			return nil, err
		}
	}
	if c.RequestTimeout <= 0 {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %s", c.RequestTimeout)
	}
	return c, nil
}

// Path is the profile the configuration was loaded from.
func (c *Client) Path() string { return c.path }

// SaveToken stores token in the profile, keeping whatever else the profile
// already holds.
func (c *Client) SaveToken(token string) error {
	profile := map[string]any{}
	raw, err := os.ReadFile(c.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read profile: %w", err)
	default:
		if err := yaml.Unmarshal(raw, &profile); err != nil {
			return fmt.Errorf("parse profile %s: %w", c.path, err)
		}
	}
	profile["token"] = token
	out, err := yaml.Marshal(profile)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create profile dir: %w", err)
		}
	}
	if err := os.WriteFile(c.path, out, 0o600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	c.Token = token
	return nil
}

// DeriveRealtimeURL maps an API base such as http://host:5000/api to the
// relay endpoint ws://host:5000/ws.
func DeriveRealtimeURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid API_URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid API_URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/api") + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}
