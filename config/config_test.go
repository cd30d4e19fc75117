package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearClientEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"API_URL", "REALTIME_URL", "REQUEST_TIMEOUT", "RECONNECT_MAX_BACKOFF", "DEBUG", "KANBAN_TOKEN"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestClientDefaults(t *testing.T) {
	clearClientEnv(t)
	c, err := LoadClientFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.APIURL != DefaultAPIURL || c.RealtimeURL != "ws://localhost:5000/ws" {
		t.Fatalf("unexpected urls %q %q", c.APIURL, c.RealtimeURL)
	}
	if c.RequestTimeout != 15*time.Second || c.ReconnectMaxBackoff != 5*time.Second || c.Debug || c.Token != "" {
		t.Fatalf("unexpected defaults %+v", c)
	}
}

func TestClientProfileThenEnv(t *testing.T) {
	clearClientEnv(t)
	path := filepath.Join(t.TempDir(), "profile.yaml")
	profile := "api_url: https://kanban.example.com/api/\nrequest_timeout: 3s\ntoken: from-file\n"
	if err := os.WriteFile(path, []byte(profile), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KANBAN_TOKEN", "from-env")
	t.Setenv("DEBUG", "true")

	c, err := LoadClientFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.APIURL != "https://kanban.example.com/api" || c.RealtimeURL != "wss://kanban.example.com/ws" {
		t.Fatalf("unexpected urls %q %q", c.APIURL, c.RealtimeURL)
	}
	if c.RequestTimeout != 3*time.Second || c.Token != "from-env" || !c.Debug {
		t.Fatalf("unexpected config %+v", c)
	}
}

func TestClientRejectsBadProfile(t *testing.T) {
	clearClientEnv(t)
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte("request_timeout: [nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadClientFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveTokenKeepsProfile(t *testing.T) {
	clearClientEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "profile.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("api_url: http://api.test/api\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := LoadClientFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.SaveToken("tok-1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "api_url: http://api.test/api") || !strings.Contains(string(raw), "token: tok-1") {
		t.Fatalf("unexpected profile:\n%s", raw)
	}
	again, err := LoadClientFrom(path)
	if err != nil || again.Token != "tok-1" {
		t.Fatalf("reload: %+v %v", again, err)
	}
}

func TestDeriveRealtimeURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "http://localhost:5000/api", want: "ws://localhost:5000/ws"},
		{in: "https://host/api", want: "wss://host/ws"},
		{in: "https://host/prefix/api/", want: "wss://host/prefix/ws"},
		{in: "http://host", want: "ws://host/ws"},
		{in: "ftp://host/api", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := DeriveRealtimeURL(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("DeriveRealtimeURL(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestRelayConfig(t *testing.T) {
	for _, k := range []string{"RELAY_PORT", "REDIS_CONNECTION_STRING", "REDIS_CHANNEL_PREFIX", "DEDUPER_TTL", "AUTH0_DOMAIN", "AUTH0_AUDIENCE", "DEV_API", "DEBUG"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("AUTH_TEST_MODE", "1")
	t.Setenv("TEST_JWT_SECRET", "s3cret")

	r, err := LoadRelay()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if r.Port != 5000 || r.RedisChannelPrefix != "board:" || r.DeduperTTL != 10*time.Minute || r.ListenAddr() != ":5000" {
		t.Fatalf("unexpected defaults %+v", r)
	}
	if r.RedisOptions() != nil {
		t.Fatal("redis should be disabled without a connection string")
	}

	t.Setenv("AUTH_TEST_MODE", "")
	if _, err := LoadRelay(); err == nil {
		t.Fatal("expected missing Auth0 config error")
	}
	t.Setenv("AUTH0_DOMAIN", "tenant.auth0.com")
	t.Setenv("AUTH0_AUDIENCE", "kanban")
	r, err = LoadRelay()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if r.JWKSURL() != "https://tenant.auth0.com/.well-known/jwks.json" || r.Issuer() != "https://tenant.auth0.com/" {
		t.Fatalf("unexpected auth urls %s %s", r.JWKSURL(), r.Issuer())
	}
}

func TestRedisOptions(t *testing.T) {
	r := &Relay{RedisConnectionString: "redis://:pw@cache:6379/2"}
	opts := r.RedisOptions()
	if opts.Addr != "cache:6379" || opts.Password != "pw" || opts.DB != 2 {
		t.Fatalf("unexpected url options %+v", opts)
	}
	r.RedisConnectionString = "cache.example.net:6380,password=secret,ssl=True,abortConnect=False"
	opts = r.RedisOptions()
	if opts.Addr != "cache.example.net:6380" || opts.Password != "secret" || opts.TLSConfig == nil {
		t.Fatalf("unexpected connection string options %+v", opts)
	}
}
