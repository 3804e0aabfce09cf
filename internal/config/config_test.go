package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: 9090
site:
  base_url: https://alsamah.example
origin:
  static_dir: ./dist
edge:
  diagnostics: true
  reserved_prefixes: ["/api/", "/admin/"]
prerender:
  engine: headless
  timeout_seconds: 4
  rate_per_second: 2.5
  burst: 3
headless:
  max_parallel: 1
store:
  driver: postgres
  dsn: postgres://edge@localhost:5432/shop
audit:
  archive:
    driver: local
    base_dir: /var/lib/edge
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "https://alsamah.example", cfg.Site.BaseURL)
	require.Equal(t, "./dist", cfg.Origin.StaticDir)
	require.True(t, cfg.Edge.Diagnostics)
	require.Equal(t, []string{"/api/", "/admin/"}, cfg.Edge.ReservedPrefixes)
	require.Equal(t, "headless", cfg.Prerender.Engine)
	require.Equal(t, 4*time.Second, cfg.PrerenderTimeout())
	require.InDelta(t, 2.5, cfg.Prerender.RatePerSecond, 1e-9)
	require.Equal(t, "postgres", cfg.Store.Driver)
	require.Equal(t, "services", cfg.Store.Table)
	require.True(t, cfg.ArchiveEnabled())

	// Untouched keys keep their defaults.
	require.Equal(t, "public, max-age=3600", cfg.Prerender.CacheControl)
	require.Equal(t, 5*time.Second, cfg.PreviewTimeout())
	require.Equal(t, time.Second, cfg.AuditBatchWait())
	require.Equal(t, 15*time.Second, cfg.ShutdownTimeout())
	require.Equal(t, 20*time.Second, cfg.HeadlessNavTimeout())
}

func TestLoadEnvAliases(t *testing.T) {
	t.Setenv("EDGE_ORIGIN_URL", "http://127.0.0.1:5173")
	t.Setenv("SITE_URL", "https://alsamah.example")
	t.Setenv("VITE_SUPABASE_URL", "https://abc.supabase.co")
	t.Setenv("VITE_SUPABASE_ANON_KEY", "anon")
	t.Setenv("PRERENDER_TOKEN", "tok")
	t.Setenv("PORT", "7070")
	t.Setenv("EDGE_PREVIEW_TIMEOUT_SECONDS", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:5173", cfg.Origin.URL)
	require.Equal(t, "https://alsamah.example", cfg.Site.BaseURL)
	require.Equal(t, "https://abc.supabase.co", cfg.Store.URL)
	require.Equal(t, "anon", cfg.Store.AnonKey)
	require.Equal(t, "tok", cfg.Prerender.Token)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 2*time.Second, cfg.PreviewTimeout())
}

func TestLoadPrefixedEnvWinsOverAlias(t *testing.T) {
	t.Setenv("EDGE_ORIGIN_STATIC_DIR", "dist")
	t.Setenv("EDGE_SITE_BASE_URL", "https://alsamah.example")
	t.Setenv("EDGE_STORE_URL", "https://primary.supabase.co")
	t.Setenv("SUPABASE_URL", "https://fallback.supabase.co")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "https://primary.supabase.co", cfg.Store.URL)
}

func TestLoadMissingCredentialsIsNotAnError(t *testing.T) {
	t.Setenv("EDGE_ORIGIN_STATIC_DIR", "dist")
	t.Setenv("EDGE_SITE_BASE_URL", "https://alsamah.example")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Empty(t, cfg.Prerender.Token)
	require.Empty(t, cfg.Store.AnonKey)
}

func TestLoadRequiresSiteBaseURLForPrerender(t *testing.T) {
	t.Setenv("EDGE_ORIGIN_STATIC_DIR", "dist")

	_, err := Load("")
	require.ErrorContains(t, err, "site.base_url")

	t.Setenv("EDGE_PRERENDER_ENABLED", "false")
	_, err = Load("")
	require.NoError(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "invalid port",
			mutate: func(c *Config) { c.Server.Port = 0 },
			want:   "server.port",
		},
		{
			name:   "unknown engine",
			mutate: func(c *Config) { c.Prerender.Engine = "phantom" },
			want:   "prerender.engine",
		},
		{
			name:   "zero render timeout",
			mutate: func(c *Config) { c.Prerender.TimeoutSeconds = 0 },
			want:   "prerender.timeout_seconds",
		},
		{
			name:   "prerender without site base url",
			mutate: func(c *Config) { c.Site.BaseURL = "" },
			want:   "site.base_url",
		},
		{
			name:   "unknown store driver",
			mutate: func(c *Config) { c.Store.Driver = "mysql" },
			want:   "store.driver",
		},
		{
			name:   "relative reserved prefix",
			mutate: func(c *Config) { c.Edge.ReservedPrefixes = []string{"api/"} },
			want:   "edge.reserved_prefixes",
		},
		{
			name:   "missing origin",
			mutate: func(c *Config) { c.Origin.StaticDir = "" },
			want:   "origin.url or origin.static_dir",
		},
		{
			name:   "both origins",
			mutate: func(c *Config) { c.Origin.URL = "http://localhost:5173" },
			want:   "mutually exclusive",
		},
		{
			name: "headless without slots",
			mutate: func(c *Config) {
				c.Prerender.Engine = "headless"
				c.Headless.MaxParallel = 0
			},
			want: "headless.max_parallel",
		},
		{
			name:   "pubsub topic without project",
			mutate: func(c *Config) { c.Audit.PubSub.Topic = "edge-events" },
			want:   "audit.pubsub",
		},
		{
			name:   "gcs archive without bucket",
			mutate: func(c *Config) { c.Audit.Archive.Driver = "gcs" },
			want:   "audit.archive.bucket",
		},
		{
			name:   "local archive without dir",
			mutate: func(c *Config) { c.Audit.Archive.Driver = "local" },
			want:   "audit.archive.base_dir",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidConfigPasses(t *testing.T) {
	t.Parallel()

	require.NoError(t, validConfig().Validate())
}

func validConfig() Config {
	return Config{
		Server:    ServerConfig{Port: 8080, ShutdownTimeoutSeconds: 15},
		Site:      SiteConfig{BaseURL: "https://alsamah.example"},
		Origin:    OriginConfig{StaticDir: "dist"},
		Edge:      EdgeConfig{ReservedPrefixes: []string{"/api/"}},
		Prerender: PrerenderConfig{Enabled: true, Engine: "remote", TimeoutSeconds: 10},
		Headless:  HeadlessConfig{MaxParallel: 2, NavTimeoutSeconds: 20},
		Preview:   PreviewConfig{Enabled: true, TimeoutSeconds: 5},
		Store:     StoreConfig{Driver: "rest", Table: "services"},
		Audit: AuditConfig{
			Enabled:        true,
			BufferSize:     16,
			MaxBatchEvents: 4,
			MaxBatchWaitMs: 100,
			Archive:        ArchiveConfig{Driver: "none"},
		},
	}
}
