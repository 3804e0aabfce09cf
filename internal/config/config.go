// Package config loads and validates edge configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Site      SiteConfig      `mapstructure:"site"`
	Origin    OriginConfig    `mapstructure:"origin"`
	Edge      EdgeConfig      `mapstructure:"edge"`
	Prerender PrerenderConfig `mapstructure:"prerender"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Preview   PreviewConfig   `mapstructure:"preview"`
	Store     StoreConfig     `mapstructure:"store"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port" validate:"min=1,max=65535"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds" validate:"min=1"`
}

// SiteConfig describes the public storefront.
type SiteConfig struct {
	// BaseURL is the canonical origin used to build render URLs. Required
	// when prerender is enabled; request Host headers are never trusted.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	Name    string `mapstructure:"name"`
}

// OriginConfig selects what serves non-intercepted requests: a reverse proxy
// target or a directory holding the built storefront.
type OriginConfig struct {
	URL       string `mapstructure:"url" validate:"omitempty,url"`
	StaticDir string `mapstructure:"static_dir"`
}

// EdgeConfig tunes the dispatch boundary.
type EdgeConfig struct {
	Diagnostics      bool     `mapstructure:"diagnostics"`
	ReservedPrefixes []string `mapstructure:"reserved_prefixes" validate:"dive,startswith=/"`
}

// PrerenderConfig configures the prerender gateway.
type PrerenderConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Engine         string  `mapstructure:"engine" validate:"oneof=remote headless"`
	ServiceURL     string  `mapstructure:"service_url" validate:"omitempty,url"`
	Token          string  `mapstructure:"token"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" validate:"min=1"`
	CacheControl   string  `mapstructure:"cache_control"`
	MaxBodyBytes   int     `mapstructure:"max_body_bytes" validate:"min=0"`
	RatePerSecond  float64 `mapstructure:"rate_per_second" validate:"min=0"`
	Burst          int     `mapstructure:"burst" validate:"min=0"`
}

// HeadlessConfig configures the local chromedp renderer.
type HeadlessConfig struct {
	MaxParallel       int    `mapstructure:"max_parallel" validate:"min=0"`
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds" validate:"min=1"`
}

// PreviewConfig configures the social preview synthesizer.
type PreviewConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds" validate:"min=1"`
}

// StoreConfig selects and configures the product store.
type StoreConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=rest postgres"`
	URL      string `mapstructure:"url" validate:"omitempty,url"`
	AnonKey  string `mapstructure:"anon_key"`
	Table    string `mapstructure:"table" validate:"required"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" validate:"min=0"`
}

// AuditConfig controls the edge decision event pipeline.
type AuditConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BufferSize     int           `mapstructure:"buffer_size" validate:"min=1"`
	MaxBatchEvents int           `mapstructure:"max_batch_events" validate:"min=1"`
	MaxBatchWaitMs int           `mapstructure:"max_batch_wait_ms" validate:"min=1"`
	LogEvents      bool          `mapstructure:"log_events"`
	PubSub         PubSubConfig  `mapstructure:"pubsub"`
	Archive        ArchiveConfig `mapstructure:"archive"`
}

// PubSubConfig names the topic edge events are published to.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ArchiveConfig selects where served documents are archived.
type ArchiveConfig struct {
	Driver  string `mapstructure:"driver" validate:"oneof=none memory local gcs"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// envAliases maps config keys to the variable names the storefront build
// already uses, so one environment serves both.
var envAliases = map[string][]string{
	"store.url":       {"VITE_SUPABASE_URL", "SUPABASE_URL"},
	"store.anon_key":  {"VITE_SUPABASE_ANON_KEY", "SUPABASE_ANON_KEY"},
	"prerender.token": {"PRERENDER_TOKEN"},
	"server.port":     {"PORT"},
	"site.base_url":   {"SITE_URL"},
}

const envPrefix = "EDGE"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Load builds a Config from an optional .env file, an optional YAML file at
// path, and the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, aliases := range envAliases {
		names := append([]string{envName(key)}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("site.base_url", "")
	v.SetDefault("site.name", "معرض السماح للمفروشات")
	v.SetDefault("origin.url", "")
	v.SetDefault("origin.static_dir", "")
	v.SetDefault("edge.diagnostics", false)
	v.SetDefault("edge.reserved_prefixes", []string{"/.netlify/", "/api/"})
	v.SetDefault("prerender.enabled", true)
	v.SetDefault("prerender.engine", "remote")
	v.SetDefault("prerender.service_url", "https://service.prerender.io")
	v.SetDefault("prerender.token", "")
	v.SetDefault("prerender.timeout_seconds", 10)
	v.SetDefault("prerender.cache_control", "public, max-age=3600")
	v.SetDefault("prerender.max_body_bytes", 10<<20)
	v.SetDefault("prerender.rate_per_second", 0)
	v.SetDefault("prerender.burst", 0)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.user_agent", "")
	v.SetDefault("headless.nav_timeout_seconds", 20)
	v.SetDefault("preview.enabled", true)
	v.SetDefault("preview.timeout_seconds", 5)
	v.SetDefault("store.driver", "rest")
	v.SetDefault("store.url", "")
	v.SetDefault("store.anon_key", "")
	v.SetDefault("store.table", "services")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.buffer_size", 512)
	v.SetDefault("audit.max_batch_events", 100)
	v.SetDefault("audit.max_batch_wait_ms", 1000)
	v.SetDefault("audit.log_events", true)
	v.SetDefault("audit.pubsub.project_id", "")
	v.SetDefault("audit.pubsub.topic", "")
	v.SetDefault("audit.archive.driver", "none")
	v.SetDefault("audit.archive.base_dir", "")
	v.SetDefault("audit.archive.bucket", "")
	v.SetDefault("audit.archive.prefix", "")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits. Missing upstream
// credentials are allowed: the affected handler passes requests through.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("%s failed %q validation", fieldPath(first.Namespace()), first.Tag())
		}
		return fmt.Errorf("validate config: %w", err)
	}
	if c.Origin.URL == "" && c.Origin.StaticDir == "" {
		return fmt.Errorf("origin.url or origin.static_dir must be set")
	}
	if c.Origin.URL != "" && c.Origin.StaticDir != "" {
		return fmt.Errorf("origin.url and origin.static_dir are mutually exclusive")
	}
	if c.Prerender.Enabled && c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url must be set when prerender is enabled")
	}
	if c.Prerender.Enabled && c.Prerender.Engine == "headless" && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when prerender.engine is headless")
	}
	if (c.Audit.PubSub.ProjectID == "") != (c.Audit.PubSub.Topic == "") {
		return fmt.Errorf("audit.pubsub.project_id and audit.pubsub.topic must be set together")
	}
	switch c.Audit.Archive.Driver {
	case "local":
		if c.Audit.Archive.BaseDir == "" {
			return fmt.Errorf("audit.archive.base_dir must be set for the local archive")
		}
	case "gcs":
		if c.Audit.Archive.Bucket == "" {
			return fmt.Errorf("audit.archive.bucket must be set for the gcs archive")
		}
	}
	return nil
}

// fieldPath turns "Config.server.port" into "server.port".
func fieldPath(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return rest
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// PrerenderTimeout bounds one render.
func (c Config) PrerenderTimeout() time.Duration {
	return time.Duration(c.Prerender.TimeoutSeconds) * time.Second
}

// HeadlessNavTimeout bounds one headless navigation.
func (c Config) HeadlessNavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSeconds) * time.Second
}

// PreviewTimeout bounds one product lookup.
func (c Config) PreviewTimeout() time.Duration {
	return time.Duration(c.Preview.TimeoutSeconds) * time.Second
}

// AuditBatchWait is the longest an event waits before being flushed.
func (c Config) AuditBatchWait() time.Duration {
	return time.Duration(c.Audit.MaxBatchWaitMs) * time.Millisecond
}

// ArchiveEnabled reports whether served documents are archived.
func (c Config) ArchiveEnabled() bool {
	return c.Audit.Enabled && c.Audit.Archive.Driver != "" && c.Audit.Archive.Driver != "none"
}
