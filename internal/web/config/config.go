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

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Journal  JournalConfig  `yaml:"journal"`
	Auth     AuthConfig     `yaml:"auth"`
	Backend  BackendConfig  `yaml:"backend"`
	Polling  PollingConfig  `yaml:"polling"`
	Upload   UploadConfig   `yaml:"upload"`
	Display  DisplayConfig  `yaml:"display"`
	Views    ViewsConfig    `yaml:"views"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`

	location *time.Location
}

type ServerConfig struct {
	ListenAddr string    `yaml:"listen_addr"`
	TLS        TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// JournalConfig locates the action journal. Entries older than Retention
// are pruned.
type JournalConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

type AuthConfig struct {
	LocalEnabled  bool             `yaml:"local_enabled"`
	SessionSecret string           `yaml:"session_secret"`
	SessionTTL    time.Duration    `yaml:"session_ttl"`
	OIDC          OIDCConfig       `yaml:"oidc"`
	Roles         RolesConfig      `yaml:"roles"`
	LoginLimit    LoginLimitConfig `yaml:"login_limit"`
}

type OIDCConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Provider      string   `yaml:"provider"`
	ClientID      string   `yaml:"client_id"`
	ClientSecret  string   `yaml:"client_secret"`
	IssuerURL     string   `yaml:"issuer_url"`
	RedirectURL   string   `yaml:"redirect_url"`
	Scopes        []string `yaml:"scopes"`
	AllowedGroups []string `yaml:"allowed_groups"`
	GroupsClaim   string   `yaml:"groups_claim"`
}

// RolesConfig names the groups allowed to mutate data. An empty group
// means every signed-in user has the role.
type RolesConfig struct {
	EditorGroup   string `yaml:"editor_group"`
	UploaderGroup string `yaml:"uploader_group"`
}

// LoginLimitConfig throttles login attempts per client IP.
type LoginLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
	Burst     int `yaml:"burst"`
}

type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// ServiceToken authorizes local-login sessions and CLI commands.
	ServiceToken string `yaml:"service_token"`
}

// PollConfig is the cadence of one list view.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
	Enabled  *bool         `yaml:"enabled"`
}

// On reports whether polling starts enabled.
func (p PollConfig) On() bool {
	return p.Enabled != nil && *p.Enabled
}

type PollingConfig struct {
	Jobs              PollConfig    `yaml:"jobs"`
	Issues            PollConfig    `yaml:"issues"`
	Contacts          PollConfig    `yaml:"contacts"`
	NotifyEvery       int           `yaml:"notify_every"`
	AuthRedirectDelay time.Duration `yaml:"auth_redirect_delay"`
}

type UploadConfig struct {
	MaxBytes  int64  `yaml:"max_bytes"`
	Extension string `yaml:"extension"`
}

type DisplayConfig struct {
	Timezone string `yaml:"timezone"`
	PageSize int    `yaml:"page_size"`
}

// ViewsConfig bounds how long an idle table view is kept.
type ViewsConfig struct {
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"`
	Path       string   `yaml:"path"`
	AllowedIPs []string `yaml:"allowed_ips"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Environment variables that override secrets from the file.
const (
	EnvSessionSecret    = "INGESTDESK_SESSION_SECRET"
	EnvOIDCClientSecret = "INGESTDESK_OIDC_CLIENT_SECRET"
	EnvServiceToken     = "INGESTDESK_BACKEND_SERVICE_TOKEN"
	EnvBackendURL       = "INGESTDESK_BACKEND_URL"
)

// Load reads the YAML file at path. A .env file next to it, if present, is
// loaded into the environment first; environment variables win over the file.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a configuration from YAML bytes and the environment.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvSessionSecret); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv(EnvOIDCClientSecret); v != "" {
		cfg.Auth.OIDC.ClientSecret = v
	}
	if v := os.Getenv(EnvServiceToken); v != "" {
		cfg.Backend.ServiceToken = v
	}
	if v := os.Getenv(EnvBackendURL); v != "" {
		cfg.Backend.BaseURL = v
	}
}

func boolPtr(b bool) *bool { return &b }

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8088"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/ingestdesk/app.db"
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = filepath.Join(filepath.Dir(cfg.Database.Path), "journal.db")
	}
	if cfg.Journal.Retention == 0 {
		cfg.Journal.Retention = 90 * 24 * time.Hour
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 24 * time.Hour
	}
	if len(cfg.Auth.OIDC.Scopes) == 0 {
		cfg.Auth.OIDC.Scopes = []string{"openid", "profile", "email", "offline_access"}
	}
	if cfg.Auth.OIDC.GroupsClaim == "" {
		cfg.Auth.OIDC.GroupsClaim = "groups"
	}
	if cfg.Auth.LoginLimit.PerMinute == 0 {
		cfg.Auth.LoginLimit.PerMinute = 10
	}
	if cfg.Auth.LoginLimit.Burst == 0 {
		cfg.Auth.LoginLimit.Burst = 5
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}

	setPollDefaults(&cfg.Polling.Jobs, 5*time.Second, true)
	setPollDefaults(&cfg.Polling.Issues, 10*time.Second, true)
	setPollDefaults(&cfg.Polling.Contacts, 30*time.Second, false)
	if cfg.Polling.NotifyEvery == 0 {
		cfg.Polling.NotifyEvery = 5
	}
	if cfg.Polling.AuthRedirectDelay == 0 {
		cfg.Polling.AuthRedirectDelay = 2 * time.Second
	}

	if cfg.Upload.MaxBytes == 0 {
		cfg.Upload.MaxBytes = 5 << 20
	}
	if cfg.Upload.Extension == "" {
		cfg.Upload.Extension = ".csv"
	}
	if cfg.Display.Timezone == "" {
		cfg.Display.Timezone = "America/Sao_Paulo"
	}
	if cfg.Display.PageSize == 0 {
		cfg.Display.PageSize = 10
	}
	if cfg.Views.IdleTTL == 0 {
		cfg.Views.IdleTTL = 10 * time.Minute
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func setPollDefaults(p *PollConfig, interval time.Duration, enabled bool) {
	if p.Interval == 0 {
		p.Interval = interval
	}
	if p.Enabled == nil {
		p.Enabled = boolPtr(enabled)
	}
}

func validate(cfg *Config) error {
	if cfg.Auth.SessionSecret == "" {
		return fmt.Errorf("auth.session_secret is required")
	}
	if len(cfg.Auth.SessionSecret) < 32 {
		return fmt.Errorf("auth.session_secret must be at least 32 characters")
	}
	if !cfg.Auth.LocalEnabled && !cfg.Auth.OIDC.Enabled {
		return fmt.Errorf("at least one auth method must be enabled (local or OIDC)")
	}
	if cfg.Auth.OIDC.Enabled {
		if cfg.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("auth.oidc.client_id is required when OIDC is enabled")
		}
		if cfg.Auth.OIDC.ClientSecret == "" {
			return fmt.Errorf("auth.oidc.client_secret is required when OIDC is enabled")
		}
		if cfg.Auth.OIDC.IssuerURL == "" {
			return fmt.Errorf("auth.oidc.issuer_url is required when OIDC is enabled")
		}
	}
	if cfg.Auth.LocalEnabled && cfg.Backend.ServiceToken == "" {
		return fmt.Errorf("backend.service_token is required when local auth is enabled")
	}

	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	u, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("backend.base_url must be an absolute http(s) URL")
	}

	for name, p := range map[string]PollConfig{
		"jobs":     cfg.Polling.Jobs,
		"issues":   cfg.Polling.Issues,
		"contacts": cfg.Polling.Contacts,
	} {
		if p.Interval < time.Second {
			return fmt.Errorf("polling.%s.interval must be at least 1s", name)
		}
	}
	if cfg.Polling.NotifyEvery < 1 {
		return fmt.Errorf("polling.notify_every must be positive")
	}

	if cfg.Upload.MaxBytes < 0 {
		return fmt.Errorf("upload.max_bytes must not be negative")
	}
	if !strings.HasPrefix(cfg.Upload.Extension, ".") {
		return fmt.Errorf("upload.extension must start with a dot")
	}

	switch cfg.Display.PageSize {
	case 10, 20, 30, 40, 50:
	default:
		return fmt.Errorf("display.page_size must be one of 10, 20, 30, 40, 50")
	}
	loc, err := time.LoadLocation(cfg.Display.Timezone)
	if err != nil {
		return fmt.Errorf("display.timezone: %w", err)
	}
	cfg.location = loc

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}
	return nil
}

// Location returns the display time zone.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
