// Package config provides configuration types for the EVCare portal gate.
//
// Configuration is file-based (portal-gate.yaml) with environment variable
// overrides. The schema covers the session vault, the login strategy, the
// route table, and the operational knobs (audit, rate limiting).
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for the portal gate.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Session configures where the portal session is persisted.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Login configures how credentials are verified.
	Login LoginConfig `yaml:"login" mapstructure:"login"`

	// Routes configures the role-gated route table.
	Routes RoutesConfig `yaml:"routes" mapstructure:"routes"`

	// Upstream configures the frontend origin that permitted page requests
	// are proxied to. Optional: without it the gate serves placeholders.
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`

	// Audit configures the audit trail.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// RateLimit configures login rate limiting.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Telemetry configures OpenTelemetry tracing and metrics export.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// DevMode enables development features (verbose logging, in-memory
	// session vault).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
// The gate serves plain HTTP; put a reverse proxy in front for TLS.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8443").
	// Defaults to "127.0.0.1:8443" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// AllowedOrigins lists cross-origin values permitted to call the auth
	// endpoints from a browser. Same-origin requests always pass.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins" validate:"omitempty,dive,url"`
}

// SessionConfig configures session persistence.
type SessionConfig struct {
	// Vault selects the persistence backend.
	// Valid values: "file", "memory", "sqlite", "redis".
	// Defaults to "file".
	Vault string `yaml:"vault" mapstructure:"vault" validate:"omitempty,oneof=file memory sqlite redis"`

	// StatePath is the session file path for the file vault.
	// Defaults to ~/.portal-gate/session.json.
	StatePath string `yaml:"state_path" mapstructure:"state_path"`

	// SQLitePath is the database file path for the sqlite vault.
	// Defaults to ~/.portal-gate/session.db.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`

	// Redis configures the redis vault. Required when vault is "redis".
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig configures the redis session vault.
type RedisConfig struct {
	// Addr is the redis server address (e.g., "localhost:6379").
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`

	// Password is the redis AUTH password. Empty means no auth.
	Password string `yaml:"password" mapstructure:"password"`

	// DB is the redis database number.
	DB int `yaml:"db" mapstructure:"db" validate:"omitempty,min=0"`

	// KeyPrefix namespaces the session key. Defaults to "portal-gate:".
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// LoginConfig configures credential verification.
type LoginConfig struct {
	// Strategy selects how credentials are checked.
	// "fixed_table" verifies against the configured accounts.
	// "backend" delegates to the EVCare backend API.
	// Defaults to "fixed_table".
	Strategy string `yaml:"strategy" mapstructure:"strategy" validate:"omitempty,oneof=fixed_table backend"`

	// Accounts is the fixed login table. When empty and the strategy is
	// fixed_table, the built-in demo accounts are used.
	Accounts []AccountConfig `yaml:"accounts" mapstructure:"accounts" validate:"omitempty,dive"`

	// Backend configures the EVCare backend API. Required when the
	// strategy is "backend".
	Backend BackendConfig `yaml:"backend" mapstructure:"backend"`
}

// AccountConfig defines one fixed-table account.
type AccountConfig struct {
	// ID is the identity ID issued on login.
	ID string `yaml:"id" mapstructure:"id" validate:"required"`

	// Email is matched case-sensitively against the login email.
	Email string `yaml:"email" mapstructure:"email" validate:"required,email"`

	// Password is either a plaintext fixture value or an Argon2id PHC hash.
	// Generate hashes with: portal-gate hash-password
	Password string `yaml:"password" mapstructure:"password" validate:"required"`

	// Name is the display name.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Phone is an optional contact number.
	Phone string `yaml:"phone" mapstructure:"phone"`

	// Role is the account's role.
	Role string `yaml:"role" mapstructure:"role" validate:"required,oneof=admin staff customer"`

	// Avatar is an optional avatar URL.
	Avatar string `yaml:"avatar" mapstructure:"avatar" validate:"omitempty,url"`
}

// BackendConfig configures the EVCare backend login strategy.
type BackendConfig struct {
	// BaseURL is the backend API origin (e.g., "https://api.evcare.com").
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`

	// Timeout is the per-request timeout (e.g., "10s").
	// Defaults to "10s".
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// RoutesConfig configures the role-gated route table.
type RoutesConfig struct {
	// LoginPath is where unauthenticated visitors of guarded paths are
	// redirected. Defaults to "/login".
	LoginPath string `yaml:"login_path" mapstructure:"login_path" validate:"omitempty,startswith=/"`

	// FallbackTarget is where unmatched paths redirect. Defaults to "/".
	FallbackTarget string `yaml:"fallback_target" mapstructure:"fallback_target" validate:"omitempty,startswith=/"`

	// RoleHomes maps a role to its home path, used when a signed-in user
	// lands somewhere their role cannot go.
	RoleHomes map[string]string `yaml:"role_homes" mapstructure:"role_homes"`

	// Rules is the route table. When empty the built-in table is used:
	// public / and /login, role-gated /admin and /staff subtrees.
	Rules []RouteRuleConfig `yaml:"rules" mapstructure:"rules" validate:"omitempty,dive"`
}

// RouteRuleConfig defines one route table entry.
type RouteRuleConfig struct {
	// Path is the exact path or subtree root this rule governs.
	Path string `yaml:"path" mapstructure:"path" validate:"required,startswith=/"`

	// Access is who may enter.
	// Valid values: "public", "any_authenticated", "role".
	Access string `yaml:"access" mapstructure:"access" validate:"required,oneof=public any_authenticated role"`

	// Role is required when access is "role".
	Role string `yaml:"role" mapstructure:"role" validate:"omitempty,oneof=admin staff customer"`

	// Condition is an optional CEL expression that must also hold for the
	// rule to permit entry. Variables: path, authenticated, role.
	Condition string `yaml:"condition" mapstructure:"condition"`
}

// UpstreamConfig configures the frontend origin.
type UpstreamConfig struct {
	// URL is the frontend origin permitted pages are proxied to
	// (e.g., "http://localhost:3000").
	URL string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`

	// Timeout is the proxy timeout (e.g., "30s"). Defaults to "30s".
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// Enabled turns the audit trail on or off. Defaults to on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Dir is the directory where audit files are stored.
	// Defaults to ~/.portal-gate/audit.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// RetentionDays is the number of days to keep audit files.
	// Defaults to 7.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`

	// MaxFileSizeMB is the maximum size per audit file in megabytes before
	// rotation. Defaults to 100.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`

	// ChannelSize is the buffer size for the audit channel.
	// Defaults to 1000.
	ChannelSize int `yaml:"channel_size" mapstructure:"channel_size" validate:"omitempty,min=1"`

	// BatchSize is the number of records to batch before writing.
	// Defaults to 100.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"omitempty,min=1"`

	// FlushInterval is how often to flush pending records (e.g., "1s").
	// Defaults to "1s".
	FlushInterval string `yaml:"flush_interval" mapstructure:"flush_interval" validate:"omitempty,duration"`

	// SendTimeout is how long to block when the channel is full.
	// "0" or empty = drop immediately. Defaults to "100ms".
	SendTimeout string `yaml:"send_timeout" mapstructure:"send_timeout" validate:"omitempty,duration"`

	// WarningThreshold is the channel depth percentage (0-100) at which to
	// log warnings. 0 disables warnings. Defaults to 80.
	WarningThreshold int `yaml:"warning_threshold" mapstructure:"warning_threshold" validate:"omitempty,min=0,max=100"`
}

// RateLimitConfig configures login rate limiting.
type RateLimitConfig struct {
	// Enabled turns rate limiting on or off.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// LoginRate is the maximum login attempts per period, per IP and per
	// email. Defaults to 5.
	LoginRate int `yaml:"login_rate" mapstructure:"login_rate" validate:"omitempty,min=1"`

	// LoginBurst is the attempt burst allowance. Defaults to LoginRate.
	LoginBurst int `yaml:"login_burst" mapstructure:"login_burst" validate:"omitempty,min=1"`

	// Period is the window the rate applies over (e.g., "1m").
	// Defaults to "1m".
	Period string `yaml:"period" mapstructure:"period" validate:"omitempty,duration"`

	// CleanupInterval is how often to clean up expired rate limit entries.
	// Defaults to "5m".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`

	// MaxTTL is the maximum age of a rate limit entry before removal.
	// Defaults to "1h".
	MaxTTL string `yaml:"max_ttl" mapstructure:"max_ttl" validate:"omitempty,duration"`
}

// TelemetryConfig configures OpenTelemetry export. Spans and metrics go to
// stdout; wire a collector-aware exporter before relying on this in prod.
type TelemetryConfig struct {
	// Enabled turns tracing and metric export on. Defaults to off.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// MetricsInterval is how often metrics are exported (e.g., "15s").
	// Defaults to "15s".
	MetricsInterval string `yaml:"metrics_interval" mapstructure:"metrics_interval" validate:"omitempty,duration"`
}

// SetDevDefaults applies permissive defaults for development mode.
// These are applied BEFORE validation.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	c.Server.LogLevel = "debug"

	// A throwaway in-memory session keeps dev runs from touching the real
	// session file, unless the user explicitly picked a vault.
	if !viper.IsSet("session.vault") {
		c.Session.Vault = "memory"
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Server defaults. Bind to localhost only; users who need network
	// access must set http_addr explicitly.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8443"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	// Session defaults
	if c.Session.Vault == "" {
		c.Session.Vault = "file"
	}
	if c.Session.StatePath == "" {
		c.Session.StatePath = defaultDataPath("session.json")
	}
	if c.Session.SQLitePath == "" {
		c.Session.SQLitePath = defaultDataPath("session.db")
	}
	if c.Session.Redis.KeyPrefix == "" {
		c.Session.Redis.KeyPrefix = "portal-gate:"
	}

	// Login defaults
	if c.Login.Strategy == "" {
		c.Login.Strategy = "fixed_table"
	}
	if c.Login.Backend.Timeout == "" {
		c.Login.Backend.Timeout = "10s"
	}

	// Route defaults
	if c.Routes.LoginPath == "" {
		c.Routes.LoginPath = "/login"
	}
	if c.Routes.FallbackTarget == "" {
		c.Routes.FallbackTarget = "/"
	}
	if len(c.Routes.RoleHomes) == 0 {
		c.Routes.RoleHomes = map[string]string{
			"admin":    "/admin",
			"staff":    "/staff",
			"customer": "/",
		}
	}
	if len(c.Routes.Rules) == 0 {
		c.Routes.Rules = []RouteRuleConfig{
			{Path: "/", Access: "public"},
			{Path: c.Routes.LoginPath, Access: "public"},
			{Path: "/admin", Access: "role", Role: "admin"},
			{Path: "/staff", Access: "role", Role: "staff"},
		}
	}

	// Upstream defaults
	if c.Upstream.Timeout == "" {
		c.Upstream.Timeout = "30s"
	}

	// Audit defaults. Enabled unless explicitly turned off.
	if !viper.IsSet("audit.enabled") {
		c.Audit.Enabled = true
	}
	if c.Audit.Dir == "" {
		c.Audit.Dir = defaultDataPath("audit")
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 7
	}
	if c.Audit.MaxFileSizeMB == 0 {
		c.Audit.MaxFileSizeMB = 100
	}
	if c.Audit.ChannelSize == 0 {
		c.Audit.ChannelSize = 1000
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 100
	}
	if c.Audit.FlushInterval == "" {
		c.Audit.FlushInterval = "1s"
	}
	if c.Audit.SendTimeout == "" {
		c.Audit.SendTimeout = "100ms"
	}
	if c.Audit.WarningThreshold == 0 {
		c.Audit.WarningThreshold = 80
	}

	// Rate limit defaults. Enabled unless explicitly turned off;
	// viper.IsSet distinguishes "not set" from "explicitly false".
	if !viper.IsSet("rate_limit.enabled") {
		c.RateLimit.Enabled = true
	}
	if c.RateLimit.LoginRate == 0 {
		c.RateLimit.LoginRate = 5
	}
	if c.RateLimit.LoginBurst == 0 {
		c.RateLimit.LoginBurst = c.RateLimit.LoginRate
	}
	if c.RateLimit.Period == "" {
		c.RateLimit.Period = "1m"
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}
	if c.RateLimit.MaxTTL == "" {
		c.RateLimit.MaxTTL = "1h"
	}

	// Telemetry defaults. Off by default, stdout exporters are chatty.
	if c.Telemetry.MetricsInterval == "" {
		c.Telemetry.MetricsInterval = "15s"
	}
}

// defaultDataPath returns ~/.portal-gate/<name>, or a relative path when the
// home directory cannot be determined.
func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".portal-gate", name)
	}
	return filepath.Join(home, ".portal-gate", name)
}
