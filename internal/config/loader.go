package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for portal-gate.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to avoid
// matching the binary itself, which Viper's built-in SetConfigName would
// match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("portal-gate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: PORTAL_GATE_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("PORTAL_GATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a portal-gate config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".portal-gate"),
	}
	if runtime.GOOS == "windows" {
		// %ProgramData%\portal-gate (typically C:\ProgramData\portal-gate)
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "portal-gate"))
		}
	} else {
		paths = append(paths, "/etc/portal-gate")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for portal-gate.yaml
// or .yml. Returns the full path of the first match, or empty string.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "portal-gate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment variable
// support. Example: PORTAL_GATE_SESSION_VAULT overrides session.vault.
func bindNestedEnvKeys() {
	// Server config
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")

	// Session config
	_ = viper.BindEnv("session.vault")
	_ = viper.BindEnv("session.state_path")
	_ = viper.BindEnv("session.sqlite_path")
	_ = viper.BindEnv("session.redis.addr")
	_ = viper.BindEnv("session.redis.password")
	_ = viper.BindEnv("session.redis.db")
	_ = viper.BindEnv("session.redis.key_prefix")

	// Login config
	// Note: login.accounts is an array, complex to override via env.
	// Users should use the config file for accounts.
	_ = viper.BindEnv("login.strategy")
	_ = viper.BindEnv("login.backend.base_url")
	_ = viper.BindEnv("login.backend.timeout")

	// Route config
	// Note: routes.rules and routes.role_homes are structured, config file only.
	_ = viper.BindEnv("routes.login_path")
	_ = viper.BindEnv("routes.fallback_target")

	// Upstream config
	_ = viper.BindEnv("upstream.url")
	_ = viper.BindEnv("upstream.timeout")

	// Audit config
	_ = viper.BindEnv("audit.enabled")
	_ = viper.BindEnv("audit.dir")

	// Rate limit config
	_ = viper.BindEnv("rate_limit.enabled")
	_ = viper.BindEnv("rate_limit.login_rate")
	_ = viper.BindEnv("rate_limit.login_burst")
	_ = viper.BindEnv("rate_limit.period")
	_ = viper.BindEnv("rate_limit.cleanup_interval")
	_ = viper.BindEnv("rate_limit.max_ttl")

	// Telemetry config
	_ = viper.BindEnv("telemetry.enabled")
	_ = viper.BindEnv("telemetry.metrics_interval")

	// Dev mode
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, applies dev defaults, and validates.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// NOT apply dev defaults or validate. Use this when CLI flags may override
// DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
