package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the metergate service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Credential CredentialConfig `yaml:"credential"`
	Cache      CacheConfig      `yaml:"cache"`
	Plans      PlansConfig      `yaml:"plans"`
	Exclusions ExclusionsConfig `yaml:"exclusions"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds cache store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// UpstreamConfig holds metering API settings.
type UpstreamConfig struct {
	BaseURL    string `yaml:"base_url"`
	RelayURL   string `yaml:"relay_url"` // non-empty routes event fetches through the relay
	TimeoutSec int    `yaml:"timeout_sec"`
	PageSize   int    `yaml:"page_size"`
	TeamID     int    `yaml:"team_id"`
}

// CredentialConfig holds session credential settings.
type CredentialConfig struct {
	SessionToken string `yaml:"session_token"`  // explicit token, wins over browser lookup
	BrowserStore bool   `yaml:"browser_store"`  // fall back to local browser cookie stores
	CookieDomain string `yaml:"cookie_domain"`  // domain the session cookie lives on
	CookieName   string `yaml:"cookie_name"`
}

// CacheConfig holds snapshot cache settings.
type CacheConfig struct {
	Duration string `yaml:"duration"` // "1m" or "3m"
}

// SnapshotTTL maps the configured duration name to its time value.
func (c CacheConfig) SnapshotTTL() time.Duration {
	if c.Duration == "3m" {
		return 3 * time.Minute
	}
	return time.Minute
}

// PlansConfig allows overriding per-tier spend ceilings (cents).
type PlansConfig struct {
	LimitsCents map[string]int `yaml:"limits_cents"`
}

// ExclusionsConfig holds the excluded-model list source.
type ExclusionsConfig struct {
	File string `yaml:"file"` // optional; JSON list of model substrings
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Snapshot misses page through the whole billing period upstream.
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "metergate:"
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://cursor.com"
	}
	if c.Upstream.TimeoutSec <= 0 {
		c.Upstream.TimeoutSec = 30
	}
	if c.Upstream.PageSize <= 0 {
		c.Upstream.PageSize = 500
	}
	if c.Credential.CookieDomain == "" {
		c.Credential.CookieDomain = "cursor.com"
	}
	if c.Credential.CookieName == "" {
		c.Credential.CookieName = "WorkosCursorSessionToken"
	}
	if c.Cache.Duration == "" {
		c.Cache.Duration = "1m"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Cache.Duration {
	case "1m", "3m":
		// ok
	default:
		return fmt.Errorf("cache.duration must be \"1m\" or \"3m\", got %q", c.Cache.Duration)
	}
	for tier, cents := range c.Plans.LimitsCents {
		if cents <= 0 {
			return fmt.Errorf("plans.limits_cents.%s must be positive, got %d", tier, cents)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
