// ABOUTME: Configuration loading and parsing for coven-handoff
// ABOUTME: Reads YAML or TOML with environment variable expansion, defaults, and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/coven-handoff/internal/broker"
)

// Config represents the complete coven-handoff configuration
type Config struct {
	Broker    BrokerConfig    `yaml:"broker" toml:"broker"`
	Matrix    MatrixConfig    `yaml:"matrix" toml:"matrix"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// AgentConfig is one human agent
type AgentConfig struct {
	ID   string `yaml:"id" toml:"id"`
	Name string `yaml:"name" toml:"name"`
}

// BrokerConfig holds hand-off policy
type BrokerConfig struct {
	Agents          []AgentConfig `yaml:"agents" toml:"agents"`
	Selection       bool          `yaml:"selection" toml:"selection"`
	SharedBlacklist bool          `yaml:"shared_blacklist" toml:"shared_blacklist"`

	ConversationTimeout time.Duration `yaml:"-" toml:"-"`
	WarningWindow       time.Duration `yaml:"-" toml:"-"`
	QueueTimeout        time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ConversationTimeoutRaw string `yaml:"conversation_timeout" toml:"conversation_timeout"`
	WarningWindowRaw       string `yaml:"warning_window" toml:"warning_window"`
	QueueTimeoutRaw        string `yaml:"queue_timeout" toml:"queue_timeout"`
}

// MatrixConfig holds Matrix connection configuration
type MatrixConfig struct {
	Homeserver    string           `yaml:"homeserver" toml:"homeserver"`
	UserID        string           `yaml:"user_id" toml:"user_id"`
	AccessToken   string           `yaml:"access_token" toml:"access_token"`
	DeviceID      string           `yaml:"device_id" toml:"device_id"`
	AllowedRooms  []string         `yaml:"allowed_rooms" toml:"allowed_rooms"`
	CommandPrefix string           `yaml:"command_prefix" toml:"command_prefix"`
	DataDir       string           `yaml:"data_dir" toml:"data_dir"`
	Encryption    EncryptionConfig `yaml:"encryption" toml:"encryption"`
}

// EncryptionConfig holds end-to-end encryption settings
type EncryptionConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	RecoveryKey string `yaml:"recovery_key" toml:"recovery_key"`
}

// ServerConfig holds the admin HTTP listener address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// DatabaseConfig holds ledger configuration. An empty path disables the ledger.
type DatabaseConfig struct {
	Path           string `yaml:"path" toml:"path"`
	RecordMessages bool   `yaml:"record_messages" toml:"record_messages"`
}

// AuthConfig holds admin API authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns a Config with every default applied.
func Default() Config {
	return Config{
		Broker: BrokerConfig{
			Selection:        true,
			SharedBlacklist:  true,
			WarningWindowRaw: "2m",
		},
		Matrix: MatrixConfig{
			CommandPrefix: "/",
		},
		Server: ServerConfig{
			HTTPAddr: "127.0.0.1:8095",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(expandEnvVars(string(data)), strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes configuration text over the defaults, then validates it.
func Parse(text string, isTOML bool) (*Config, error) {
	cfg := Default()
	if isTOML {
		if _, err := toml.Decode(text, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if len(c.Broker.Agents) == 0 {
		return fmt.Errorf("broker.agents must list at least one agent")
	}
	seen := make(map[string]bool, len(c.Broker.Agents))
	for i, a := range c.Broker.Agents {
		if a.ID == "" {
			return fmt.Errorf("broker.agents[%d].id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("broker.agents[%d].id %q is duplicated", i, a.ID)
		}
		seen[a.ID] = true
	}

	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	u, err := url.Parse(c.Matrix.Homeserver)
	if err != nil {
		return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("matrix.homeserver must use http or https scheme")
	}
	if c.Matrix.UserID == "" {
		return fmt.Errorf("matrix.user_id is required")
	}
	if c.Matrix.AccessToken == "" {
		return fmt.Errorf("matrix.access_token is required")
	}
	if c.Matrix.Encryption.Enabled && c.Matrix.DeviceID == "" {
		return fmt.Errorf("matrix.device_id is required when encryption is enabled")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
// An empty value or "0" leaves the duration at zero, which means unlimited.
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"conversation_timeout", cfg.Broker.ConversationTimeoutRaw, &cfg.Broker.ConversationTimeout},
		{"warning_window", cfg.Broker.WarningWindowRaw, &cfg.Broker.WarningWindow},
		{"queue_timeout", cfg.Broker.QueueTimeoutRaw, &cfg.Broker.QueueTimeout},
	}

	for _, f := range fields {
		if f.raw == "" || f.raw == "0" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}

	return nil
}

// DataDir returns the directory for Matrix crypto state, defaulting to
// $XDG_DATA_HOME/coven-handoff.
func (c *Config) DataDir() string {
	if c.Matrix.DataDir != "" {
		return c.Matrix.DataDir
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "coven-handoff")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "coven-handoff-data"
	}
	return filepath.Join(home, ".local", "share", "coven-handoff")
}

// BrokerSettings converts the broker section into a broker.Config.
func (c *Config) BrokerSettings() broker.Config {
	agents := make([]broker.Agent, 0, len(c.Broker.Agents))
	for _, a := range c.Broker.Agents {
		agents = append(agents, broker.Agent{ID: a.ID, Name: a.Name})
	}
	return broker.Config{
		Agents:              agents,
		Selection:           c.Broker.Selection,
		SharedBlacklist:     c.Broker.SharedBlacklist,
		ConversationTimeout: c.Broker.ConversationTimeout,
		WarningWindow:       c.Broker.WarningWindow,
		QueueTimeout:        c.Broker.QueueTimeout,
	}
}

// DefaultPath returns the config file location: $COVEN_HANDOFF_CONFIG, else
// $XDG_CONFIG_HOME/coven/handoff.yaml, else ~/.config/coven/handoff.yaml.
func DefaultPath() string {
	if p := os.Getenv("COVEN_HANDOFF_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "handoff.yaml"
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "coven", "handoff.yaml")
}
