// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
broker:
  agents:
    - id: "@alice:example.org"
      name: "Alice"
matrix:
  homeserver: "https://matrix.example.org"
  user_id: "@handoff:example.org"
  access_token: "token"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, "handoff.yaml", `
broker:
  agents:
    - id: "@alice:example.org"
      name: "Alice"
    - id: "@bob:example.org"
  selection: false
  shared_blacklist: false
  conversation_timeout: "30m"
  warning_window: "1m"
  queue_timeout: "1h"
matrix:
  homeserver: "https://matrix.example.org"
  user_id: "@handoff:example.org"
  access_token: "token"
  allowed_rooms:
    - "!support:example.org"
  command_prefix: "!"
server:
  http_addr: "0.0.0.0:9000"
database:
  path: "./handoff.db"
  record_messages: true
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Broker.Agents) != 2 {
		t.Fatalf("len(Broker.Agents) = %d, want 2", len(cfg.Broker.Agents))
	}
	if cfg.Broker.Selection || cfg.Broker.SharedBlacklist {
		t.Errorf("Broker.Selection/SharedBlacklist should be overridden to false")
	}
	if cfg.Broker.ConversationTimeout != 30*time.Minute {
		t.Errorf("ConversationTimeout = %v, want 30m", cfg.Broker.ConversationTimeout)
	}
	if cfg.Broker.WarningWindow != time.Minute {
		t.Errorf("WarningWindow = %v, want 1m", cfg.Broker.WarningWindow)
	}
	if cfg.Broker.QueueTimeout != time.Hour {
		t.Errorf("QueueTimeout = %v, want 1h", cfg.Broker.QueueTimeout)
	}
	if cfg.Matrix.CommandPrefix != "!" {
		t.Errorf("Matrix.CommandPrefix = %q, want %q", cfg.Matrix.CommandPrefix, "!")
	}
	if len(cfg.Matrix.AllowedRooms) != 1 || cfg.Matrix.AllowedRooms[0] != "!support:example.org" {
		t.Errorf("Matrix.AllowedRooms = %v", cfg.Matrix.AllowedRooms)
	}
	if cfg.Server.HTTPAddr != "0.0.0.0:9000" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Path != "./handoff.db" || !cfg.Database.RecordMessages {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "handoff.yaml", minimalYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Broker.Selection || !cfg.Broker.SharedBlacklist {
		t.Errorf("selection and shared_blacklist should default to true")
	}
	if cfg.Broker.ConversationTimeout != 0 {
		t.Errorf("ConversationTimeout = %v, want 0 (unlimited)", cfg.Broker.ConversationTimeout)
	}
	if cfg.Broker.WarningWindow != 2*time.Minute {
		t.Errorf("WarningWindow = %v, want 2m", cfg.Broker.WarningWindow)
	}
	if cfg.Matrix.CommandPrefix != "/" {
		t.Errorf("CommandPrefix = %q, want /", cfg.Matrix.CommandPrefix)
	}
	if cfg.Metrics.Path != "/metrics" || !cfg.Metrics.Enabled {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if cfg.Database.Path != "" {
		t.Errorf("Database.Path = %q, want empty", cfg.Database.Path)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "handoff.toml", `
[broker]
selection = false
conversation_timeout = "10m"

[[broker.agents]]
id = "@alice:example.org"
name = "Alice"

[matrix]
homeserver = "https://matrix.example.org"
user_id = "@handoff:example.org"
access_token = "token"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Broker.Agents) != 1 || cfg.Broker.Agents[0].Name != "Alice" {
		t.Errorf("Broker.Agents = %+v", cfg.Broker.Agents)
	}
	if cfg.Broker.Selection {
		t.Errorf("Broker.Selection = true, want false")
	}
	if cfg.Broker.ConversationTimeout != 10*time.Minute {
		t.Errorf("ConversationTimeout = %v, want 10m", cfg.Broker.ConversationTimeout)
	}
	if !cfg.Broker.SharedBlacklist {
		t.Errorf("SharedBlacklist should keep its default")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_MATRIX_TOKEN", "expanded-token")

	path := writeConfig(t, "handoff.yaml", strings.Replace(minimalYAML, `"token"`, `"${TEST_MATRIX_TOKEN}"`, 1))
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Matrix.AccessToken != "expanded-token" {
		t.Errorf("Matrix.AccessToken = %q, want %q", cfg.Matrix.AccessToken, "expanded-token")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/handoff.yaml"); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "handoff.yaml", strings.Replace(minimalYAML, "broker:\n", "broker:\n  conversation_timeout: \"soon\"\n", 1))
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "conversation_timeout") {
		t.Errorf("error %q should name the field", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Broker.Agents = []AgentConfig{{ID: "@alice:example.org"}}
		c.Matrix.Homeserver = "https://matrix.example.org"
		c.Matrix.UserID = "@handoff:example.org"
		c.Matrix.AccessToken = "token"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no agents", func(c *Config) { c.Broker.Agents = nil }, "at least one agent"},
		{"empty agent id", func(c *Config) { c.Broker.Agents = []AgentConfig{{Name: "x"}} }, "id is required"},
		{"duplicate agent", func(c *Config) {
			c.Broker.Agents = []AgentConfig{{ID: "a"}, {ID: "a"}}
		}, "duplicated"},
		{"missing homeserver", func(c *Config) { c.Matrix.Homeserver = "" }, "homeserver is required"},
		{"bad scheme", func(c *Config) { c.Matrix.Homeserver = "ftp://matrix.example.org" }, "http or https"},
		{"missing user id", func(c *Config) { c.Matrix.UserID = "" }, "user_id is required"},
		{"missing token", func(c *Config) { c.Matrix.AccessToken = "" }, "access_token is required"},
		{"encryption without device", func(c *Config) { c.Matrix.Encryption.Enabled = true }, "device_id"},
		{"tailscale without hostname", func(c *Config) { c.Tailscale.Enabled = true }, "tailscale.hostname"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "32 bytes"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestBrokerSettings(t *testing.T) {
	cfg, err := Parse(minimalYAML, false)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	bc := cfg.BrokerSettings()
	if len(bc.Agents) != 1 || bc.Agents[0].ID != "@alice:example.org" || bc.Agents[0].Name != "Alice" {
		t.Errorf("Agents = %+v", bc.Agents)
	}
	if !bc.Selection || !bc.SharedBlacklist {
		t.Errorf("flags not carried over: %+v", bc)
	}
	if bc.WarningWindow != 2*time.Minute {
		t.Errorf("WarningWindow = %v", bc.WarningWindow)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("COVEN_HANDOFF_CONFIG", "/etc/handoff.toml")
	if got := DefaultPath(); got != "/etc/handoff.toml" {
		t.Errorf("DefaultPath() = %q", got)
	}

	t.Setenv("COVEN_HANDOFF_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := DefaultPath(); got != filepath.Join("/tmp/xdg", "coven", "handoff.yaml") {
		t.Errorf("DefaultPath() = %q", got)
	}
}
