// ABOUTME: Operator subcommands: init, health, state, history, and token
// ABOUTME: state and health call the admin API; history reads the ledger directly

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-handoff/internal/auth"
	"github.com/2389/coven-handoff/internal/broker"
	"github.com/2389/coven-handoff/internal/config"
	"github.com/2389/coven-handoff/internal/store"
)

const starterConfig = `# coven-handoff configuration
# Generated by coven-handoff init

broker:
  agents:
    - id: "@agent:example.org"
      name: "Support"
  selection: true
  shared_blacklist: true
  conversation_timeout: "30m"
  warning_window: "2m"
  queue_timeout: "1h"

matrix:
  homeserver: "https://matrix.example.org"
  user_id: "@handoff:example.org"
  access_token: "${MATRIX_ACCESS_TOKEN}"
  allowed_rooms: []
  command_prefix: "/"

server:
  http_addr: "127.0.0.1:8095"

database:
  path: "%s"
  record_messages: false

auth:
  jwt_secret: "%s"

logging:
  level: "info"
  format: "text"
`

func runInit() error {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	configPath := config.DefaultPath()
	if _, err := os.Stat(configPath); err == nil {
		yellow.Printf("    Config already exists at %s\n", configPath)
		return nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}

	dataDir := (&config.Config{}).DataDir()
	content := fmt.Sprintf(starterConfig, filepath.Join(dataDir, "handoff.db"), base64.StdEncoding.EncodeToString(secret))

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green.Printf("    ✓ Config written to %s\n", configPath)
	fmt.Println()
	fmt.Println("    Next steps:")
	fmt.Println("    1. Edit the agents and matrix sections")
	fmt.Println("    2. Run: coven-handoff serve")
	return nil
}

// apiBase returns the admin API base URL for cfg.
func apiBase(cfg *config.Config) string {
	if cfg.Tailscale.Enabled {
		return "https://" + cfg.Tailscale.Hostname
	}
	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") || strings.HasPrefix(addr, "0.0.0.0:") {
		addr = "127.0.0.1:" + addr[strings.LastIndex(addr, ":")+1:]
	}
	return "http://" + addr
}

func apiGet(ctx context.Context, url, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resp, err := apiGet(ctx, apiBase(cfg)+"/health/ready", "")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	fmt.Println("healthy")
	return nil
}

// runState prints the broker snapshot. The token comes from COVEN_HANDOFF_TOKEN.
func runState(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	token := os.Getenv("COVEN_HANDOFF_TOKEN")
	if token == "" {
		return fmt.Errorf("COVEN_HANDOFF_TOKEN is not set (create one with: coven-handoff token --subject you)")
	}

	resp, err := apiGet(ctx, apiBase(cfg)+"/api/state", token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("state request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var snap broker.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("decoding state: %w", err)
	}
	printSnapshot(os.Stdout, snap)
	return nil
}

func printSnapshot(w io.Writer, snap broker.Snapshot) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	gray.Fprintf(w, "taken at %s\n\n", snap.TakenAt.Format(time.RFC3339))
	cyan.Fprintln(w, "Agents")
	for _, a := range snap.Agents {
		status := green.Sprint("available")
		if a.EngagedWith != "" {
			status = yellow.Sprint("with " + a.EngagedWith)
		}
		fmt.Fprintf(w, "  %-24s %s, %d queued, %d blacklisted\n", a.Name+" ("+a.ID+")", status, len(a.Queue), a.Blacklisted)
		for i, e := range a.Queue {
			gray.Fprintf(w, "      %d. %s since %s\n", i+1, e.UserID, e.EnqueuedAt.Format(time.Kitchen))
		}
	}

	fmt.Fprintln(w)
	cyan.Fprintln(w, "Sessions")
	if len(snap.Sessions) == 0 {
		gray.Fprintln(w, "  none")
	}
	for _, s := range snap.Sessions {
		line := fmt.Sprintf("  %-24s %-10s", s.UserID, s.Status)
		if s.AgentID != "" {
			line += " agent=" + s.AgentID
		}
		if s.RemainingSeconds != nil {
			line += fmt.Sprintf(" remaining=%ds", *s.RemainingSeconds)
		}
		fmt.Fprintln(w, line)
	}
	if snap.Selecting > 0 {
		gray.Fprintf(w, "\n%d user(s) choosing an agent\n", snap.Selecting)
	}
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	user := fs.String("user", "", "only events for this user")
	agent := fs.String("agent", "", "only events for this agent")
	typ := fs.String("type", "", "only events of this type")
	since := fs.Duration("since", 0, "only events newer than this (e.g. 24h)")
	limit := fs.Int("limit", 50, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is not configured; no history is recorded")
	}

	ledger, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer ledger.Close()

	f := store.EventFilter{Limit: *limit}
	if *user != "" {
		f.UserID = user
	}
	if *agent != "" {
		f.AgentID = agent
	}
	if *typ != "" {
		t := broker.EventType(*typ)
		f.Type = &t
	}
	if *since > 0 {
		t := time.Now().Add(-*since)
		f.Since = &t
	}

	events, err := ledger.ListEvents(ctx, f)
	if err != nil {
		return fmt.Errorf("listing events: %w", err)
	}
	gray := color.New(color.FgHiBlack)
	for _, e := range events {
		gray.Print(e.Timestamp.Local().Format("2006-01-02 15:04:05") + " ")
		fmt.Printf("%-14s %-24s %s", e.Type, e.UserID, e.AgentID)
		if e.Detail != "" {
			gray.Print("  " + e.Detail)
		}
		fmt.Println()
	}
	if len(events) == 0 {
		fmt.Println("no events")
	}
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "who the token is for")
	admin := fs.Bool("admin", false, "grant admin scope (blacklist changes)")
	expires := fs.Duration("expires", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("--subject is required")
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured")
	}
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return err
	}

	scope := auth.ScopeRead
	if *admin {
		scope = auth.ScopeAdmin
	}
	token, err := verifier.Generate(*subject, scope, *expires)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Println(token)
	return nil
}
