// ABOUTME: Tests for coven-handoff CLI helpers
// ABOUTME: Covers API URL derivation, log levels, and snapshot printing

package main

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/2389/coven-handoff/internal/broker"
	"github.com/2389/coven-handoff/internal/config"
	"github.com/2389/coven-handoff/internal/session"
)

func TestAPIBase(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{HTTPAddr: "0.0.0.0:8095"}}
	assert.Equal(t, "http://127.0.0.1:8095", apiBase(cfg))

	cfg.Server.HTTPAddr = ":9000"
	assert.Equal(t, "http://127.0.0.1:9000", apiBase(cfg))

	cfg.Server.HTTPAddr = "10.0.0.5:8095"
	assert.Equal(t, "http://10.0.0.5:8095", apiBase(cfg))

	cfg.Tailscale = config.TailscaleConfig{Enabled: true, Hostname: "handoff"}
	assert.Equal(t, "https://handoff", apiBase(cfg))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestPrintSnapshot(t *testing.T) {
	color.NoColor = true
	remaining := int64(90)
	snap := broker.Snapshot{
		TakenAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Agents: []broker.AgentView{
			{ID: "alice", Name: "Alice", EngagedWith: "u1", Queue: []broker.QueueEntryView{{UserID: "u2"}}},
		},
		Sessions: []broker.SessionView{
			{UserID: "u1", AgentID: "alice", Status: session.StatusConnected, RemainingSeconds: &remaining},
		},
	}

	var buf bytes.Buffer
	printSnapshot(&buf, snap)
	out := buf.String()
	assert.Contains(t, out, "Alice (alice)")
	assert.Contains(t, out, "with u1, 1 queued")
	assert.Contains(t, out, "1. u2")
	assert.Contains(t, out, "remaining=90s")
}
