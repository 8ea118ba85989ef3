// ABOUTME: Entry point for coven-handoff, the human hand-off service for Matrix bots
// ABOUTME: Dispatches serve, init, health, state, history, and token subcommands

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/coven-handoff/internal/adminapi"
	"github.com/2389/coven-handoff/internal/auth"
	"github.com/2389/coven-handoff/internal/broker"
	"github.com/2389/coven-handoff/internal/clock"
	"github.com/2389/coven-handoff/internal/command"
	"github.com/2389/coven-handoff/internal/config"
	"github.com/2389/coven-handoff/internal/matrix"
	"github.com/2389/coven-handoff/internal/metrics"
	"github.com/2389/coven-handoff/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                    _                     _        __  __
  ___ _____   _____ _ __        | |__   __ _ _ __   __| | ___  / _|/ _|
 / __/ _ \ \ / / _ \ '_ \ _____ | '_ \ / _' | '_ \ / _' |/ _ \| |_| |_
| (_| (_) \ V /  __/ | | |_____|| | | | (_| | | | | (_| | (_) |  _|  _|
 \___\___/ \_/ \___|_| |_|      |_| |_|\__,_|_| |_|\__,_|\___/|_| |_|
`

func usage() {
	fmt.Println("Usage: coven-handoff <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                          Start the hand-off bridge and admin API")
	fmt.Println("  init                           Write a starter config file")
	fmt.Println("  health                         Check service readiness")
	fmt.Println("  state                          Show agents, sessions, and queues")
	fmt.Println("  history [--user U] [--limit N] List recorded hand-off events")
	fmt.Println("  token --subject S [--admin]    Issue an admin API token")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: reading .env: %v\n", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "state":
		err = runState(ctx)
	case "history":
		err = runHistory(ctx, os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)
	printStartup(configPath, cfg)

	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	return svc.run(ctx)
}

func printStartup(configPath string, cfg *config.Config) {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("Bot:        %s\n", cfg.Matrix.UserID)
	green.Print("    ▶ ")
	fmt.Printf("Agents:     %d\n", len(cfg.Broker.Agents))
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale:  ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:       %s\n", cfg.Server.HTTPAddr)
	}
	if cfg.Matrix.Encryption.Enabled {
		green.Print("    ▶ ")
		fmt.Println("Encryption: enabled")
	}
	if cfg.Database.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Ledger:     %s\n", cfg.Database.Path)
	}
	fmt.Println()
}

// service holds the running components of serve.
type service struct {
	broker     *broker.Broker
	bridge     *matrix.Bridge
	http       *adminapi.Server
	ledger     *store.SQLiteStore
	encryption *matrix.Encryption
	logger     *slog.Logger
}

func newService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *service, err error) {
	svc := &service{logger: logger}
	defer func() {
		if err != nil {
			svc.close()
		}
	}()

	opts := broker.Options{
		Clock:          clock.Real{},
		Logger:         logger,
		RecordMessages: cfg.Database.RecordMessages,
	}

	if cfg.Database.Path != "" {
		svc.ledger, err = store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
		opts.Events = svc.ledger
	}

	var recorder *metrics.PrometheusRecorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewPrometheusRecorder()
		opts.Recorder = recorder
	}

	client, err := matrix.NewClient(cfg.Matrix.Homeserver, cfg.Matrix.UserID, cfg.Matrix.AccessToken, cfg.Matrix.DeviceID)
	if err != nil {
		return nil, err
	}
	if cfg.Matrix.Encryption.Enabled {
		svc.encryption, err = matrix.SetupEncryption(ctx, client, cfg.Matrix.Encryption, cfg.DataDir(), logger)
		if err != nil {
			return nil, fmt.Errorf("setting up encryption: %w", err)
		}
	} else {
		logger.Info("encryption disabled")
	}

	notifier := matrix.NewNotifier(client, cfg.Matrix.Encryption.Enabled, logger)
	opts.Notifier = notifier

	svc.broker, err = broker.New(cfg.BrokerSettings(), opts)
	if err != nil {
		return nil, fmt.Errorf("creating broker: %w", err)
	}

	parser := command.NewParser(cfg.Matrix.CommandPrefix)
	svc.bridge = matrix.NewBridge(client, notifier, command.NewDispatcher(svc.broker, parser, logger), matrix.BridgeOptions{
		UserID:       cfg.Matrix.UserID,
		AllowedRooms: cfg.Matrix.AllowedRooms,
		Parser:       parser,
		Agents:       svc.broker,
		Logger:       logger,
	})

	apiOpts := adminapi.Options{
		Broker:      svc.broker,
		MetricsPath: cfg.Metrics.Path,
		Logger:      logger,
	}
	if svc.ledger != nil {
		apiOpts.Ledger = svc.ledger
	}
	if recorder != nil {
		apiOpts.Metrics = recorder.Handler()
	}
	if cfg.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("creating token verifier: %w", err)
		}
		apiOpts.Verifier = verifier
	}
	svc.http = adminapi.NewServer(*cfg, adminapi.NewRouter(apiOpts), logger)

	return svc, nil
}

// run blocks until ctx is cancelled or either the bridge or the HTTP server fails.
func (s *service) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- s.bridge.Run(ctx) }()
	go func() { errCh <- s.http.Run(ctx) }()

	s.logger.Info("coven-handoff running")

	err := <-errCh
	cancel()
	if second := <-errCh; err == nil {
		err = second
	}
	return err
}

func (s *service) close() {
	if s.broker != nil {
		s.broker.Close()
	}
	if s.encryption != nil {
		if err := s.encryption.Close(); err != nil {
			s.logger.Warn("closing crypto store", "error", err)
		}
	}
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			s.logger.Warn("closing ledger", "error", err)
		}
	}
}
