// Package main implements the entry point for the FileStream daemon.
// FileStream reconstructs files carried over network streams and runs
// per-file analyzers (extraction, inspection) as bytes arrive.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360/filestream/analyzer"
	"github.com/c360/filestream/analyzer/extract"
	"github.com/c360/filestream/config"
	"github.com/c360/filestream/event"
	"github.com/c360/filestream/ingest"
	"github.com/c360/filestream/manager"
	"github.com/c360/filestream/metric"
	"github.com/c360/filestream/natsclient"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "filestreamd"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	// Run application with proper error handling
	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	// Parse and validate CLI flags
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	// Load and validate configuration
	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()

	// Setup core infrastructure
	metricsRegistry := metric.NewMetricsRegistry()
	natsClient, err := createNATSClient(cfg, metricsRegistry, logger)
	if err != nil {
		return err
	}

	if err := connectToNATS(ctx, natsClient); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
		defer cancel()
		_ = natsClient.Close(closeCtx)
	}()

	// Metrics endpoint
	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry)
		go func() {
			if err := metricsServer.Start(); err != nil {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() { _ = metricsServer.Stop() }()
		slog.Info("Metrics server started", "address", metricsServer.Address())
	}

	// Analyzer registry with built-in analyzer types
	registry := analyzer.NewRegistry()
	if err := extract.Register(registry); err != nil {
		return fmt.Errorf("register analyzers: %w", err)
	}
	slog.Info("Analyzer types registered", "types", registry.Types())

	// Notification emitter publishing to the bus
	events := event.NewNATSEmitter(natsClient, cfg.Events.SubjectPrefix, logger)

	// File manager
	mgrOpts := []manager.Option{
		manager.WithLogger(logger),
		manager.WithEvents(events),
		manager.WithMetrics(metricsRegistry),
	}
	if cfg.Extract.Dir != "" {
		mgrOpts = append(mgrOpts, manager.WithAutoAttach(extractAutoAttach(cfg.Extract)))
		slog.Info("Extraction auto-attach enabled",
			"dir", cfg.Extract.Dir, "default_limit", cfg.Extract.DefaultLimit)
	}
	mgr, err := manager.New(registry, mgrOpts...)
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}
	defer mgr.Shutdown()

	// Bus ingest
	ing, err := ingest.New(mgr,
		ingest.WithLogger(logger),
		ingest.WithEvents(events),
		ingest.WithMetrics(metricsRegistry),
	)
	if err != nil {
		return fmt.Errorf("create ingest: %w", err)
	}

	// Run with signal handling
	return runWithSignalHandling(ctx, ing, natsClient, mgr, cfg)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting FileStream (network file analysis)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// createNATSClient builds the bus client from configuration
func createNATSClient(
	cfg *config.Config,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*natsclient.Client, error) {
	natsURL := cfg.NATS.URL
	if envURL := os.Getenv("FILESTREAM_NATS_URL"); envURL != "" {
		natsURL = envURL
	}

	opts := []natsclient.ClientOption{
		natsclient.WithName(cfg.NATS.ClientName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithLogger(&natsLogger{logger: logger.With("component", "nats")}),
		natsclient.WithMetrics(metricsRegistry),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	natsClient, err := natsclient.NewClient(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}
	return natsClient, nil
}

// connectToNATS establishes NATS connection and waits for it to be ready
func connectToNATS(ctx context.Context, natsClient *natsclient.Client) error {
	slog.Info("Connecting to NATS")
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("NATS connection timeout: %w", err)
	}

	return nil
}

// runWithSignalHandling starts the ingest and idle reaper, then waits for
// shutdown signals
func runWithSignalHandling(
	ctx context.Context,
	ing *ingest.Ingest,
	natsClient *natsclient.Client,
	mgr *manager.Manager,
	cfg *config.Config,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := ing.Start(signalCtx, natsClient); err != nil {
		return fmt.Errorf("start ingest: %w", err)
	}

	// Idle-file reaper
	if cfg.Idle.MaxAge > 0 {
		go runIdleReaper(signalCtx, mgr, cfg.Idle.MaxAge, cfg.Idle.SweepInterval)
		slog.Info("Idle reaper started",
			"max_age", cfg.Idle.MaxAge,
			"sweep_interval", cfg.Idle.SweepInterval)
	}

	slog.Info("FileStream started successfully")

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	return nil
}

// extractAutoAttach builds the auto-attach hook that gives every new file an
// extraction analyzer writing into the configured directory.
func extractAutoAttach(cfg config.ExtractConfig) func(string) []manager.AttachSpec {
	return func(fileID string) []manager.AttachSpec {
		args, err := json.Marshal(extract.Config{
			Path:  filepath.Join(cfg.Dir, sinkFileName(fileID)),
			Limit: cfg.DefaultLimit,
		})
		if err != nil {
			return nil
		}
		return []manager.AttachSpec{{Type: extract.Name, Args: args}}
	}
}

// sinkFileName maps an opaque file identifier to a safe sink file name.
// Identifiers come from the network and must not steer the sink path.
func sinkFileName(fileID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, fileID)
}

// runIdleReaper periodically aborts files that have gone quiet
func runIdleReaper(ctx context.Context, mgr *manager.Manager, maxAge, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := mgr.RemoveIdle(maxAge); removed > 0 {
				slog.Info("Removed idle files", "count", removed)
			}
		}
	}
}
