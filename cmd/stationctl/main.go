// stationctl runs the lab workstation orchestrator: it loads site
// configuration, wires the core components (C4-C9), optionally starts the
// Operator API (C10), and serves until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/synthline/corestation/pkg/api"
	"github.com/synthline/corestation/pkg/chemical"
	"github.com/synthline/corestation/pkg/config"
	"github.com/synthline/corestation/pkg/coordinator"
	"github.com/synthline/corestation/pkg/notify"
	"github.com/synthline/corestation/pkg/sink"
	"github.com/synthline/corestation/pkg/station"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		// Logging isn't wired yet at this point (its own level/format come
		// from cfg), so a Configuration fault here is fatal before we can
		// build a structured logger at all.
		fmt.Fprintf(os.Stderr, "stationctl: load config: %v\n", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("stationctl starting", "config_dir", *configDir)

	directoryEntries, err := chemical.LoadEntries(cfg.ChemicalDirectory.Path)
	if err != nil {
		logger.Error("load chemical directory", "error", err)
		os.Exit(1)
	}
	report := chemical.Validate(directoryEntries)
	if !report.OK() {
		for _, e := range report.Errors {
			logger.Warn("chemical directory validation", "error", e)
		}
	}
	directoryEntries = chemical.Deduplicate(directoryEntries)
	directory := chemical.NewDirectory(directoryEntries)
	logger.Info("chemical directory loaded", "entries", len(directoryEntries))

	stationClient := station.NewClient(station.Config{
		BaseURL:   cfg.Station.BaseURL,
		Username:  cfg.Station.Username,
		Password:  cfg.Station.Password,
		Timeout:   cfg.Station.Timeout,
		VerifySSL: cfg.Station.VerifySSL,
	}, logger)

	fileSink, err := sink.NewFileSink(cfg.Sink.Dir, logger)
	if err != nil {
		logger.Error("construct sink", "error", err)
		os.Exit(1)
	}

	var notifier coordinator.Notifier = notify.NoopNotifier{}
	if cfg.Notifier.Enabled {
		client := notify.NewClient(cfg.Notifier.Token, cfg.Notifier.Channel, logger)
		notifier = notify.NewSlackNotifier(client, 10*time.Second, logger)
		logger.Info("notifier enabled", "channel", cfg.Notifier.Channel)
	}

	coord := coordinator.New(stationClient, fileSink, notifier, cfg.Station.Username, cfg.Station.Password, logger)

	if !cfg.API.Enabled {
		logger.Info("operator API disabled, running as a CLI-only deployment")
		waitForSignal(logger)
		return
	}

	server := api.NewServer(coord, cfg.Polling.Interval)
	server.SetDirectory(directory)
	if cfg.Notifier.Enabled {
		server.SetNotifier(notifier)
	}
	if err := server.ValidateWiring(); err != nil {
		logger.Error("server wiring incomplete", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("operator API listening", "addr", cfg.API.ListenAddr)
		errCh <- server.Start(cfg.API.ListenAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("operator API stopped", "error", err)
			os.Exit(1)
		}
	case <-sigCh:
		logger.Info("stationctl shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("operator API shutdown", "error", err)
		}
	}
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// waitForSignal blocks until SIGINT/SIGTERM in a CLI-only deployment —
// there is nothing else keeping the process alive once the Coordinator is
// constructed, since every orchestration call is driven by an external
// caller (a script, a future non-HTTP frontend) holding this process's
// Coordinator reference directly rather than through the Operator API.
func waitForSignal(logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("stationctl exiting")
}
