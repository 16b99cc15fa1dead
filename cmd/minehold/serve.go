package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/minehold/minehold/internal/alert"
	"github.com/minehold/minehold/internal/bridge"
	"github.com/minehold/minehold/internal/config"
	"github.com/minehold/minehold/internal/event"
	"github.com/minehold/minehold/internal/logger"
	"github.com/minehold/minehold/internal/metrics"
	"github.com/minehold/minehold/internal/playertrack"
	"github.com/minehold/minehold/internal/server"
	"github.com/minehold/minehold/internal/signals"
	"github.com/minehold/minehold/internal/store"
	"github.com/minehold/minehold/internal/tracing"
	"github.com/minehold/minehold/internal/watcher"
	"github.com/minehold/minehold/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the supervisor daemon",
	Long: `Start minehold in daemon mode. This is the default when no subcommand is
given. The daemon loads all registered server definitions, starts the ones
flagged for autostart, and serves metrics plus the websocket console.`,
	Run: runServe,
}

var watchMode bool

func init() {
	serveCmd.Flags().BoolVar(&watchMode, "watch", false, "Reload tunable settings when the config file changes")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Global.LogLevel, cfg.Global.LogFormat)
	slog.SetDefault(log)

	slog.Info("minehold starting",
		"version", version,
		"pid", os.Getpid(),
		"data_dir", cfg.Global.DataDir,
		"servers_dir", cfg.Global.ServersDir,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracingProvider, err := tracing.NewProvider(ctx, cfg.Tracing, version, log)
	if err != nil {
		slog.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Tracing shutdown error", "error", err)
		}
	}()

	if signals.IsPID1() {
		go signals.ReapZombies(ctx, log)
	}

	if err := os.MkdirAll(cfg.Global.DataDir, 0o755); err != nil {
		slog.Error("Failed to create data directory", "error", err)
		os.Exit(1)
	}
	st, err := store.New(filepath.Join(cfg.Global.DataDir, "minehold.db"))
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}

	bus := event.NewBus(cfg.Global.EventBufferSize, log)
	bus.OnDrop(func(subscriber string, e event.Event) {
		metrics.EventsDropped.WithLabelValues(subscriber).Inc()
	})
	defer bus.Close()

	registry, err := server.NewRegistry(cfg, st, bus, log)
	if err != nil {
		slog.Error("Failed to build registry", "error", err)
		os.Exit(1)
	}

	// Event consumers, each on its own subscription.
	tracker := playertrack.NewTracker(st, log)
	go tracker.Run(ctx, bus.Subscribe("playertrack"))

	alerter := alert.NewAlerter(cfg.Alerts, registry.Snapshots, log)
	go alerter.Run(ctx, bus.Subscribe("alert"))

	if cfg.Relay.Enabled {
		relay := bridge.NewRelay(cfg.Relay, log)
		go relay.Run(ctx, bus.Subscribe("relay"))
	}

	hub := ws.NewHub(cfg.Global.ConsoleHistoryLines, registry.Snapshots, ws.Controller{
		SendCommand: func(id, command string) error { return registry.SendCommand(ctx, id, command) },
		Start:       func(id string) error { return registry.Start(ctx, id) },
		Stop:        func(id string) error { return registry.Stop(ctx, id) },
		Restart:     func(id string) error { return registry.Restart(ctx, id) },
		Kill:        func(id string) error { return registry.Kill(ctx, id) },
	}, log)
	go hub.Run(ctx, bus.Subscribe("ws"))

	sampler := metrics.NewSampler(time.Duration(cfg.Global.SamplerInterval)*time.Second, registry.SampleTargets, log)
	go sampler.Run(ctx)

	var metricsServer *metrics.Server
	if cfg.Global.MetricsEnabled {
		metricsServer = metrics.NewServer(cfg.Global.MetricsPort, cfg.Global.MetricsPath, log)
		metricsServer.Handle("/ws", hub)
		if err := metricsServer.Start(ctx); err != nil {
			slog.Warn("Failed to start metrics server (continuing without it)", "error", err)
			metricsServer = nil
		}
	}

	registry.StartAutoStart(ctx)

	if watchMode {
		w, err := watcher.New(configPath(), 2*time.Second, func() error {
			newCfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger.SetLevel(newCfg.Global.LogLevel)
			alerter.SetConfig(newCfg.Alerts)
			slog.Info("Runtime settings reloaded",
				"log_level", newCfg.Global.LogLevel,
				"alerts_enabled", newCfg.Alerts.Enabled,
			)
			return nil
		}, log)
		if err != nil {
			slog.Error("Failed to create config watcher", "error", err)
			os.Exit(1)
		}
		if err := w.Start(ctx); err != nil {
			slog.Error("Failed to start config watcher", "error", err)
			os.Exit(1)
		}
		defer w.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	sig := <-sigChan
	slog.Info("Received shutdown signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Global.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	if err := registry.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown completed with errors", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("Metrics server shutdown error", "error", err)
		}
	}
	cancel()

	slog.Info("minehold shutdown complete")
}

// configPath resolves the effective config file path the same way
// config.Load does, for the file watcher.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if env := os.Getenv("MINEHOLD_CONFIG"); env != "" {
		return env
	}
	return "minehold.yaml"
}
