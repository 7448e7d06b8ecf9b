// Command fleetd is the fleet workflow engine daemon: it wires the
// SQLite store, the vendor dispatch client, the robot state poller, and
// the workflow runner together, then drives the tick loop and the
// poller's independent loop until told to shut down.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetcore/engine/internal/adapter"
	"github.com/fleetcore/engine/internal/config"
	"github.com/fleetcore/engine/internal/log"
	"github.com/fleetcore/engine/internal/store/sqlite"
	"github.com/fleetcore/engine/pkg/engine"
	"github.com/fleetcore/engine/pkg/eventbus"
	"github.com/fleetcore/engine/pkg/robotmonitor"
	"github.com/fleetcore/engine/pkg/vendorclient"
)

// Version information (injected via ldflags at build time).
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to fleetd.yaml (optional; env vars always take precedence)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("fleetd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fleetd exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := sqlite.New(sqlite.Config{Path: cfg.DataDir + "/fleet.db", WAL: true})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	vendorCfg := vendorclient.Config{
		BaseURL:         cfg.Vendor.BaseURL,
		AppID:           cfg.Vendor.AppID,
		AppSecret:       cfg.Vendor.AppSecret,
		AppCode:         cfg.Vendor.AppCode,
		TokenTTL:        cfg.Vendor.TokenTTL,
		RequestTimeout:  cfg.Vendor.RequestTimeout,
		RateLimitPerSec: cfg.Vendor.RateLimitPerSec,
	}
	vendor, err := vendorclient.New(vendorCfg)
	if err != nil {
		return fmt.Errorf("build vendor client: %w", err)
	}

	directory := adapter.NewRobotDirectory(vendor)
	vendorTasks := adapter.NewVendorTasks(vendor)
	stateFetcher := adapter.NewStateFetcher(vendor)

	bus := eventbus.New("fleetd")

	resolver := engine.NewResolver(directory, store)
	planner := engine.NewPlanner(resolver)
	runner := engine.NewRunner(store, planner, directory, vendorTasks, bus, cfg.SafeMode, cfg.AutoReassignOnOffline)

	cache := robotmonitor.NewCache()
	poller := robotmonitor.NewPoller(stateFetcher, cache, bus, cfg.RobotIDs,
		time.Duration(cfg.PollIntervalSeconds*float64(time.Second)))

	logger.Info("starting fleetd",
		slog.Int("robot_count", len(cfg.RobotIDs)),
		slog.Bool("safe_mode", cfg.SafeMode),
		slog.Bool("auto_reassign_on_offline", cfg.AutoReassignOnOffline),
	)

	poller.Start(ctx)
	defer poller.Stop()

	stopMetrics := startMetricsServer(cfg.MetricsAddr, logger)
	defer stopMetrics()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(time.Duration(cfg.TickIntervalSeconds * float64(time.Second)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", slog.String("signal", sig.String()))
			return nil
		case <-ticker.C:
			tickOnce(ctx, runner, logger)
		}
	}
}

func tickOnce(ctx context.Context, runner *engine.Runner, logger *slog.Logger) {
	result, err := runner.Tick(ctx)
	if err != nil {
		logger.Error("tick pass failed", slog.Any("error", err))
		return
	}
	if result.Progressed > 0 || result.Finished > 0 || result.Failed > 0 {
		logger.Debug("tick complete",
			slog.Int("progressed", result.Progressed),
			slog.Int("finished", result.Finished),
			slog.Int("failed", result.Failed),
		)
	}
}

func startMetricsServer(addr string, logger *slog.Logger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
