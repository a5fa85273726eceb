package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperdag-network/repid/internal/api"
	"github.com/hyperdag-network/repid/internal/config"
	"github.com/hyperdag-network/repid/internal/infra/observability"
	"github.com/hyperdag-network/repid/internal/infra/reputation"
	"github.com/hyperdag-network/repid/internal/infra/sqlite"
	"github.com/hyperdag-network/repid/internal/ingest"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the RepID daemon",
	Long: `Start the RepID daemon: restore engine state from the SQLite snapshot,
serve the HTTP API, optionally subscribe to NATS validation events, and
snapshot the engine periodically until interrupted.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogging(cfg.Log.Level)
	logger.Info("repid starting", "version", Version)

	engine, err := reputation.NewEngine(cfg.Policy())
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	// Persistence is optional: an empty path runs in-memory only.
	var db *sqlite.DB
	if cfg.Storage.Path != "" {
		db, err = sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open snapshot store: %w", err)
		}
		defer db.Close()

		snapshots, err := db.LoadSnapshots()
		if err != nil {
			return fmt.Errorf("load snapshots: %w", err)
		}
		engine.Restore(snapshots)
		logger.Info("state restored", "path", cfg.Storage.Path, "agents", len(snapshots))
	} else {
		logger.Warn("storage.path empty, running without persistence")
	}

	server := api.NewServer(engine, logger)
	if cfg.API.MetricsEnabled {
		server.EnableMetrics()
	}

	addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var consumer *ingest.Consumer
	if cfg.Ingest.Enabled {
		consumer, err = ingest.NewConsumer(cfg.Ingest.URL, cfg.Ingest.Token, cfg.Ingest.Subject, engine, logger)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		if err := consumer.Start(); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		defer consumer.Close()
	}

	stopSnapshots := make(chan struct{})
	if db != nil {
		interval, err := time.ParseDuration(cfg.Storage.SnapshotInterval)
		if err != nil {
			return fmt.Errorf("parse storage.snapshot_interval: %w", err)
		}
		go snapshotLoop(db, engine, interval, stopSnapshots, logger)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	close(stopSnapshots)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	if db != nil {
		if err := saveSnapshot(db, engine); err != nil {
			logger.Error("final snapshot failed", "error", err)
		} else {
			logger.Info("final snapshot written", "path", cfg.Storage.Path)
		}
	}

	logger.Info("repid stopped")
	return nil
}

// snapshotLoop writes the full engine state to SQLite on a fixed interval.
func snapshotLoop(db *sqlite.DB, engine *reputation.Engine, interval time.Duration, stop <-chan struct{}, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := saveSnapshot(db, engine); err != nil {
				logger.Error("snapshot failed", "error", err)
			}
		case <-stop:
			return
		}
	}
}

func saveSnapshot(db *sqlite.DB, engine *reputation.Engine) error {
	start := time.Now()
	snapshots := engine.Snapshot()
	if err := db.SaveSnapshot(snapshots); err != nil {
		return err
	}
	observability.SnapshotDuration.Observe(time.Since(start).Seconds())
	observability.SnapshotAgents.Set(float64(len(snapshots)))
	return nil
}

// setupLogging installs a JSON slog handler at the configured level.
func setupLogging(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
