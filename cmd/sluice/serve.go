package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seaward/sluice/internal/core"
	"github.com/seaward/sluice/internal/source"
	"github.com/seaward/sluice/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with the background scheduler",
	Long: `Serve starts the web API, the per-source scheduler that triggers due
imports and expire passes, and file watchers for directory sources
configured with watch: true. Shutdown waits for active runs to reach
their checkpoint.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, err := buildService(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Store().Close()

		slog.Info("configuration loaded",
			"addr", cfg.Server.Addr(),
			"store", cfg.Store.Backend,
			"sources", len(svc.Sources()),
			"scheduler_enabled", cfg.Scheduler.Enabled,
			"rate_limit_enabled", cfg.Rate.Enabled,
		)

		server := web.NewServer(svc, cfg)

		// Background jobs stop before the HTTP server drains
		jobCtx, cancelJobs := context.WithCancel(context.Background())
		defer cancelJobs()

		if cfg.Scheduler.Enabled {
			go svc.StartScheduler(jobCtx, core.SchedulerConfig{
				CheckInterval:  cfg.Scheduler.CheckInterval,
				ExpireInterval: cfg.Scheduler.ExpireInterval,
			})
		}

		if err := startWatchers(jobCtx, svc); err != nil {
			return err
		}

		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			slog.Info("shutting down...")
			cancelJobs()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			// Let active runs reach their checkpoint before the process exits
			if status := svc.RunnerStatus(); status.Active > 0 {
				slog.Info("waiting for runs to suspend", "active", status.Active)
				if err := svc.WaitForRuns(shutdownCtx); err != nil {
					slog.Warn("runs did not finish in time", "error", err)
				}
			}

			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown error", "error", err)
			}
		}()

		slog.Info("server starting", "addr", cfg.Server.Addr())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		slog.Info("server stopped")
		return nil
	},
}

// startWatchers registers every watch-enabled directory source and runs
// the watcher in the background. Changed files trigger an import once the
// directory settles.
func startWatchers(ctx context.Context, svc *core.Service) error {
	watcher := source.NewWatcher(slog.Default(), func(name string) {
		if err := svc.StartOperation(ctx, name, core.OpImport); err != nil {
			slog.Debug("watch import skipped", "source", name, "reason", err)
		} else {
			slog.Info("watch import started", "source", name)
		}
	})

	registered := 0
	for _, spec := range svc.Sources() {
		if !spec.Watch || spec.Fetch.Type != "directory" {
			continue
		}
		if err := watcher.Add(spec.Name, spec.Fetch.Path); err != nil {
			return err
		}
		registered++
	}
	if registered == 0 {
		return nil
	}

	go func() {
		if err := watcher.Run(ctx); err != nil {
			slog.Error("watcher stopped", "error", err)
		}
	}()
	slog.Info("file watchers started", "sources", registered)
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
