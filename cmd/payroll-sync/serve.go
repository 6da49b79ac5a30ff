package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/payroll-sync/api"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/store/sqlite"
)

var (
	serveAddr     string
	serveInterval time.Duration
	noSchedule    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the status API and run syncs on an interval",
	Long: `Starts the HTTP status API (run history, period lookup, manual
trigger) and a scheduler that runs a sync immediately and then every
--interval. Scheduled and manual runs never overlap.

On SIGINT/SIGTERM the scheduler cancels any in-flight run, active requests
get 30 seconds to finish, and the history database is closed.`,
	Args: cobra.NoArgs,
	RunE: serve,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 0, "sync interval (overrides config)")
	serveCmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "only run syncs triggered over HTTP")
}

func serve(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveInterval > 0 {
		cfg.Server.Interval = serveInterval
	}

	// Initialize store
	history, err := sqlite.New(cfg.History.DatabasePath)
	if err != nil {
		return err
	}
	defer history.Close()

	repo, err := newRepository(cfg)
	if err != nil {
		return err
	}
	opts, err := cfg.Options(false)
	if err != nil {
		return err
	}
	orch := payroll.NewOrchestrator(repo, history, opts, logger)
	runner := api.NewRunner(orch, newPublisher(cfg, true), logger.Named("runner"))

	handler := api.NewHandler(history, runner, opts.Calendar, opts.Location, logger.Named("api"))
	router := api.NewRouter(handler, cfg.Server.CORSOrigins)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		// POST /api/runs answers when the run ends.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	scheduler := api.NewSyncScheduler(runner, logger)
	scheduler.Interval = cfg.Server.Interval
	scheduler.Enabled = !noSchedule
	handler.NextRun = scheduler.NextRunTime

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("status server starting", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-serverErr:
		scheduler.Stop()
		return err
	}

	logger.Info("shutting down")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
