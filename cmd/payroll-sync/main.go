/*
main.go - payroll-sync entry point

PURPOSE:
  Syncs approved Noloco timesheets into one payroll record per employee
  per bi-weekly period. Built for a cron entry (`payroll-sync run`) and
  for a long-running status server (`payroll-sync serve`).

COMMANDS:
  run       One batch run against the current period
  serve     Status API plus the interval scheduler
  period    Print the canonical period for a date
  history   List recent runs from the history database

GLOBAL FLAGS:
  --config   YAML config file (default: payroll-sync.yaml, optional)
  --verbose  Debug logging

EXIT CODES:
  0    Run completed (skipped groups are reported, not fatal)
  1    Configuration error or a run aborted by a fatal error
  130  Interrupted

SEE ALSO:
  - config/config.go: Settings and environment variables
  - payroll/orchestrator.go: The run itself
*/
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	// The business timezone must load on hosts without a zoneinfo database.
	_ "time/tzdata"

	"github.com/warp/payroll-sync/config"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:   "payroll-sync",
	Short: "Reconcile Noloco timesheets into bi-weekly payroll records",
	Long: `payroll-sync groups approved timesheets by employee and pay period and
makes sure each group has exactly one payroll record linking exactly those
timesheets. Runs are idempotent: running twice changes nothing.

Credentials come from the environment (or .env):
  NOLOCO_API_TOKEN, NOLOCO_PROJECT_ID`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = buildLogger(cfg.Logging, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "payroll-sync.yaml", "config file (YAML, optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd, serveCmd, periodCmd, historyCmd)
}

func buildLogger(lc config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if lc.Level != "" {
		level, err := zapcore.ParseLevel(strings.ToLower(lc.Level))
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err)

	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	os.Exit(1)
}
