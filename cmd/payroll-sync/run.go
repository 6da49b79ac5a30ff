package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/payroll-sync/config"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/report"
	"github.com/warp/payroll-sync/store/noloco"
	"github.com/warp/payroll-sync/store/sqlite"
)

var (
	dryRun    bool
	noEmail   bool
	reportDir string
)

// runCmd is the cron entry point.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one payroll sync for the current period",
	Long: `Fetches every timesheet and payroll record, reconciles the current
pay period and prints a summary. Runs with issues are emailed when
GMAIL_EMAIL, GMAIL_APP_PASSWORD and EMAIL_RECIPIENTS are set.

With --dry-run every plan is computed and validated but nothing is
written to Noloco.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan and validate without writing")
	runCmd.Flags().BoolVar(&noEmail, "no-email", false, "never send the summary email")
	runCmd.Flags().StringVar(&reportDir, "report-dir", "", "directory for the run workbook (overrides config)")
}

func runSync(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if reportDir != "" {
		cfg.Report.Dir = reportDir
	}

	repo, err := newRepository(cfg)
	if err != nil {
		return err
	}

	var recorder payroll.RunRecorder
	history, err := sqlite.New(cfg.History.DatabasePath)
	if err != nil {
		logger.Warn("run history unavailable, continuing without it",
			zap.String("path", cfg.History.DatabasePath), zap.Error(err))
	} else {
		defer history.Close()
		recorder = history
	}

	opts, err := cfg.Options(dryRun)
	if err != nil {
		return err
	}
	orch := payroll.NewOrchestrator(repo, recorder, opts, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, runErr := orch.Run(ctx)
	if summary != nil {
		fmt.Fprintln(cmd.OutOrStdout(), summary.String())

		published := newPublisher(cfg, !noEmail).Publish(context.WithoutCancel(ctx), summary)
		if published.Path != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Report saved to %s\n", published.Path)
		}
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, context.Canceled):
		return &exitError{code: 130, err: fmt.Errorf("payroll sync interrupted: %w", runErr)}
	default:
		return &exitError{code: 1, err: fmt.Errorf("payroll sync failed: %w", runErr)}
	}
}

func newRepository(c *config.Config) (*noloco.Repository, error) {
	clientCfg, err := c.ClientConfig()
	if err != nil {
		return nil, err
	}
	client, err := noloco.NewClient(clientCfg, nil, logger.Named("noloco"))
	if err != nil {
		return nil, err
	}
	return noloco.NewRepository(client, logger.Named("noloco")), nil
}

// newPublisher attaches a mailer only when email is wanted and configured.
func newPublisher(c *config.Config, email bool) *report.Publisher {
	var mailer *report.Mailer
	if email {
		m, err := report.NewMailer(c.Email, logger.Named("mail"))
		if err != nil {
			logger.Info("email report disabled", zap.Error(err))
		} else {
			mailer = m
		}
	}
	return report.NewPublisher(c.Report.Dir, mailer, logger.Named("report"))
}
