package api

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/report"
)

// RunStarter is satisfied by *payroll.Orchestrator.
type RunStarter interface {
	TryRun(ctx context.Context) (*payroll.RunSummary, error)
}

// Publisher is satisfied by *report.Publisher.
type Publisher interface {
	Publish(ctx context.Context, s *payroll.RunSummary) report.Published
}

// Runner serializes runs from the scheduler and the API and publishes
// every finished summary.
type Runner struct {
	orch    RunStarter
	publish Publisher
	logger  *zap.Logger
}

// NewRunner wires a runner. publish may be nil.
func NewRunner(orch RunStarter, publish Publisher, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{orch: orch, publish: publish, logger: logger}
}

// Trigger runs once. It returns payroll.ErrRunInProgress without running
// when another run holds the guard.
func (r *Runner) Trigger(ctx context.Context) (*payroll.RunSummary, error) {
	summary, err := r.orch.TryRun(ctx)
	if errors.Is(err, payroll.ErrRunInProgress) {
		return nil, err
	}
	if summary != nil && r.publish != nil {
		r.publish.Publish(ctx, summary)
	}
	return summary, err
}
