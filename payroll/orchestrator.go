/*
orchestrator.go - Drives one full payroll run

PURPOSE:
  Fetch → filter → group → validate → reconcile → persist → verify →
  summarize, for the canonical period containing "now".

RUN SHAPE:
  1. Read every timesheet and payroll record once (Snapshot).
  2. Compute the canonical period from the calendar, never from data.
  3. Group qualifying timesheets by employee and handle each group:
     clock-pair check, duplicate-payroll check, plan, write, verify.
  4. Orphan pass: every record in the period whose employee had no group
     this run is re-planned with no new ids, so revoked approvals shrink it.
  5. Record the summary.

FAILURE SCOPE:
  A validation or write error fails only its group; the run continues.
  Errors wrapping generic.ErrFatal (rejected credentials) and context
  cancellation abort the run. Failed groups are never marked processed, so
  the next run picks them up again.

SEE ALSO:
  - engine.go: Plans and writes
  - validation.go: Checks
  - summary.go: RunSummary
  - api/scheduler.go: Periodic runs
*/
package payroll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-sync/generic"
)

// Options configures a run.
type Options struct {
	Calendar generic.BiweeklyCalendar
	Location *time.Location
	Engine   EngineConfig
	Advisory AdvisoryConfig

	// DryRun plans and validates everything but writes nothing.
	DryRun bool

	// Now and NewRunID are injectable for tests.
	Now      func() time.Time
	NewRunID func() string
}

func (o Options) withDefaults() Options {
	if o.Calendar.Reference.IsZero() {
		o.Calendar = generic.DefaultCalendar()
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Advisory == (AdvisoryConfig{}) {
		o.Advisory = DefaultAdvisoryConfig()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewRunID == nil {
		o.NewRunID = uuid.NewString
	}
	return o
}

// Orchestrator runs reconciliation against one platform.
type Orchestrator struct {
	platform Platform
	engine   *Engine
	verifier *Verifier
	recorder RunRecorder
	opts     Options
	logger   *zap.Logger

	mu sync.Mutex
}

// NewOrchestrator wires a run. recorder may be nil.
func NewOrchestrator(platform Platform, recorder RunRecorder, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Orchestrator{
		platform: platform,
		engine:   NewEngine(platform, platform, platform, opts.Engine, logger),
		verifier: NewVerifier(platform, logger),
		recorder: recorder,
		opts:     opts,
		logger:   logger,
	}
}

// CurrentPeriod is the canonical period containing now in the business
// timezone.
func (o *Orchestrator) CurrentPeriod() generic.Period {
	return o.opts.Calendar.PeriodFor(generic.DayOf(o.opts.Now().In(o.opts.Location)))
}

// TryRun is Run unless another run is active, in which case it returns
// ErrRunInProgress without waiting.
func (o *Orchestrator) TryRun(ctx context.Context) (*RunSummary, error) {
	if !o.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer o.mu.Unlock()
	return o.run(ctx)
}

// Run performs one full reconciliation, waiting for any active run first.
// The summary is returned even when err is non-nil.
func (o *Orchestrator) Run(ctx context.Context) (*RunSummary, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run(ctx)
}

func (o *Orchestrator) run(ctx context.Context) (*RunSummary, error) {
	period := o.CurrentPeriod()
	summary := &RunSummary{
		RunID:       o.opts.NewRunID(),
		DryRun:      o.opts.DryRun,
		Period:      period,
		PaymentDate: o.opts.Calendar.PaymentDate(period.End),
		StartedAt:   o.opts.Now(),
		Status:      RunRunning,
	}
	log := o.logger.With(zap.String("run_id", summary.RunID))
	log.Info("payroll run started",
		zap.String("period_start", period.Start.String()),
		zap.String("period_end", period.End.String()),
		zap.Bool("dry_run", o.opts.DryRun))

	if o.recorder != nil {
		if err := o.recorder.StartRun(ctx, summary); err != nil {
			log.Warn("could not record run start", zap.Error(err))
		}
	}

	err := o.reconcile(ctx, summary, log)

	summary.FinishedAt = o.opts.Now()
	summary.Status = RunCompleted
	if err != nil {
		summary.Status = RunFailed
		summary.Error = err.Error()
	}

	if o.recorder != nil {
		// A cancelled run is still recorded as failed.
		if rerr := o.recorder.FinishRun(context.WithoutCancel(ctx), summary); rerr != nil {
			log.Warn("could not record run result", zap.Error(rerr))
		}
	}

	c := summary.Counts()
	log.Info("payroll run finished",
		zap.String("status", string(summary.Status)),
		zap.Int("created", c.Created),
		zap.Int("updated", c.Updated),
		zap.Int("unchanged", c.Unchanged),
		zap.Int("skipped", c.Skipped),
		zap.Int("failed", c.Failed),
		zap.Int("planned", c.Planned),
		zap.Int("advisories", len(summary.Advisories)),
		zap.Duration("took", summary.Duration()))

	return summary, err
}

func (o *Orchestrator) reconcile(ctx context.Context, summary *RunSummary, log *zap.Logger) error {
	period := summary.Period

	snap, err := LoadSnapshot(ctx, o.platform, o.platform)
	if err != nil {
		return err
	}
	summary.TimesheetsFetched = len(snap.Timesheets)
	summary.PayrollsFetched = len(snap.Payrolls)

	for _, rec := range snap.RecordsInPeriod(period) {
		if missing, stale := snap.Drift(rec); len(missing) > 0 || len(stale) > 0 {
			log.Warn("cached relation differs from back-references",
				zap.String("payroll_id", rec.ID),
				zap.Strings("missing_from_cache", missing),
				zap.Strings("stale_in_cache", stale))
		}
	}

	qualifying := Qualifying(snap.Timesheets, period)
	summary.Qualifying = len(qualifying)

	groups, missingPIN := GroupByEmployee(qualifying, period)
	for _, ts := range missingPIN {
		summary.warn("timesheet %s skipped: %v", ts.ID, ErrMissingEmployeePIN)
		log.Warn("skipping timesheet without employee", zap.String("timesheet_id", ts.ID))
	}

	summary.Advisories = CheckAdvisories(snap.Timesheets, period, o.opts.Now().In(o.opts.Location), o.opts.Advisory)

	log.Info("snapshot loaded",
		zap.Int("timesheets", summary.TimesheetsFetched),
		zap.Int("payrolls", summary.PayrollsFetched),
		zap.Int("qualifying", summary.Qualifying),
		zap.Int("groups", len(groups)))

	dups := DuplicatePayrolls(snap, period)
	claims := NewClaims()
	grouped := make(map[string]bool, len(groups))

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		grouped[g.EmployeePIN] = true
		outcome, err := o.processGroup(ctx, snap, g, dups, claims, summary.RunID, log)
		summary.addOutcome(outcome)
		if err != nil {
			return err
		}
	}

	reportedDup := make(map[string]bool)
	for _, rec := range snap.RecordsInPeriod(period) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if grouped[rec.EmployeePIN] {
			continue
		}
		if dup, ok := dups[rec.EmployeePIN]; ok {
			if !reportedDup[rec.EmployeePIN] {
				reportedDup[rec.EmployeePIN] = true
				summary.addOutcome(o.skip(Outcome{EmployeePIN: rec.EmployeePIN, Pass: PassOrphan}, dup, log))
			}
			continue
		}
		outcome, err := o.processOrphan(ctx, snap, rec, period, claims, summary.RunID, log)
		summary.addOutcome(outcome)
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) processGroup(
	ctx context.Context,
	snap *Snapshot,
	g Group,
	dups map[string]*DuplicatePayrollError,
	claims *Claims,
	runID string,
	log *zap.Logger,
) (Outcome, error) {
	outcome := Outcome{
		EmployeePIN: g.EmployeePIN,
		Pass:        PassGroup,
		TotalHours:  g.TotalHours(),
	}

	if err := CheckClockPairs(g); err != nil {
		return o.skip(outcome, err, log), nil
	}
	if dup, ok := dups[g.EmployeePIN]; ok {
		return o.skip(outcome, dup, log), nil
	}

	var plan Plan
	existing := snap.RecordsFor(g.Key())
	if len(existing) == 1 {
		plan = PlanUpdate(snap, existing[0], g.Period, g.IDs())
		outcome.PayRate = existing[0].PayRate
	} else {
		plan = PlanCreate(g)
	}
	if err := claims.Claim(plan.Key, plan.PayrollID); err != nil {
		return o.skip(outcome, err, log), nil
	}

	return o.execute(ctx, snap, plan, outcome, runID, log)
}

func (o *Orchestrator) processOrphan(
	ctx context.Context,
	snap *Snapshot,
	rec PayrollRecord,
	period generic.Period,
	claims *Claims,
	runID string,
	log *zap.Logger,
) (Outcome, error) {
	outcome := Outcome{
		EmployeePIN: rec.EmployeePIN,
		PayrollID:   rec.ID,
		Pass:        PassOrphan,
		PayRate:     rec.PayRate,
	}
	plan := PlanUpdate(snap, rec, period, nil)
	if err := claims.Claim(plan.Key, plan.PayrollID); err != nil {
		return o.skip(outcome, err, log), nil
	}
	return o.execute(ctx, snap, plan, outcome, runID, log)
}

// execute applies, verifies and marks one plan. The returned error is
// non-nil only when the run must abort.
func (o *Orchestrator) execute(ctx context.Context, snap *Snapshot, plan Plan, outcome Outcome, runID string, log *zap.Logger) (Outcome, error) {
	outcome.Action = plan.Action
	outcome.PayrollID = plan.PayrollID
	outcome.Target = plan.Target
	outcome.Added = plan.Added
	outcome.Removed = plan.Removed
	outcome.TotalHours = hoursOf(snap, plan.Target)

	if !plan.Changed() {
		outcome.Result = ResultUnchanged
		log.Info("payroll up to date",
			zap.String("employee_pin", outcome.EmployeePIN),
			zap.String("payroll_id", plan.PayrollID),
			zap.String("pass", string(outcome.Pass)))
		return outcome, nil
	}

	if o.opts.DryRun {
		outcome.Result = ResultPlanned
		outcome.Reason = fmt.Sprintf("dry run: would %s", plan.Action)
		log.Info("dry run, skipping write",
			zap.String("employee_pin", outcome.EmployeePIN),
			zap.String("action", string(plan.Action)),
			zap.Strings("target", plan.Target),
			zap.Strings("removed", plan.Removed))
		return outcome, nil
	}

	applied, err := o.engine.Apply(ctx, plan)
	if err != nil {
		return o.fail(ctx, outcome, err, log)
	}
	outcome.PayrollID = applied.PayrollID
	if plan.Action == ActionCreate {
		outcome.PayRate = applied.PayRate
	}

	if err := o.verifier.Verify(ctx, applied.PayrollID, plan.Key, plan.Target); err != nil {
		return o.fail(ctx, outcome, err, log)
	}
	outcome.Verified = true

	if plan.Action == ActionCreate {
		outcome.Result = ResultCreated
	} else {
		outcome.Result = ResultUpdated
	}

	if o.recorder != nil {
		if err := o.recorder.MarkProcessed(ctx, runID, applied.PayrollID, plan.Target); err != nil {
			log.Warn("could not mark timesheets processed",
				zap.String("payroll_id", applied.PayrollID), zap.Error(err))
		}
	}
	return outcome, nil
}

func (o *Orchestrator) skip(outcome Outcome, err error, log *zap.Logger) Outcome {
	outcome.Result = ResultSkipped
	outcome.Reason = err.Error()
	log.Warn("group skipped",
		zap.String("employee_pin", outcome.EmployeePIN),
		zap.String("pass", string(outcome.Pass)),
		zap.Error(err))
	return outcome
}

func (o *Orchestrator) fail(ctx context.Context, outcome Outcome, err error, log *zap.Logger) (Outcome, error) {
	outcome.Result = ResultFailed
	outcome.Reason = err.Error()
	log.Error("group failed",
		zap.String("employee_pin", outcome.EmployeePIN),
		zap.String("payroll_id", outcome.PayrollID),
		zap.String("pass", string(outcome.Pass)),
		zap.Error(err))
	if generic.IsFatal(err) || ctx.Err() != nil {
		return outcome, err
	}
	return outcome, nil
}

func hoursOf(snap *Snapshot, ids []string) decimal.Decimal {
	total := decimal.Zero
	for _, id := range ids {
		if ts, ok := snap.Timesheet(id); ok {
			total = total.Add(ts.Hours)
		}
	}
	return total
}
