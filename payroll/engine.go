/*
engine.go - Reconciliation engine: grouping, target sets and writes

PURPOSE:
  Decides, for each employee in the canonical period, what the payroll
  record's timesheet relation must be, and writes the difference.

THE TARGET SET:
  For an existing record with relation C (rebuilt from back-references) and
  this run's qualifying group N:

    target = { id in C : still approved AND date still in period } ∪ N

  There is no separate removal path. A timesheet whose approval was revoked
  after it was linked simply falls out of the set.

WRITE ORDER:
  1. Clear the back-reference of every removed id.
  2. Overwrite the record's relation with the full target set in one call.

  The platform does not reliably clear child back-references when a parent
  relation shrinks, so step 1 is explicit.

PAY RATE:
  Fetched once when a record is created. Later updates never touch it, even
  if the employee's rate changes within the period.

SEE ALSO:
  - validation.go: Pre-flight checks and post-write verification
  - orchestrator.go: Drives one full run
  - snapshot.go: Source of relation sets
*/
package payroll

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-sync/generic"
)

// =============================================================================
// GROUPS
// =============================================================================

// Group is one employee's qualifying timesheets for the run's canonical
// period. The period is never derived from the timesheets themselves.
type Group struct {
	EmployeePIN string
	Period      generic.Period
	Timesheets  []Timesheet
}

// Key is the (employee, period) slot the group targets.
func (g Group) Key() RecordKey {
	return RecordKey{EmployeePIN: g.EmployeePIN, Period: g.Period}
}

// IDs returns the group's timesheet ids, sorted.
func (g Group) IDs() []string {
	ids := make([]string, 0, len(g.Timesheets))
	for _, ts := range g.Timesheets {
		ids = append(ids, ts.ID)
	}
	return generic.SortedIDs(ids)
}

func (g Group) TotalHours() decimal.Decimal {
	return TotalHours(g.Timesheets)
}

// Qualifying filters timesheets to those approved, unlinked and dated inside
// period.
func Qualifying(timesheets []Timesheet, period generic.Period) []Timesheet {
	var out []Timesheet
	for _, ts := range timesheets {
		if ts.ID == "" || !ts.Approved() || ts.Linked() {
			continue
		}
		if !period.Contains(ts.Date) {
			continue
		}
		out = append(out, ts)
	}
	return out
}

// GroupByEmployee partitions timesheets by PIN and pairs every group with
// period. Groups come back sorted by PIN. Timesheets without a PIN are
// returned separately.
func GroupByEmployee(timesheets []Timesheet, period generic.Period) (groups []Group, missingPIN []Timesheet) {
	byPIN := make(map[string]*Group)
	for _, ts := range timesheets {
		pin := NormalizePIN(ts.EmployeePIN)
		if pin == "" {
			missingPIN = append(missingPIN, ts)
			continue
		}
		g, ok := byPIN[pin]
		if !ok {
			g = &Group{EmployeePIN: pin, Period: period}
			byPIN[pin] = g
		}
		g.Timesheets = append(g.Timesheets, ts)
	}

	pins := make([]string, 0, len(byPIN))
	for pin := range byPIN {
		pins = append(pins, pin)
	}
	sort.Strings(pins)
	for _, pin := range pins {
		groups = append(groups, *byPIN[pin])
	}
	return groups, missingPIN
}

// =============================================================================
// PLANS
// =============================================================================

// Action is what a plan will do to the platform.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionNoop   Action = "noop"
)

// Plan is the write decision for one (employee, period) slot.
type Plan struct {
	Action    Action
	Key       RecordKey
	PayrollID string // empty for ActionCreate

	Current []string // relation rebuilt from back-references
	Target  []string
	Added   []string
	Removed []string
}

// Changed reports whether the plan needs any write.
func (p Plan) Changed() bool { return p.Action != ActionNoop }

// TargetSet computes the authoritative relation for a record in period:
// current ids that are still approved and in period, plus newIDs. Sorted.
func TargetSet(snap *Snapshot, current []string, period generic.Period, newIDs []string) []string {
	target := generic.NewIDSet()
	for _, id := range current {
		ts, ok := snap.Timesheet(id)
		if !ok {
			continue
		}
		if ts.Approved() && period.Contains(ts.Date) {
			target.Add(id)
		}
	}
	for _, id := range newIDs {
		target.Add(id)
	}
	return target.Sorted()
}

// PlanUpdate compares an existing record against its target set.
func PlanUpdate(snap *Snapshot, rec PayrollRecord, period generic.Period, newIDs []string) Plan {
	current := snap.Relation(rec.ID)
	target := TargetSet(snap, current, period, newIDs)

	currentSet := generic.NewIDSet(current...)
	targetSet := generic.NewIDSet(target...)

	plan := Plan{
		Action:    ActionNoop,
		Key:       RecordKey{EmployeePIN: rec.EmployeePIN, Period: period},
		PayrollID: rec.ID,
		Current:   current,
		Target:    target,
		Added:     targetSet.Minus(currentSet),
		Removed:   currentSet.Minus(targetSet),
	}
	if !currentSet.Equal(targetSet) {
		plan.Action = ActionUpdate
	}
	return plan
}

// PlanCreate is the plan for a group with no existing record.
func PlanCreate(g Group) Plan {
	ids := g.IDs()
	return Plan{
		Action: ActionCreate,
		Key:    g.Key(),
		Target: ids,
		Added:  ids,
	}
}

// =============================================================================
// ENGINE - Executes plans against the platform
// =============================================================================

// EngineConfig holds the values written on new records.
type EngineConfig struct {
	PaymentMethod string
	Status        string
}

// DefaultEngineConfig matches the platform's enum defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{PaymentMethod: PaymentMethodDirectDeposit, Status: StatusPending}
}

// Engine writes plans.
type Engine struct {
	timesheets TimesheetRepository
	payrolls   PayrollRepository
	rates      PayRateLookup
	config     EngineConfig
	logger     *zap.Logger
}

// NewEngine wires the engine to its repositories.
func NewEngine(timesheets TimesheetRepository, payrolls PayrollRepository, rates PayRateLookup, config EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PaymentMethod == "" {
		config.PaymentMethod = PaymentMethodDirectDeposit
	}
	if config.Status == "" {
		config.Status = StatusPending
	}
	return &Engine{
		timesheets: timesheets,
		payrolls:   payrolls,
		rates:      rates,
		config:     config,
		logger:     logger,
	}
}

// Applied is the outcome of a successful write.
type Applied struct {
	PayrollID string
	PayRate   decimal.Decimal // set on create only
}

// Apply performs the plan's writes. Noop plans return immediately.
func (e *Engine) Apply(ctx context.Context, plan Plan) (Applied, error) {
	switch plan.Action {
	case ActionNoop:
		e.logger.Debug("payroll up to date",
			zap.String("employee_pin", plan.Key.EmployeePIN),
			zap.String("payroll_id", plan.PayrollID),
			zap.Int("timesheets", len(plan.Target)))
		return Applied{PayrollID: plan.PayrollID}, nil
	case ActionCreate:
		return e.create(ctx, plan)
	case ActionUpdate:
		return e.update(ctx, plan)
	default:
		return Applied{}, fmt.Errorf("unknown plan action %q", plan.Action)
	}
}

func (e *Engine) create(ctx context.Context, plan Plan) (Applied, error) {
	if len(plan.Target) == 0 {
		return Applied{}, fmt.Errorf("create payroll for %s: %w", plan.Key, ErrEmptyGroup)
	}

	rate, err := e.rates.PayRate(ctx, plan.Key.EmployeePIN)
	if err != nil {
		return Applied{}, fmt.Errorf("fetch pay rate for %s: %w", plan.Key.EmployeePIN, err)
	}
	if rate.IsZero() {
		e.logger.Warn("pay rate is zero, creating record anyway",
			zap.String("employee_pin", plan.Key.EmployeePIN))
	}

	id, err := e.payrolls.CreatePayrollRecord(ctx, NewPayrollRecord{
		EmployeePIN:   plan.Key.EmployeePIN,
		Period:        plan.Key.Period,
		PayRate:       rate,
		PaymentMethod: e.config.PaymentMethod,
		Status:        e.config.Status,
		TimesheetIDs:  plan.Target,
	})
	if err != nil {
		return Applied{}, fmt.Errorf("create payroll for %s: %w", plan.Key, err)
	}
	if id == "" {
		return Applied{}, fmt.Errorf("create payroll for %s: platform returned no id", plan.Key)
	}

	e.logger.Info("created payroll record",
		zap.String("employee_pin", plan.Key.EmployeePIN),
		zap.String("payroll_id", id),
		zap.String("period", plan.Key.Period.String()),
		zap.String("pay_rate", rate.String()),
		zap.Strings("timesheets", plan.Target))

	return Applied{PayrollID: id, PayRate: rate}, nil
}

func (e *Engine) update(ctx context.Context, plan Plan) (Applied, error) {
	for _, id := range plan.Removed {
		if err := e.timesheets.UnlinkTimesheet(ctx, id); err != nil {
			return Applied{}, fmt.Errorf("unlink timesheet %s from payroll %s: %w", id, plan.PayrollID, err)
		}
	}

	id, err := e.payrolls.SetPayrollTimesheets(ctx, plan.PayrollID, plan.Target)
	if err != nil {
		return Applied{}, fmt.Errorf("update payroll %s: %w", plan.PayrollID, err)
	}
	if id == "" {
		return Applied{}, fmt.Errorf("update payroll %s: platform returned no id", plan.PayrollID)
	}

	e.logger.Info("updated payroll record",
		zap.String("employee_pin", plan.Key.EmployeePIN),
		zap.String("payroll_id", id),
		zap.Strings("added", plan.Added),
		zap.Strings("removed", plan.Removed),
		zap.Int("total", len(plan.Target)))

	return Applied{PayrollID: id}, nil
}
