package payroll

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/warp/payroll-sync/generic"
)

// =============================================================================
// PRE-FLIGHT CHECKS
// =============================================================================

// CheckClockPairs fails the whole group when two of its timesheets carry the
// same literal clock-in and clock-out. Timesheets missing either side are not
// compared.
func CheckClockPairs(g Group) error {
	type pair struct{ in, out string }
	seen := make(map[pair]string)
	for _, ts := range g.Timesheets {
		if ts.ClockIn == "" || ts.ClockOut == "" {
			continue
		}
		p := pair{ts.ClockIn, ts.ClockOut}
		if first, ok := seen[p]; ok {
			return &DuplicateClockPairError{
				EmployeePIN:  g.EmployeePIN,
				ClockIn:      ts.ClockIn,
				ClockOut:     ts.ClockOut,
				TimesheetIDs: []string{first, ts.ID},
			}
		}
		seen[p] = ts.ID
	}
	return nil
}

// DuplicatePayrolls returns, per employee, the error for every slot in period
// that already holds more than one record.
func DuplicatePayrolls(snap *Snapshot, period generic.Period) map[string]*DuplicatePayrollError {
	out := make(map[string]*DuplicatePayrollError)
	byPIN := make(map[string][]string)
	for _, rec := range snap.RecordsInPeriod(period) {
		byPIN[rec.EmployeePIN] = append(byPIN[rec.EmployeePIN], rec.ID)
	}
	for pin, ids := range byPIN {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		out[pin] = &DuplicatePayrollError{
			Key:        RecordKey{EmployeePIN: pin, Period: period},
			PayrollIDs: ids,
			Reason:     "more than one record exists for this employee and period",
		}
	}
	return out
}

// Claims tracks which (employee, period) slots this run has already targeted
// so no slot is written twice.
type Claims struct {
	byKey map[string]string
}

func NewClaims() *Claims {
	return &Claims{byKey: make(map[string]string)}
}

// Claim reserves key for payrollID ("" for a record about to be created).
func (c *Claims) Claim(key RecordKey, payrollID string) error {
	k := key.String()
	if prev, ok := c.byKey[k]; ok {
		var ids []string
		for _, id := range []string{prev, payrollID} {
			if id != "" {
				ids = append(ids, id)
			}
		}
		return &DuplicatePayrollError{
			Key:        key,
			PayrollIDs: ids,
			Reason:     "slot already targeted in this run",
		}
	}
	c.byKey[k] = payrollID
	return nil
}

// =============================================================================
// POST-WRITE VERIFICATION
// =============================================================================

// Verifier re-reads records after a write.
type Verifier struct {
	payrolls PayrollRepository
	logger   *zap.Logger
}

func NewVerifier(payrolls PayrollRepository, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{payrolls: payrolls, logger: logger}
}

// Verify re-reads payrollID and checks employee, period and that its
// relation equals expected exactly. The mutation's own response is never
// trusted.
func (v *Verifier) Verify(ctx context.Context, payrollID string, key RecordKey, expected []string) error {
	rec, err := v.payrolls.GetPayrollRecord(ctx, payrollID)
	if err != nil {
		return fmt.Errorf("re-read payroll %s: %w", payrollID, err)
	}

	verr := &VerificationError{PayrollID: payrollID}
	if rec.EmployeePIN != key.EmployeePIN {
		verr.Mismatches = append(verr.Mismatches,
			fmt.Sprintf("employee %q, expected %q", rec.EmployeePIN, key.EmployeePIN))
	}
	if !rec.Period.Start.Equal(key.Period.Start) {
		verr.Mismatches = append(verr.Mismatches,
			fmt.Sprintf("period start %s, expected %s", rec.Period.Start, key.Period.Start))
	}
	if !rec.Period.End.Equal(key.Period.End) {
		verr.Mismatches = append(verr.Mismatches,
			fmt.Sprintf("period end %s, expected %s", rec.Period.End, key.Period.End))
	}

	want := generic.NewIDSet(expected...)
	got := generic.NewIDSet(rec.TimesheetIDs...)
	verr.Missing = want.Minus(got)
	verr.Unexpected = got.Minus(want)
	if len(verr.Missing) > 0 {
		verr.Mismatches = append(verr.Mismatches, fmt.Sprintf("missing timesheets %v", verr.Missing))
	}
	if len(verr.Unexpected) > 0 {
		verr.Mismatches = append(verr.Mismatches, fmt.Sprintf("unexpected timesheets %v", verr.Unexpected))
	}

	if len(verr.Mismatches) > 0 {
		v.logger.Error("payroll verification failed",
			zap.String("payroll_id", payrollID),
			zap.Strings("mismatches", verr.Mismatches))
		return verr
	}

	v.logger.Debug("payroll verified",
		zap.String("payroll_id", payrollID),
		zap.Int("timesheets", len(expected)))
	return nil
}
