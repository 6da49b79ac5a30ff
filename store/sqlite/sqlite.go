/*
Package sqlite keeps a local history of payroll sync runs.

PURPOSE:
  Implements payroll.RunRecorder on SQLite. The hosted platform stays the
  source of truth for timesheets and payroll records; this file only
  answers "what did past runs do" for the CLI, the status API and the
  reports.

KEY TABLES:
  sync_runs:            One row per run, upserted at start and at finish
  sync_outcomes:        Per-group results of a finished run
  processed_timesheets: Timesheets whose payroll write was verified
  advisory_findings:    Long-shift and open clock-in findings per run

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so the
  scheduler and HTTP-triggered runs never interleave writes.

USAGE:
  store, err := sqlite.New("./payroll-sync.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  orch := payroll.NewOrchestrator(platform, store, opts, logger)

SEE ALSO:
  - payroll/store.go: RunRecorder contract
  - payroll/summary.go: RunSummary, Outcome
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
)

// Store implements payroll.RunRecorder using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		dry_run INTEGER NOT NULL DEFAULT 0,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		timesheets_fetched INTEGER NOT NULL DEFAULT 0,
		payrolls_fetched INTEGER NOT NULL DEFAULT 0,
		qualifying INTEGER NOT NULL DEFAULT 0,
		created INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		unchanged INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		planned INTEGER NOT NULL DEFAULT 0,
		warnings_json TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sync_runs_status
		ON sync_runs(status);
	CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at
		ON sync_runs(started_at);

	CREATE TABLE IF NOT EXISTS sync_outcomes (
		run_id TEXT NOT NULL REFERENCES sync_runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		employee_pin TEXT NOT NULL,
		payroll_id TEXT,
		pass TEXT NOT NULL,
		action TEXT,
		result TEXT NOT NULL,
		target_json TEXT,
		added_json TEXT,
		removed_json TEXT,
		total_hours TEXT NOT NULL,
		pay_rate TEXT NOT NULL,
		verified INTEGER NOT NULL DEFAULT 0,
		reason TEXT,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS processed_timesheets (
		timesheet_id TEXT PRIMARY KEY,
		payroll_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		processed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_processed_timesheets_payroll
		ON processed_timesheets(payroll_id);

	CREATE TABLE IF NOT EXISTS advisory_findings (
		run_id TEXT NOT NULL REFERENCES sync_runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		severity TEXT NOT NULL,
		timesheet_id TEXT NOT NULL,
		employee_pin TEXT NOT NULL,
		work_date TEXT,
		clock_in TEXT,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		message TEXT,
		PRIMARY KEY (run_id, seq)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RUN RECORDER (payroll.RunRecorder interface)
// =============================================================================

// StartRun records a run as it begins.
func (s *Store) StartRun(ctx context.Context, summary *payroll.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveRun(ctx, s.db, summary)
}

// FinishRun stores the final counts together with outcomes and advisories.
// Re-finishing a run replaces its children.
func (s *Store) FinishRun(ctx context.Context, summary *payroll.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.saveRun(ctx, tx, summary); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_outcomes WHERE run_id = ?`, summary.RunID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM advisory_findings WHERE run_id = ?`, summary.RunID); err != nil {
		return err
	}

	for i, o := range summary.Outcomes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_outcomes (run_id, seq, employee_pin, payroll_id, pass, action, result,
				target_json, added_json, removed_json, total_hours, pay_rate, verified, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			summary.RunID, i, o.EmployeePIN, nullString(o.PayrollID), string(o.Pass),
			nullString(string(o.Action)), string(o.Result),
			encodeIDs(o.Target), encodeIDs(o.Added), encodeIDs(o.Removed),
			o.TotalHours.String(), o.PayRate.String(), o.Verified, nullString(o.Reason),
		)
		if err != nil {
			return fmt.Errorf("failed to save outcome: %w", err)
		}
	}

	for i, a := range summary.Advisories {
		var clockIn, workDate sql.NullString
		if !a.ClockIn.IsZero() {
			clockIn = nullString(a.ClockIn.Format(time.RFC3339))
		}
		if !a.Date.IsZero() {
			workDate = nullString(a.Date.String())
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO advisory_findings (run_id, seq, kind, severity, timesheet_id, employee_pin,
				work_date, clock_in, duration_seconds, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			summary.RunID, i, string(a.Kind), string(a.Severity), a.TimesheetID, a.EmployeePIN,
			workDate, clockIn, int64(a.Duration/time.Second), nullString(a.Message),
		)
		if err != nil {
			return fmt.Errorf("failed to save advisory: %w", err)
		}
	}

	return tx.Commit()
}

// MarkProcessed records verified timesheets. A later run that relinks a
// timesheet overwrites its row.
func (s *Store) MarkProcessed(ctx context.Context, runID, payrollID string, timesheetIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().Format(time.RFC3339)
	for _, id := range timesheetIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO processed_timesheets (timesheet_id, payroll_id, run_id, processed_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(timesheet_id) DO UPDATE SET
				payroll_id = excluded.payroll_id,
				run_id = excluded.run_id,
				processed_at = excluded.processed_at`,
			id, payrollID, runID, now,
		)
		if err != nil {
			return fmt.Errorf("failed to mark timesheet %s processed: %w", id, err)
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) saveRun(ctx context.Context, db execer, summary *payroll.RunSummary) error {
	query := `
		INSERT INTO sync_runs (id, dry_run, period_start, period_end, payment_date, status, error,
			timesheets_fetched, payrolls_fetched, qualifying,
			created, updated, unchanged, skipped, failed, planned,
			warnings_json, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			timesheets_fetched = excluded.timesheets_fetched,
			payrolls_fetched = excluded.payrolls_fetched,
			qualifying = excluded.qualifying,
			created = excluded.created,
			updated = excluded.updated,
			unchanged = excluded.unchanged,
			skipped = excluded.skipped,
			failed = excluded.failed,
			planned = excluded.planned,
			warnings_json = excluded.warnings_json,
			finished_at = excluded.finished_at
	`

	var finishedAt *string
	if !summary.FinishedAt.IsZero() {
		f := summary.FinishedAt.UTC().Format(time.RFC3339)
		finishedAt = &f
	}
	warnings, err := json.Marshal(summary.Warnings)
	if err != nil {
		return err
	}

	c := summary.Counts()
	_, err = db.ExecContext(ctx, query,
		summary.RunID, summary.DryRun,
		summary.Period.Start.String(), summary.Period.End.String(), summary.PaymentDate.String(),
		string(summary.Status), nullString(summary.Error),
		summary.TimesheetsFetched, summary.PayrollsFetched, summary.Qualifying,
		c.Created, c.Updated, c.Unchanged, c.Skipped, c.Failed, c.Planned,
		string(warnings), summary.StartedAt.UTC().Format(time.RFC3339), finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", summary.RunID, err)
	}
	return nil
}

var _ payroll.RunRecorder = (*Store)(nil)

// =============================================================================
// HISTORY QUERIES
// =============================================================================

// RunRecord is a stored run without its outcomes.
type RunRecord struct {
	ID                string
	DryRun            bool
	Period            generic.Period
	PaymentDate       generic.TimePoint
	Status            payroll.RunStatus
	Error             string
	TimesheetsFetched int
	PayrollsFetched   int
	Qualifying        int
	Counts            payroll.Counts
	Warnings          []string
	StartedAt         time.Time
	FinishedAt        *time.Time
}

// OutcomeRecord is one stored group result.
type OutcomeRecord struct {
	RunID string
	payroll.Outcome
}

// ProcessedTimesheet is one verified link.
type ProcessedTimesheet struct {
	TimesheetID string
	PayrollID   string
	RunID       string
	ProcessedAt time.Time
}

const runColumns = `id, dry_run, period_start, period_end, payment_date, status, error,
	timesheets_fetched, payrolls_fetched, qualifying,
	created, updated, unchanged, skipped, failed, planned,
	warnings_json, started_at, finished_at`

// ListRuns returns runs newest first. Empty status means all; limit <= 0
// means no limit.
func (s *Store) ListRuns(ctx context.Context, status string, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + runColumns + ` FROM sync_runs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run or a generic.NotFoundError.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Kind: "run", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var r RunRecord
	var periodStart, periodEnd, paymentDate, status, startedAt string
	var errText, warnings, finishedAt sql.NullString
	if err := row.Scan(
		&r.ID, &r.DryRun, &periodStart, &periodEnd, &paymentDate, &status, &errText,
		&r.TimesheetsFetched, &r.PayrollsFetched, &r.Qualifying,
		&r.Counts.Created, &r.Counts.Updated, &r.Counts.Unchanged,
		&r.Counts.Skipped, &r.Counts.Failed, &r.Counts.Planned,
		&warnings, &startedAt, &finishedAt,
	); err != nil {
		return RunRecord{}, err
	}

	r.Period.Start, _ = generic.ParseDate(periodStart)
	r.Period.End, _ = generic.ParseDate(periodEnd)
	r.PaymentDate, _ = generic.ParseDate(paymentDate)
	r.Status = payroll.RunStatus(status)
	r.Error = errText.String
	if warnings.Valid {
		_ = json.Unmarshal([]byte(warnings.String), &r.Warnings)
	}
	r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAt.String)
		r.FinishedAt = &t
	}
	return r, nil
}

// ListOutcomes returns a run's outcomes in run order.
func (s *Store) ListOutcomes(ctx context.Context, runID string) ([]OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_pin, payroll_id, pass, action, result, target_json, added_json, removed_json,
			total_hours, pay_rate, verified, reason
		FROM sync_outcomes
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		o := OutcomeRecord{RunID: runID}
		var payrollID, action, target, added, removed, reason sql.NullString
		var pass, result, hours, rate string
		if err := rows.Scan(
			&o.EmployeePIN, &payrollID, &pass, &action, &result, &target, &added, &removed,
			&hours, &rate, &o.Verified, &reason,
		); err != nil {
			return nil, err
		}
		o.PayrollID = payrollID.String
		o.Pass = payroll.Pass(pass)
		o.Action = payroll.Action(action.String)
		o.Result = payroll.Result(result)
		o.Target = decodeIDs(target)
		o.Added = decodeIDs(added)
		o.Removed = decodeIDs(removed)
		o.TotalHours = parseDecimal(hours)
		o.PayRate = parseDecimal(rate)
		o.Reason = reason.String
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListAdvisories returns a run's advisory findings.
func (s *Store) ListAdvisories(ctx context.Context, runID string) ([]payroll.Advisory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, severity, timesheet_id, employee_pin, work_date, clock_in, duration_seconds, message
		FROM advisory_findings
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.Advisory
	for rows.Next() {
		var a payroll.Advisory
		var kind, severity string
		var workDate, clockIn, message sql.NullString
		var seconds int64
		if err := rows.Scan(&kind, &severity, &a.TimesheetID, &a.EmployeePIN,
			&workDate, &clockIn, &seconds, &message); err != nil {
			return nil, err
		}
		a.Kind = payroll.AdvisoryKind(kind)
		a.Severity = payroll.Severity(severity)
		if workDate.Valid {
			a.Date, _ = generic.ParseDate(workDate.String)
		}
		if clockIn.Valid {
			a.ClockIn, _ = time.Parse(time.RFC3339, clockIn.String)
		}
		a.Duration = time.Duration(seconds) * time.Second
		a.Message = message.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// IsProcessed reports whether a verified run linked the timesheet.
func (s *Store) IsProcessed(ctx context.Context, timesheetID string) (bool, error) {
	p, err := s.GetProcessed(ctx, timesheetID)
	if generic.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

// GetProcessed returns the processed row for a timesheet.
func (s *Store) GetProcessed(ctx context.Context, timesheetID string) (*ProcessedTimesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p ProcessedTimesheet
	var processedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT timesheet_id, payroll_id, run_id, processed_at
		FROM processed_timesheets
		WHERE timesheet_id = ?`, timesheetID,
	).Scan(&p.TimesheetID, &p.PayrollID, &p.RunID, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Kind: "processed timesheet", ID: timesheetID}
	}
	if err != nil {
		return nil, err
	}
	p.ProcessedAt, _ = time.Parse(time.RFC3339, processedAt)
	return &p, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func encodeIDs(ids []string) sql.NullString {
	if len(ids) == 0 {
		return sql.NullString{}
	}
	b, _ := json.Marshal(ids)
	return nullString(string(b))
}

func decodeIDs(raw sql.NullString) []string {
	if !raw.Valid {
		return nil
	}
	var ids []string
	_ = json.Unmarshal([]byte(raw.String), &ids)
	return ids
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
