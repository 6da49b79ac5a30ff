package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/warp/payroll-sync/payroll"
)

// Publisher saves and mails run reports.
type Publisher struct {
	// Dir receives the workbook. Empty disables saving.
	Dir string

	// Mailer is nil when email is not configured.
	Mailer *Mailer

	// AlwaysEmail sends even when a run has no issues.
	AlwaysEmail bool

	logger *zap.Logger
}

func NewPublisher(dir string, mailer *Mailer, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{Dir: dir, Mailer: mailer, logger: logger}
}

// Published says what happened to a run's report.
type Published struct {
	Path      string
	Emailed   bool
	Attempted bool
}

// WorkbookName is the file name for a run's workbook.
func WorkbookName(s *payroll.RunSummary) string {
	id := s.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("payroll-sync_%s_%s.xlsx", s.Period.Start, id)
}

// Publish writes the workbook and sends the email. Errors are logged and
// never returned.
func (p *Publisher) Publish(ctx context.Context, s *payroll.RunSummary) Published {
	var out Published
	log := p.logger.With(zap.String("run_id", s.RunID))

	var buf bytes.Buffer
	if err := WriteWorkbook(s, &buf); err != nil {
		log.Error("could not build report workbook", zap.Error(err))
		return out
	}

	if p.Dir != "" {
		path, err := p.save(WorkbookName(s), buf.Bytes())
		if err != nil {
			log.Error("could not save report workbook", zap.String("dir", p.Dir), zap.Error(err))
		} else {
			out.Path = path
			log.Info("report workbook saved", zap.String("path", path))
		}
	}

	switch {
	case p.Mailer == nil:
		log.Debug("email not configured, skipping summary email")
	case !p.AlwaysEmail && !HasIssues(s):
		log.Info("no issues found, summary email not needed")
	default:
		out.Attempted = true
		err := p.Mailer.Send(ctx, s, Attachment{Name: WorkbookName(s), Data: buf.Bytes()})
		if err != nil {
			log.Error("could not send summary email", zap.Error(err))
		} else {
			out.Emailed = true
		}
	}
	return out
}

func (p *Publisher) save(name string, data []byte) (string, error) {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(p.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
