package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/warp/payroll-sync/config"
	"github.com/warp/payroll-sync/payroll"
)

// Sender delivers messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Attachment is a file attached to the summary email.
type Attachment struct {
	Name string
	Data []byte
}

// Mailer sends run summaries over SMTP.
type Mailer struct {
	cfg    config.EmailConfig
	sender Sender
	logger *zap.Logger
}

// NewMailer validates cfg and dials the configured SMTP server (Gmail by
// default) with the app password.
func NewMailer(cfg config.EmailConfig, logger *zap.Logger) (*Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Sender, cfg.AppPassword)
	return NewMailerWithSender(cfg, dialer, logger), nil
}

// NewMailerWithSender uses sender instead of dialing SMTP.
func NewMailerWithSender(cfg config.EmailConfig, sender Sender, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{cfg: cfg, sender: sender, logger: logger}
}

// HasIssues reports whether a run needs a human: failures, advisories,
// warnings or a run-level error.
func HasIssues(s *payroll.RunSummary) bool {
	return s.Status == payroll.RunFailed ||
		len(s.Failures()) > 0 ||
		len(s.Advisories) > 0 ||
		len(s.Warnings) > 0
}

// Subject ranks the run by its most urgent issue.
func Subject(s *payroll.RunSummary) string {
	date := s.StartedAt.Format("2006-01-02")
	prefix := ""
	if s.DryRun {
		prefix = "[DRY RUN] "
	}
	for _, a := range s.Advisories {
		if a.Kind == payroll.AdvisoryOpenClockIn {
			return prefix + "URGENT: Payroll Sync Alert - Missing Clock Outs - " + date
		}
	}
	if s.Status == payroll.RunFailed || len(s.Failures()) > 0 {
		return prefix + "CRITICAL: Payroll Sync Issues - " + date
	}
	if HasIssues(s) {
		return prefix + "Payroll Sync Report - Issues Found - " + date
	}
	return prefix + "Payroll Sync Report - " + date
}

// Send mails the summary with attachments to every recipient.
func (m *Mailer) Send(ctx context.Context, s *payroll.RunSummary, attachments ...Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := RenderHTML(s)
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.Sender)
	msg.SetHeader("To", m.cfg.Recipients...)
	msg.SetHeader("Subject", Subject(s))
	msg.SetBody("text/plain", s.String())
	msg.AddAlternative("text/html", body)
	for _, a := range attachments {
		data := a.Data
		msg.Attach(a.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	m.logger.Info("summary email sent",
		zap.String("run_id", s.RunID),
		zap.Strings("recipients", m.cfg.Recipients),
		zap.Int("attachments", len(attachments)))
	return nil
}

var emailTemplate = template.Must(template.New("email").Funcs(template.FuncMap{
	"hours": func(d time.Duration) string { return fmt.Sprintf("%.1fh", d.Hours()) },
}).Parse(`<html><body style="font-family: Arial, sans-serif;">
<h2>Payroll Sync {{.Summary.Status}}{{if .Summary.DryRun}} (dry run){{end}}</h2>
<p>Period <b>{{.Summary.Period.Start}}</b> to <b>{{.Summary.Period.End}}</b>, payment date <b>{{.Summary.PaymentDate}}</b>.</p>
{{if .Summary.Error}}<p style="color:#b00020;"><b>Run failed:</b> {{.Summary.Error}}</p>{{end}}
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Fetched</th><th>Qualifying</th><th>Created</th><th>Updated</th><th>Unchanged</th><th>Skipped</th><th>Failed</th>{{if .Counts.Planned}}<th>Planned</th>{{end}}</tr>
<tr><td>{{.Summary.TimesheetsFetched}}</td><td>{{.Summary.Qualifying}}</td><td>{{.Counts.Created}}</td><td>{{.Counts.Updated}}</td><td>{{.Counts.Unchanged}}</td><td>{{.Counts.Skipped}}</td><td>{{.Counts.Failed}}</td>{{if .Counts.Planned}}<td>{{.Counts.Planned}}</td>{{end}}</tr>
</table>
{{if .Failures}}<h3>Failures</h3>
<ul>{{range .Failures}}<li>{{.EmployeePIN}} [{{.Pass}}/{{.Result}}]: {{.Reason}}</li>{{end}}</ul>{{end}}
{{if .Summary.Advisories}}<h3>Advisories</h3>
<ul>{{range .Summary.Advisories}}<li><b>{{.Severity}}</b> {{.EmployeePIN}} timesheet {{.TimesheetID}} ({{hours .Duration}}): {{.Message}}</li>{{end}}</ul>{{end}}
{{if .Summary.Warnings}}<h3>Warnings</h3>
<ul>{{range .Summary.Warnings}}<li>{{.}}</li>{{end}}</ul>{{end}}
<p style="color:#666;">Run {{.Summary.RunID}}</p>
</body></html>`))

// RenderHTML renders the HTML email body.
func RenderHTML(s *payroll.RunSummary) (string, error) {
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, struct {
		Summary  *payroll.RunSummary
		Counts   payroll.Counts
		Failures []payroll.Outcome
	}{s, s.Counts(), s.Failures()})
	return buf.String(), err
}
