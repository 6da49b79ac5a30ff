/*
Package config loads payroll-sync settings.

PURPOSE:
  One Config value feeds the Noloco client, the orchestrator, the run
  history store, the status server and the report publisher.

PRECEDENCE (lowest first):
  1. Built-in defaults (DefaultConfig)
  2. YAML file passed to Load, if it exists
  3. Environment, after loading .env from the working directory

ENVIRONMENT:
  NOLOCO_API_TOKEN, NOLOCO_PROJECT_ID, NOLOCO_API_URL
  EMAIL_RECIPIENTS (comma separated), GMAIL_EMAIL, GMAIL_APP_PASSWORD
  PAYROLL_TIMEZONE, PAYROLL_REFERENCE_MONDAY, PAYROLL_HISTORY_DB,
  PAYROLL_REPORT_DIR, PAYROLL_MAX_RETRIES

SEE ALSO:
  - cmd/payroll-sync: Wiring
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/store/noloco"
)

// ErrMissingCredential is returned by Validate when the Noloco token or
// project id is absent.
var ErrMissingCredential = errors.New("missing Noloco credential")

// ErrEmailDisabled is returned by EmailConfig.Validate. It never fails a run.
var ErrEmailDisabled = errors.New("email report disabled")

// Config holds all payroll-sync configuration.
type Config struct {
	Noloco   NolocoConfig   `yaml:"noloco"`
	Payroll  PayrollConfig  `yaml:"payroll"`
	Advisory AdvisoryConfig `yaml:"advisory"`
	Email    EmailConfig    `yaml:"email"`
	History  HistoryConfig  `yaml:"history"`
	Server   ServerConfig   `yaml:"server"`
	Report   ReportConfig   `yaml:"report"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// NolocoConfig configures the data API client.
type NolocoConfig struct {
	ProjectID      string        `yaml:"project_id"`
	Token          string        `yaml:"token"`
	BaseURL        string        `yaml:"base_url"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	RateLimitDelay time.Duration `yaml:"rate_limit_delay"`
	Timeout        time.Duration `yaml:"timeout"`
	PageSize       int           `yaml:"page_size"`
}

// PayrollConfig configures the pay calendar and new records.
type PayrollConfig struct {
	Timezone        string `yaml:"timezone"`
	ReferenceMonday string `yaml:"reference_monday"`
	PaymentMethod   string `yaml:"payment_method"`
	Status          string `yaml:"status"`
}

// AdvisoryConfig sets the advisory thresholds.
type AdvisoryConfig struct {
	MaxShift         time.Duration `yaml:"max_shift"`
	OpenClockInAfter time.Duration `yaml:"open_clock_in_after"`
}

// EmailConfig configures the summary email.
type EmailConfig struct {
	Recipients  []string `yaml:"recipients"`
	Sender      string   `yaml:"sender"`
	AppPassword string   `yaml:"app_password"`
	SMTPHost    string   `yaml:"smtp_host"`
	SMTPPort    int      `yaml:"smtp_port"`
}

type HistoryConfig struct {
	DatabasePath string `yaml:"database_path"`
}

type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	Interval    time.Duration `yaml:"interval"`
	CORSOrigins []string      `yaml:"cors_origins"`
}

type ReportConfig struct {
	Dir string `yaml:"dir"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	client := noloco.DefaultConfig()
	return &Config{
		Noloco: NolocoConfig{
			BaseURL:        client.BaseURL,
			MaxRetries:     client.MaxRetries,
			RetryDelay:     client.RetryDelay,
			RateLimitDelay: client.RateLimitDelay,
			Timeout:        client.Timeout,
			PageSize:       client.PageSize,
		},
		Payroll: PayrollConfig{
			Timezone:        "America/Puerto_Rico",
			ReferenceMonday: generic.DefaultReferenceMonday.String(),
			PaymentMethod:   payroll.PaymentMethodDirectDeposit,
			Status:          payroll.StatusPending,
		},
		Advisory: AdvisoryConfig{
			MaxShift:         8 * time.Hour,
			OpenClockInAfter: 8 * time.Hour,
		},
		Email: EmailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
		History: HistoryConfig{DatabasePath: "payroll-sync.db"},
		Server: ServerConfig{
			Addr:        ":8080",
			Interval:    time.Hour,
			CORSOrigins: []string{"*"},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty or missing) and the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("NOLOCO_API_TOKEN"); v != "" {
		c.Noloco.Token = v
	}
	if v := os.Getenv("NOLOCO_PROJECT_ID"); v != "" {
		c.Noloco.ProjectID = v
	}
	if v := os.Getenv("NOLOCO_API_URL"); v != "" {
		c.Noloco.BaseURL = v
	}
	if v := os.Getenv("PAYROLL_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PAYROLL_MAX_RETRIES: %w", err)
		}
		c.Noloco.MaxRetries = n
	}

	if v := os.Getenv("EMAIL_RECIPIENTS"); v != "" {
		c.Email.Recipients = splitList(v)
	}
	if v := os.Getenv("GMAIL_EMAIL"); v != "" {
		c.Email.Sender = v
	}
	if v := os.Getenv("GMAIL_APP_PASSWORD"); v != "" {
		c.Email.AppPassword = v
	}

	if v := os.Getenv("PAYROLL_TIMEZONE"); v != "" {
		c.Payroll.Timezone = v
	}
	if v := os.Getenv("PAYROLL_REFERENCE_MONDAY"); v != "" {
		c.Payroll.ReferenceMonday = v
	}
	if v := os.Getenv("PAYROLL_HISTORY_DB"); v != "" {
		c.History.DatabasePath = v
	}
	if v := os.Getenv("PAYROLL_REPORT_DIR"); v != "" {
		c.Report.Dir = v
	}
	return nil
}

// Validate checks everything a run needs before it starts.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Noloco.Token) == "" {
		return fmt.Errorf("%w: NOLOCO_API_TOKEN", ErrMissingCredential)
	}
	if strings.TrimSpace(c.Noloco.ProjectID) == "" {
		return fmt.Errorf("%w: NOLOCO_PROJECT_ID", ErrMissingCredential)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Calendar(); err != nil {
		return err
	}
	if c.Noloco.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.Noloco.MaxRetries)
	}
	return nil
}

// Location loads the business timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Payroll.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Payroll.Timezone, err)
	}
	return loc, nil
}

// Calendar builds the pay calendar from the reference Monday.
func (c *Config) Calendar() (generic.BiweeklyCalendar, error) {
	ref, err := generic.ParseDate(c.Payroll.ReferenceMonday)
	if err != nil {
		return generic.BiweeklyCalendar{}, fmt.Errorf("invalid reference monday: %w", err)
	}
	return generic.NewBiweeklyCalendar(ref)
}

// ClientConfig converts to the Noloco client settings.
func (c *Config) ClientConfig() (noloco.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return noloco.Config{}, err
	}
	return noloco.Config{
		ProjectID:      c.Noloco.ProjectID,
		Token:          c.Noloco.Token,
		BaseURL:        c.Noloco.BaseURL,
		MaxRetries:     c.Noloco.MaxRetries,
		RetryDelay:     c.Noloco.RetryDelay,
		RateLimitDelay: c.Noloco.RateLimitDelay,
		Timeout:        c.Noloco.Timeout,
		PageSize:       c.Noloco.PageSize,
		Location:       loc,
	}, nil
}

// Options converts to orchestrator options.
func (c *Config) Options(dryRun bool) (payroll.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return payroll.Options{}, err
	}
	cal, err := c.Calendar()
	if err != nil {
		return payroll.Options{}, err
	}
	return payroll.Options{
		Calendar: cal,
		Location: loc,
		Engine: payroll.EngineConfig{
			PaymentMethod: c.Payroll.PaymentMethod,
			Status:        c.Payroll.Status,
		},
		Advisory: payroll.AdvisoryConfig{
			MaxShift:         c.Advisory.MaxShift,
			OpenClockInAfter: c.Advisory.OpenClockInAfter,
		},
		DryRun: dryRun,
	}, nil
}

// Validate reports whether the summary email can be sent. A failure only
// disables email.
func (e EmailConfig) Validate() error {
	var missing []string
	if len(e.Recipients) == 0 {
		missing = append(missing, "EMAIL_RECIPIENTS")
	}
	if strings.TrimSpace(e.Sender) == "" {
		missing = append(missing, "GMAIL_EMAIL")
	}
	if strings.TrimSpace(e.AppPassword) == "" {
		missing = append(missing, "GMAIL_APP_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrEmailDisabled, strings.Join(missing, ", "))
	}
	if e.SMTPHost == "" || e.SMTPPort <= 0 {
		return fmt.Errorf("%w: invalid SMTP server %s:%d", ErrEmailDisabled, e.SMTPHost, e.SMTPPort)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
