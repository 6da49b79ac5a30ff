package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-sync/config"
)

// chdirTemp runs the test in an empty directory so no stray .env is loaded.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"NOLOCO_API_TOKEN", "NOLOCO_PROJECT_ID", "NOLOCO_API_URL", "PAYROLL_MAX_RETRIES",
		"EMAIL_RECIPIENTS", "GMAIL_EMAIL", "GMAIL_APP_PASSWORD",
		"PAYROLL_TIMEZONE", "PAYROLL_REFERENCE_MONDAY", "PAYROLL_HISTORY_DB", "PAYROLL_REPORT_DIR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	clearEnv(t)

	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Noloco.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Noloco.RetryDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Noloco.RateLimitDelay)
	assert.Equal(t, "America/Puerto_Rico", cfg.Payroll.Timezone)
	assert.Equal(t, "2026-01-12", cfg.Payroll.ReferenceMonday)
	assert.Equal(t, "DIRECT_DEPOSIT", cfg.Payroll.PaymentMethod)
	assert.Equal(t, "payroll-sync.db", cfg.History.DatabasePath)
	assert.ErrorIs(t, cfg.Validate(), config.ErrMissingCredential)
}

func TestLoad_YAMLThenEnvironment(t *testing.T) {
	// GIVEN: A YAML file and an environment that overrides part of it
	dir := chdirTemp(t)
	clearEnv(t)
	path := filepath.Join(dir, "payroll-sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
noloco:
  project_id: from-yaml
  token: yaml-token
  retry_delay: 5s
payroll:
  timezone: UTC
advisory:
  max_shift: 12h
server:
  interval: 30m
`), 0o644))
	t.Setenv("NOLOCO_API_TOKEN", "env-token")
	t.Setenv("EMAIL_RECIPIENTS", "a@example.com, b@example.com,")
	t.Setenv("PAYROLL_MAX_RETRIES", "5")

	// WHEN: Config is loaded
	cfg, err := config.Load(path)

	// THEN: Environment wins over YAML, YAML wins over defaults
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.Noloco.ProjectID)
	assert.Equal(t, "env-token", cfg.Noloco.Token)
	assert.Equal(t, 5*time.Second, cfg.Noloco.RetryDelay)
	assert.Equal(t, 5, cfg.Noloco.MaxRetries)
	assert.Equal(t, 12*time.Hour, cfg.Advisory.MaxShift)
	assert.Equal(t, 8*time.Hour, cfg.Advisory.OpenClockInAfter)
	assert.Equal(t, 30*time.Minute, cfg.Server.Interval)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Email.Recipients)
	require.NoError(t, cfg.Validate())

	opts, err := cfg.Options(true)
	require.NoError(t, err)
	assert.True(t, opts.DryRun)
	assert.Equal(t, "UTC", opts.Location.String())
	assert.Equal(t, "2026-01-12", opts.Calendar.Reference.String())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	clearEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("NOLOCO_PROJECT_ID=dotenv-project\n"), 0o644))
	// godotenv never overrides variables that are already set.
	require.NoError(t, os.Unsetenv("NOLOCO_PROJECT_ID"))
	t.Cleanup(func() { _ = os.Unsetenv("NOLOCO_PROJECT_ID") })

	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, "dotenv-project", cfg.Noloco.ProjectID)
}

func TestLoad_BadRetryCount(t *testing.T) {
	chdirTemp(t)
	clearEnv(t)
	t.Setenv("PAYROLL_MAX_RETRIES", "many")

	_, err := config.Load("")

	assert.Error(t, err)
}

func TestValidate_RejectsBadCalendar(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Noloco.Token = "t"
	cfg.Noloco.ProjectID = "p"

	cfg.Payroll.ReferenceMonday = "2026-01-13"
	assert.Error(t, cfg.Validate())

	cfg.Payroll.ReferenceMonday = "2026-01-12"
	cfg.Payroll.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())
}

func TestEmailConfig_Validate(t *testing.T) {
	email := config.DefaultConfig().Email
	err := email.Validate()
	assert.ErrorIs(t, err, config.ErrEmailDisabled)
	assert.Contains(t, err.Error(), "EMAIL_RECIPIENTS")
	assert.Contains(t, err.Error(), "GMAIL_APP_PASSWORD")

	email.Recipients = []string{"ops@example.com"}
	email.Sender = "payroll@example.com"
	email.AppPassword = "app-pass"
	assert.NoError(t, email.Validate())
}
