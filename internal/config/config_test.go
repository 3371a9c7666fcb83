package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steelbid/followup/internal/proposal"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "followup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

const dryRunYAML = `
dry_run: true
stores:
  "2025": /data/2025.xlsx
days_first_follow_up: 10
`

func TestLoad_MergesOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, dryRunYAML))
	require.NoError(t, err)

	// Overridden.
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 10, cfg.DaysFirstFollowUp)
	assert.Equal(t, "/data/2025.xlsx", cfg.Stores["2025"])

	// Defaulted.
	assert.Equal(t, 14, cfg.DaysSubsequentFollowUps)
	assert.Equal(t, 3, cfg.MaxSendAttempts)
	assert.Len(t, cfg.ValidMonths, 12)
	assert.Equal(t, "Contact Email", cfg.Columns[proposal.FieldEmail])
	assert.True(t, cfg.BackupBeforeSave)
	assert.NotEmpty(t, cfg.Templates.Snippets)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	_, err := Load(writeConfig(t, `
dry_run: true
stores:
  "2025": /data/2025.xlsx
retry_delay_secs: 5
`))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestValidate_SchemaBounds(t *testing.T) {
	cfg := Default()
	cfg.DryRun = true
	cfg.Stores = map[string]string{"2025": "/data/2025.xlsx"}
	require.NoError(t, cfg.Validate())

	cfg.DaysFirstFollowUp = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "schema violation")
}

func TestValidate_MissingColumnMapping(t *testing.T) {
	cfg := Default()
	cfg.DryRun = true
	cfg.Stores = map[string]string{"2025": "/data/2025.xlsx"}
	delete(cfg.Columns, proposal.FieldEmail)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"email"`)
}

func TestValidate_ModeRequirements(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.Stores = map[string]string{"2025": "/data/2025.xlsx"}
		return cfg
	}

	t.Run("live needs smtp host", func(t *testing.T) {
		err := base().Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "smtp.host")
	})

	t.Run("live needs sender account", func(t *testing.T) {
		cfg := base()
		cfg.SMTP.Host = "smtp.example.com"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sender_account")
	})

	t.Run("live complete", func(t *testing.T) {
		cfg := base()
		cfg.SMTP.Host = "smtp.example.com"
		cfg.SMTP.SenderAccount = "sam@steelbid.example"
		require.NoError(t, cfg.Validate())
	})

	t.Run("test email needs recipient", func(t *testing.T) {
		cfg := base()
		cfg.SendTestEmail = true
		cfg.SMTP.Host = "smtp.example.com"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "test_email_recipient")
	})

	t.Run("test email needs sender account", func(t *testing.T) {
		cfg := base()
		cfg.SendTestEmail = true
		cfg.TestEmailRecipient = "me@example.com"
		cfg.SMTP.Host = "smtp.example.com"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sender_account")
	})

	t.Run("test email complete", func(t *testing.T) {
		cfg := base()
		cfg.SendTestEmail = true
		cfg.TestEmailRecipient = "me@example.com"
		cfg.SMTP.Host = "smtp.example.com"
		cfg.SMTP.SenderAccount = "sam@steelbid.example"
		require.NoError(t, cfg.Validate())
	})

	t.Run("dry test email skips smtp", func(t *testing.T) {
		cfg := base()
		cfg.DryRun = true
		cfg.SendTestEmail = true
		cfg.TestEmailRecipient = "me@example.com"
		require.NoError(t, cfg.Validate())
	})

	t.Run("dry run skips smtp", func(t *testing.T) {
		cfg := base()
		cfg.DryRun = true
		require.NoError(t, cfg.Validate())
	})
}

func TestParse_DefersValidation(t *testing.T) {
	// Live-invalid (no SMTP settings) parses fine; validation is the
	// caller's second step, after any overrides are applied.
	cfg, err := Parse(writeConfig(t, "stores:\n  \"2025\": /data/2025.xlsx\n"))
	require.NoError(t, err)
	require.Error(t, cfg.Validate())

	cfg.DryRun = true
	require.NoError(t, cfg.Validate())
}

func TestMode_Precedence(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ModeLive, cfg.Mode())

	cfg.DryRun = true
	assert.Equal(t, ModeDryRun, cfg.Mode())

	// Test-email wins over dry-run when both are set.
	cfg.SendTestEmail = true
	assert.Equal(t, ModeTestEmail, cfg.Mode())
}

func TestDelayAccessors(t *testing.T) {
	cfg := Default()
	cfg.RetryDelaySeconds = 30
	cfg.SendDelaySeconds = 2
	assert.Equal(t, 30*time.Second, cfg.RetryDelay())
	assert.Equal(t, 2*time.Second, cfg.SendDelay())
}
