package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// writeFixtureWorkbook writes a one-sheet workbook with two proposals:
// one long overdue for its first follow-up, one already won.
func writeFixtureWorkbook(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	_, err := f.NewSheet("January")
	require.NoError(t, err)
	require.NoError(t, f.DeleteSheet("Sheet1"))

	require.NoError(t, f.SetSheetRow("January", "A1", &[]any{
		"Date Proposal Submitted", "Last Correspondence", "Contact Email",
		"Contact", "Project", "Value", "Won", "Lost", "Re-Bid", "Follow-Up Stage",
	}))
	require.NoError(t, f.SetSheetRow("January", "A2", &[]any{
		"2024-01-05", "", "alice@example.com", "Alice Jones", "Riverside Plaza", "48250.50", "", "", "", "0",
	}))
	require.NoError(t, f.SetSheetRow("January", "A3", &[]any{
		"2024-01-08", "", "carol@example.com", "Carol M", "Depot Roof", "", "X", "", "", "0",
	}))

	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
}

func TestRootCommand_DryRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	workbook := filepath.Join(dir, "2024.xlsx")
	writeFixtureWorkbook(t, workbook)

	cfgPath := filepath.Join(dir, "followup.yaml")
	cfgYAML := fmt.Sprintf(`
dry_run: true
stores:
  "2024": %s
send_delay_seconds: 0
lock_file: %s
`, workbook, filepath.Join(dir, "followup.lock"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o644))

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--config", cfgPath})

	require.NoError(t, cmd.Execute())

	summary := out.String()
	assert.Contains(t, summary, "run completed (dry-run)")
	assert.Contains(t, summary, "rows seen:")
	assert.Contains(t, summary, "groups sent:")

	// Dry run: the workbook was not touched and no backup was made.
	f, err := excelize.OpenFile(workbook)
	require.NoError(t, err)
	defer f.Close()
	stage, err := f.GetCellValue("January", "J2")
	require.NoError(t, err)
	assert.Equal(t, "0", stage)

	matches, err := filepath.Glob(filepath.Join(dir, "*.backup-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRootCommand_DryRunFlagSkipsLiveRequirements(t *testing.T) {
	dir := t.TempDir()
	workbook := filepath.Join(dir, "2024.xlsx")
	writeFixtureWorkbook(t, workbook)

	// No dry_run in the file and no SMTP settings: invalid as a live
	// run, valid once the flag selects dry-run.
	cfgPath := filepath.Join(dir, "followup.yaml")
	cfgYAML := fmt.Sprintf(`
stores:
  "2024": %s
send_delay_seconds: 0
lock_file: %s
`, workbook, filepath.Join(dir, "followup.lock"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o644))

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "--dry-run"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "run completed (dry-run)")
}

func TestRootCommand_BadConfigExitsConfigError(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "followup.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("retry_delay_secs: 5\n"), 0o644))

	cmd := NewRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--config", cfgPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
}

func TestRootCommand_MissingStoreExitsConfigError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "followup.yaml")
	cfgYAML := fmt.Sprintf(`
dry_run: true
stores:
  "2024": %s
lock_file: %s
`, filepath.Join(dir, "absent.xlsx"), filepath.Join(dir, "followup.lock"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o644))

	cmd := NewRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--config", cfgPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
	assert.Contains(t, err.Error(), "proposal store unreadable")
}
