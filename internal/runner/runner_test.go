package runner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steelbid/followup/internal/config"
	"github.com/steelbid/followup/internal/ledger"
	"github.com/steelbid/followup/internal/mail"
	"github.com/steelbid/followup/internal/proposal"
	"github.com/steelbid/followup/internal/store"
	"github.com/steelbid/followup/internal/testutil"
)

var runDate = time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RetryDelaySeconds = 0
	cfg.SendDelaySeconds = 0
	return cfg
}

// januarySheet seeds the canonical test sheet:
//
//	row 2: due for the first follow-up (alice)
//	row 3: due for a second follow-up (bob)
//	row 4: won, excluded
//	row 5: submitted three days ago, not yet due
//	row 6: unparsable submission date, rejected
//	row 7: due, same contact as row 2 under different casing
func januarySheet(m *testutil.MemoryStore) {
	headers := []string{
		"Date Proposal Submitted", "Last Correspondence", "Contact Email",
		"Contact", "Project", "Value", "Won", "Lost", "Re-Bid", "Follow-Up Stage",
	}
	rows := [][]string{
		{"2025-03-05", "", "alice@example.com", "Alice Jones", "Riverside Plaza", "48250.50", "", "", "", "0"},
		{"2025-02-01", "2025-02-20", "bob@example.com", "Bob Lee", "Harbor Crane", "", "", "", "", "1"},
		{"2025-03-01", "", "carol@example.com", "Carol M", "Depot Roof", "1000", "X", "", "", "0"},
		{"2025-03-12", "", "dave@example.com", "Dave N", "Yard Gate", "", "", "", "", "0"},
		{"soon", "", "erin@example.com", "Erin O", "Mill Annex", "", "", "", "", "0"},
		{"2025-03-01", "", "ALICE@EXAMPLE.COM", "Alice Jones", "Quarry Hopper", "", "", "", "", "0"},
	}
	m.AddSheet("2025", "January", headers, rows)
}

const (
	colLastContact = 1
	colStage       = 9
)

func newTestRunner(cfg *config.Config, st store.Store, transport mail.Transport, sentLog SentLog) *Runner {
	return New(cfg, st, transport, sentLog, testutil.NewFixedClock(runDate), "run-test-001")
}

func TestRun_SendsAndCommits(t *testing.T) {
	cfg := testConfig()
	mem := testutil.NewMemoryStore()
	januarySheet(mem)
	transport := &testutil.RecorderTransport{}

	report, err := newTestRunner(cfg, mem, transport, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, report.RowsSeen)
	assert.Equal(t, 1, report.RowsRejected)
	assert.Equal(t, 1, report.SkippedDisposition)
	assert.Equal(t, 1, report.SkippedNotYetDue)
	assert.Equal(t, 2, report.GroupsSent)
	assert.Equal(t, 0, report.GroupsFailed)
	assert.Equal(t, 3, report.RowsCommitted)
	assert.Equal(t, 0, report.CommitFailures)

	// Alice's two proposals consolidate into one message; group order
	// is discovery order.
	require.Len(t, transport.Sent, 2)
	assert.Equal(t, "alice@example.com", transport.Sent[0].To)
	assert.Equal(t, "Checking In on Riverside Plaza and Quarry Hopper", transport.Sent[0].Subject)
	assert.Equal(t, "bob@example.com", transport.Sent[1].To)
	assert.Equal(t, "Quick Follow-Up on Our Harbor Crane Proposal", transport.Sent[1].Subject)

	// Committed rows carry today's date and an incremented stage.
	assert.Equal(t, "03-15-2025", mem.Cell("2025", "January", 2, colLastContact))
	assert.Equal(t, "1", mem.Cell("2025", "January", 2, colStage))
	assert.Equal(t, "2", mem.Cell("2025", "January", 3, colStage))
	assert.Equal(t, "1", mem.Cell("2025", "January", 7, colStage))

	// Untouched rows keep their state.
	assert.Equal(t, "0", mem.Cell("2025", "January", 4, colStage))
	assert.Equal(t, "0", mem.Cell("2025", "January", 5, colStage))

	// One commit call, batched for the year.
	require.Len(t, mem.Commits, 1)
	assert.Equal(t, "2025", mem.Commits[0].Year)
	assert.Len(t, mem.Commits[0].Updates, 3)
}

func TestRun_FailedGroupLeftUntouched(t *testing.T) {
	cfg := testConfig()
	mem := testutil.NewMemoryStore()
	januarySheet(mem)
	// Alice's group is sent first and fails permanently; Bob's group
	// must still go out and commit.
	transport := &testutil.RecorderTransport{
		Script: []error{mail.Permanent(errors.New("recipient rejected"))},
	}

	report, err := newTestRunner(cfg, mem, transport, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.GroupsFailed)
	assert.Equal(t, 1, report.GroupsSent)
	assert.Equal(t, 1, report.RowsCommitted)

	// No state change for the failed group: eligible again next run.
	assert.Equal(t, "", mem.Cell("2025", "January", 2, colLastContact))
	assert.Equal(t, "0", mem.Cell("2025", "January", 2, colStage))
	assert.Equal(t, "0", mem.Cell("2025", "January", 7, colStage))

	// Bob's row committed.
	assert.Equal(t, "2", mem.Cell("2025", "January", 3, colStage))
}

func TestRun_SecondRunIsNoOp(t *testing.T) {
	cfg := testConfig()
	mem := testutil.NewMemoryStore()
	januarySheet(mem)

	_, err := newTestRunner(cfg, mem, &testutil.RecorderTransport{}, nil).Run(context.Background())
	require.NoError(t, err)

	// Same day, fresh runner: everything sent this morning now fails
	// the threshold, so nothing goes out and nothing is written.
	transport := &testutil.RecorderTransport{}
	report, err := newTestRunner(cfg, mem, transport, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.GroupsSent)
	assert.Equal(t, 0, report.RowsCommitted)
	assert.Equal(t, 4, report.SkippedNotYetDue)
	assert.Empty(t, transport.Sent)
	require.Len(t, mem.Commits, 1) // only the first run's commit
}

func TestRun_DryRunParity(t *testing.T) {
	cfg := testConfig()

	liveMem := testutil.NewMemoryStore()
	januarySheet(liveMem)
	liveReport, err := newTestRunner(cfg, liveMem, &testutil.RecorderTransport{}, nil).Run(context.Background())
	require.NoError(t, err)

	dryCfg := testConfig()
	dryCfg.DryRun = true
	dryMem := testutil.NewMemoryStore()
	januarySheet(dryMem)
	dryReport, err := newTestRunner(dryCfg, store.ReadOnly{Store: dryMem}, mail.NewDryRun(""), nil).Run(context.Background())
	require.NoError(t, err)

	// Identical decisions, identical counters; only the side effects
	// differ.
	assert.Equal(t, liveReport.RowsSeen, dryReport.RowsSeen)
	assert.Equal(t, liveReport.RowsRejected, dryReport.RowsRejected)
	assert.Equal(t, liveReport.SkippedDisposition, dryReport.SkippedDisposition)
	assert.Equal(t, liveReport.SkippedNotYetDue, dryReport.SkippedNotYetDue)
	assert.Equal(t, liveReport.GroupsSent, dryReport.GroupsSent)
	assert.Equal(t, liveReport.RowsCommitted, dryReport.RowsCommitted)

	// The dry-run store saw no commit and no cell changed.
	assert.Empty(t, dryMem.Commits)
	assert.Equal(t, "", dryMem.Cell("2025", "January", 2, colLastContact))
	assert.Equal(t, "0", dryMem.Cell("2025", "January", 2, colStage))
}

func TestRun_CommitFailureIsolatedPerYear(t *testing.T) {
	cfg := testConfig()
	mem := testutil.NewMemoryStore()
	januarySheet(mem)
	// A second year with one more due proposal.
	mem.AddSheet("2024", "December", []string{
		"Date Proposal Submitted", "Last Correspondence", "Contact Email",
		"Contact", "Project", "Value", "Won", "Lost", "Re-Bid", "Follow-Up Stage",
	}, [][]string{
		{"2024-12-01", "2025-02-01", "frank@example.com", "Frank P", "Silo Repair", "", "", "", "", "1"},
	})
	mem.FailCommit["2024"] = true

	report, err := newTestRunner(cfg, mem, &testutil.RecorderTransport{}, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.GroupsSent)
	assert.Equal(t, 1, report.CommitFailures)
	// 2025's three rows still landed despite 2024 failing.
	assert.Equal(t, 3, report.RowsCommitted)
	assert.Equal(t, "1", mem.Cell("2024", "December", 2, colStage))
}

func TestRun_UnresolvedHeadersSkipSheetOnly(t *testing.T) {
	cfg := testConfig()
	mem := testutil.NewMemoryStore()
	// January's email header does not match the configured mapping, so
	// the whole sheet is unusable. February is fine.
	mem.AddSheet("2025", "January", []string{
		"Date Proposal Submitted", "Last Correspondence", "Email Address",
		"Contact", "Project", "Value", "Won", "Lost", "Re-Bid", "Follow-Up Stage",
	}, [][]string{
		{"2025-03-01", "", "gina@example.com", "Gina Q", "Tank Farm", "", "", "", "", "0"},
	})
	mem.AddSheet("2025", "February", []string{
		"Date Proposal Submitted", "Last Correspondence", "Contact Email",
		"Contact", "Project", "Value", "Won", "Lost", "Re-Bid", "Follow-Up Stage",
	}, [][]string{
		{"2025-03-01", "", "hank@example.com", "Hank R", "Pier Decking", "", "", "", "", "0"},
	})

	transport := &testutil.RecorderTransport{}
	report, err := newTestRunner(cfg, mem, transport, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.SheetsSkipped)
	// Only February's row was parsed at all.
	assert.Equal(t, 1, report.RowsSeen)
	assert.Equal(t, 1, report.GroupsSent)
	assert.Equal(t, 1, report.RowsCommitted)

	require.Len(t, transport.Sent, 1)
	assert.Equal(t, "hank@example.com", transport.Sent[0].To)
	assert.Equal(t, "1", mem.Cell("2025", "February", 2, colStage))

	// The broken sheet was left untouched.
	assert.Equal(t, "0", mem.Cell("2025", "January", 2, colStage))
}

func TestRun_LedgerSkipsRecordedSends(t *testing.T) {
	cfg := testConfig()
	mem := testutil.NewMemoryStore()
	januarySheet(mem)

	led, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer led.Close()

	// A previous run sent alice's first follow-up for row 2 two days
	// ago but died before the workbook commit.
	crashDate := runDate.AddDate(0, 0, -2)
	ref := proposal.SourceRef{Year: "2025", Sheet: "January", Row: 2}
	require.NoError(t, led.Record(context.Background(), "run-crashed", ref, 0, "alice@example.com", crashDate))

	transport := &testutil.RecorderTransport{}
	report, err := newTestRunner(cfg, mem, transport, led).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.AlreadySent)
	assert.Equal(t, 2, report.GroupsSent)
	// Bob's and alice's group rows plus the replayed write-back.
	assert.Equal(t, 3, report.RowsCommitted)

	// With row 2 filtered out, Bob's group forms first and Alice's
	// message covers only the unrecorded proposal.
	require.Len(t, transport.Sent, 2)
	assert.Equal(t, "bob@example.com", transport.Sent[0].To)
	assert.Equal(t, "Quick Follow-Up on Our Quarry Hopper Proposal", transport.Sent[1].Subject)

	// The skipped row's workbook state was repaired from the record:
	// the recorded send date, stage advanced past the recorded stage.
	assert.Equal(t, "03-13-2025", mem.Cell("2025", "January", 2, colLastContact))
	assert.Equal(t, "1", mem.Cell("2025", "January", 2, colStage))

	// This run's sends were recorded for the next crash window.
	sent, err := led.AlreadySent(context.Background(), proposal.SourceRef{Year: "2025", Sheet: "January", Row: 7}, 0)
	require.NoError(t, err)
	assert.True(t, sent)

	// A follow-on run sees the repaired row at stage 1 with a recent
	// contact date: it parks as not yet due instead of re-hitting the
	// sent log, so staging resumes its normal cadence.
	report2, err := newTestRunner(cfg, mem, &testutil.RecorderTransport{}, led).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report2.AlreadySent)
	assert.Equal(t, 0, report2.GroupsSent)
	assert.Equal(t, 4, report2.SkippedNotYetDue)
}

func TestRun_TestEmailMode(t *testing.T) {
	cfg := testConfig()
	cfg.SendTestEmail = true
	cfg.TestEmailRecipient = "me@example.com"
	transport := &testutil.RecorderTransport{}

	report, err := newTestRunner(cfg, nil, transport, nil).Run(context.Background())
	require.NoError(t, err)

	// One sample message per configured snippet stage, store untouched.
	require.Len(t, transport.Sent, len(cfg.Templates.Snippets))
	for _, msg := range transport.Sent {
		assert.Equal(t, "me@example.com", msg.To)
	}
	assert.Equal(t, len(cfg.Templates.Snippets), report.GroupsSent)
	assert.Equal(t, 0, report.RowsSeen)
}

func TestReport_SummaryShape(t *testing.T) {
	r := NewReport(config.ModeDryRun, runDate)
	r.RowsSeen = 6
	r.GroupsSent = 2

	s := r.Summary()
	assert.Contains(t, s, "run completed (dry-run)")
	assert.Contains(t, s, "2025-03-15")
	assert.Contains(t, s, "rows seen:")
	assert.Contains(t, s, "groups sent:")
}
