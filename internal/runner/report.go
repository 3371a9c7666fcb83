package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/steelbid/followup/internal/config"
	"github.com/steelbid/followup/internal/engine"
)

// Report accumulates the outcome counters of one run. Every counter
// maps to a logged decision, so the summary is diffable between a
// dry run and the live run it previews.
type Report struct {
	Mode  config.Mode
	Today time.Time

	RowsSeen     int
	RowsRejected int

	SheetsSkipped int
	FileErrors    int

	SkippedDisposition int
	SkippedNotYetDue   int
	AlreadySent        int

	GroupsSent   int
	GroupsFailed int

	RowsCommitted  int
	CommitFailures int
}

// NewReport starts an empty report for the given mode and run date.
func NewReport(mode config.Mode, today time.Time) *Report {
	return &Report{Mode: mode, Today: today}
}

// CountSkip tallies a skip decision.
func (r *Report) CountSkip(reason engine.SkipReason) {
	switch reason {
	case engine.SkipDisposition:
		r.SkippedDisposition++
	default:
		r.SkippedNotYetDue++
	}
}

// Summary renders the report as stable, line-oriented text. Field
// order is fixed so two runs can be compared with a plain diff.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run completed (%s)\n", r.Mode)
	fmt.Fprintf(&b, "  date:                  %s\n", r.Today.Format("2006-01-02"))
	fmt.Fprintf(&b, "  rows seen:             %d\n", r.RowsSeen)
	fmt.Fprintf(&b, "  rows rejected:         %d\n", r.RowsRejected)
	fmt.Fprintf(&b, "  sheets skipped:        %d\n", r.SheetsSkipped)
	fmt.Fprintf(&b, "  file errors:           %d\n", r.FileErrors)
	fmt.Fprintf(&b, "  skipped (disposition): %d\n", r.SkippedDisposition)
	fmt.Fprintf(&b, "  skipped (not yet due): %d\n", r.SkippedNotYetDue)
	fmt.Fprintf(&b, "  already sent:          %d\n", r.AlreadySent)
	fmt.Fprintf(&b, "  groups sent:           %d\n", r.GroupsSent)
	fmt.Fprintf(&b, "  groups failed:         %d\n", r.GroupsFailed)
	fmt.Fprintf(&b, "  rows committed:        %d\n", r.RowsCommitted)
	fmt.Fprintf(&b, "  commit failures:       %d\n", r.CommitFailures)
	return b.String()
}
