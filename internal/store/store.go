package store

import (
	"log/slog"
	"time"
)

// Row is one data row of a sheet. Index is the 1-based workbook row
// number, usable directly as a write-back reference.
type Row struct {
	Index int
	Cells []string
}

// Sheet is one month sheet read in full.
type Sheet struct {
	Name    string
	Headers []string
	Rows    []Row
}

// Update is one pending write-back: the two mutable fields of one
// proposal row, addressed by sheet, row, and resolved column indexes
// (0-based, matching the positions resolved from the header row).
type Update struct {
	Sheet          string
	Row            int
	LastContactCol int
	StageCol       int
	LastContact    time.Time
	Stage          int
}

// Store is the tabular proposal store boundary.
//
// Commit is per-file all-or-nothing from the caller's perspective:
// either every update for the year lands or the file is untouched.
// Cross-year atomicity is explicitly not provided.
type Store interface {
	// Years lists the configured store identifiers in stable order.
	Years() []string

	// SheetNames lists the sheet names of one year's file. Callers
	// filter against the month allow-list before reading; out-of-scope
	// sheets are never parsed.
	SheetNames(year string) ([]string, error)

	// ReadSheet reads one sheet in full, headers split from data rows.
	ReadSheet(year, name string) (*Sheet, error)

	// Commit applies all pending updates for one year's file,
	// backing the file up first when backup is enabled.
	Commit(year string, updates []Update) error
}

// ReadOnly wraps a Store for dry-run mode: reads pass through, commits
// are logged and dropped. Decision logic upstream never branches on
// mode; this wrapper is the entire difference on the write side.
type ReadOnly struct {
	Store
}

// Commit logs what a live run would have written and does nothing.
func (r ReadOnly) Commit(year string, updates []Update) error {
	slog.Info("commit simulated", "year", year, "updates", len(updates))
	return nil
}
