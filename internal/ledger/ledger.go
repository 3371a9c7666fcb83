// Package ledger durably records confirmed sends in SQLite.
//
// The workbook is the system of record for follow-up state, but there
// is a crash window between "mail went out" and "workbook saved". The
// ledger closes it: a send is recorded the moment the transport
// confirms it. Collection skips any (row, stage) pair the ledger
// already holds and replays the missed workbook write-back from the
// recorded date, so a crashed run can neither repeat a follow-up nor
// stall the row's staging.
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/steelbid/followup/internal/proposal"
)

//go:embed schema.sql
var schemaSQL string

// Ledger wraps the SQLite sent log.
type Ledger struct {
	db *sql.DB
}

// Open creates or opens the ledger database at path.
//
// WAL mode and a single-connection pool follow the usual SQLite
// single-writer discipline; the run lock already guarantees one
// process, this guards against in-process misuse.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record inserts one confirmed send. Idempotent: re-recording the
// same (year, sheet, row, stage) is silently ignored.
func (l *Ledger) Record(ctx context.Context, runID string, src proposal.SourceRef, stage int, email string, sentOn time.Time) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO sent_log (year, sheet, row, stage, email, run_id, sent_on)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		src.Year,
		src.Sheet,
		src.Row,
		stage,
		email,
		runID,
		sentOn.Format("2006-01-02"),
	)
	if err != nil {
		return fmt.Errorf("record send %s/%s row %d stage %d: %w", src.Year, src.Sheet, src.Row, stage, err)
	}
	return nil
}

// SentOn returns the recorded send date for the given stage of the
// given row. A hit means a previous run sent the mail but may have
// died before the workbook commit landed; the caller replays that
// commit from the returned date.
func (l *Ledger) SentOn(ctx context.Context, src proposal.SourceRef, stage int) (time.Time, bool, error) {
	var day string
	err := l.db.QueryRowContext(ctx, `
		SELECT sent_on FROM sent_log
		WHERE year = ? AND sheet = ? AND row = ? AND stage = ?
	`,
		src.Year,
		src.Sheet,
		src.Row,
		stage,
	).Scan(&day)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query sent log: %w", err)
	}
	sentOn, err := time.Parse("2006-01-02", day)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sent log holds unreadable date %q: %w", day, err)
	}
	return sentOn, true, nil
}

// AlreadySent reports whether the given stage of the given row has a
// confirmed send on record.
func (l *Ledger) AlreadySent(ctx context.Context, src proposal.SourceRef, stage int) (bool, error) {
	_, ok, err := l.SentOn(ctx, src, stage)
	return ok, err
}
