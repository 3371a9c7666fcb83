// Package runner drives one complete follow-up run: collect due
// proposals across every configured store, consolidate them per
// recipient, send, and commit state for what actually went out.
//
// Phase order is the safety model: state commit for a group happens
// strictly after that group's send is confirmed, never speculatively.
// Mode differences (live, dry-run) live entirely in the collaborators
// wired in at startup; nothing in here branches on mode except the
// decision to record confirmed sends.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/steelbid/followup/internal/compose"
	"github.com/steelbid/followup/internal/config"
	"github.com/steelbid/followup/internal/engine"
	"github.com/steelbid/followup/internal/mail"
	"github.com/steelbid/followup/internal/proposal"
	"github.com/steelbid/followup/internal/store"
)

// Clock supplies the run date. Injected so eligibility is testable at
// a fixed point in time.
type Clock interface {
	Today() time.Time
}

// WallClock is the production clock.
type WallClock struct{}

func (WallClock) Today() time.Time {
	return proposal.Date(time.Now())
}

// SentLog is the durable record of confirmed sends, consulted during
// collection and written after each confirmed send. Implemented by
// the ledger package; nil disables the check.
type SentLog interface {
	Record(ctx context.Context, runID string, src proposal.SourceRef, stage int, email string, sentOn time.Time) error
	SentOn(ctx context.Context, src proposal.SourceRef, stage int) (time.Time, bool, error)
}

// Runner executes one run.
type Runner struct {
	cfg       *config.Config
	store     store.Store
	transport mail.Transport
	sentLog   SentLog
	clock     Clock
	composer  *compose.Composer
	orch      *engine.Orchestrator
	runID     string

	// recordSends is true only in live mode; dry-run consults the
	// sent log but writes nothing to it.
	recordSends bool
}

// New wires a Runner from its collaborators. sentLog may be nil.
func New(cfg *config.Config, st store.Store, transport mail.Transport, sentLog SentLog, clock Clock, runID string) *Runner {
	return &Runner{
		cfg:         cfg,
		store:       st,
		transport:   transport,
		sentLog:     sentLog,
		clock:       clock,
		composer:    compose.New(cfg.Templates, cfg.DefaultSignature),
		orch:        engine.NewOrchestrator(transport, cfg.MaxSendAttempts, cfg.RetryDelay(), cfg.SendDelay()),
		runID:       runID,
		recordSends: cfg.Mode() == config.ModeLive,
	}
}

// sheetKey addresses resolved column indexes per (year, sheet).
type sheetKey struct {
	year  string
	sheet string
}

// Run executes the configured mode end to end and returns the report.
// Per-row, per-group, and per-file failures are isolated and counted;
// only context cancellation surfaces as an error.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	today := proposal.Date(r.clock.Today())
	report := NewReport(r.cfg.Mode(), today)

	slog.Info("run starting",
		"run_id", r.runID,
		"mode", r.cfg.Mode().String(),
		"date", today.Format("2006-01-02"),
	)

	if r.cfg.Mode() == config.ModeTestEmail {
		r.runTestEmail(ctx, report, today)
		slog.Info("run finished", "run_id", r.runID)
		return report, ctx.Err()
	}

	slog.Info("collecting", "run_id", r.runID)
	grouper, cols, repairs := r.collect(ctx, report, today)

	slog.Info("sending", "run_id", r.runID, "groups", grouper.Len())
	sent := r.send(ctx, grouper.Groups(), report, today)

	slog.Info("committing", "run_id", r.runID, "groups", len(sent))
	r.commit(sent, cols, repairs, report, today)

	slog.Info("run finished", "run_id", r.runID)
	return report, ctx.Err()
}

// collect walks every in-scope sheet of every configured year, feeding
// normalized rows through the eligibility check into the grouper. It
// also returns the write-backs owed to rows whose send is on record
// from a run that crashed before committing.
func (r *Runner) collect(ctx context.Context, report *Report, today time.Time) (*engine.Grouper, map[sheetKey]proposal.Columns, map[string][]store.Update) {
	grouper := engine.NewGrouper()
	cols := make(map[sheetKey]proposal.Columns)
	repairs := make(map[string][]store.Update)
	headerMap := r.cfg.HeaderMap()

	for _, year := range r.store.Years() {
		names, err := r.store.SheetNames(year)
		if err != nil {
			slog.Error("store unreadable, skipping year", "year", year, "error", err)
			report.FileErrors++
			continue
		}
		present := make(map[string]bool, len(names))
		for _, n := range names {
			present[n] = true
		}

		// Iterate the allow-list in configured order; sheets not on it
		// are never parsed.
		for _, month := range r.cfg.ValidMonths {
			if !present[month] {
				continue
			}
			sheet, err := r.store.ReadSheet(year, month)
			if err != nil {
				slog.Error("sheet unreadable, skipping", "year", year, "sheet", month, "error", err)
				report.FileErrors++
				continue
			}
			if len(sheet.Headers) == 0 {
				continue
			}

			resolved, err := proposal.ResolveColumns(sheet.Headers, headerMap)
			if err != nil {
				slog.Warn("sheet skipped: headers unresolved", "year", year, "sheet", month, "error", err)
				report.SheetsSkipped++
				continue
			}
			cols[sheetKey{year, month}] = resolved

			r.collectRows(ctx, grouper, report, repairs, sheet, resolved, year, today)
		}
	}
	return grouper, cols, repairs
}

func (r *Runner) collectRows(ctx context.Context, grouper *engine.Grouper, report *Report, repairs map[string][]store.Update, sheet *store.Sheet, cols proposal.Columns, year string, today time.Time) {
	for _, row := range sheet.Rows {
		if proposal.Empty(row.Cells) {
			continue
		}
		report.RowsSeen++
		ref := proposal.SourceRef{Year: year, Sheet: sheet.Name, Row: row.Index}

		fact, err := proposal.Normalize(row.Cells, cols, ref, today)
		if err != nil {
			report.RowsRejected++
			if re, ok := proposal.AsReject(err); ok {
				slog.Warn("row rejected",
					"year", year, "sheet", sheet.Name, "row", row.Index,
					"reason", string(re.Reason), "field", re.Field,
				)
			} else {
				slog.Warn("row rejected", "year", year, "sheet", sheet.Name, "row", row.Index, "error", err)
			}
			continue
		}

		decision := engine.Decide(fact, today, r.cfg.DaysFirstFollowUp, r.cfg.DaysSubsequentFollowUps)
		if !decision.Due {
			report.CountSkip(decision.Reason)
			slog.Debug("proposal skipped",
				"year", year, "sheet", sheet.Name, "row", row.Index,
				"project", fact.Project, "reason", string(decision.Reason),
			)
			continue
		}

		if r.sentLog != nil {
			sentOn, already, err := r.sentLog.SentOn(ctx, fact.Source, decision.Stage)
			if err != nil {
				slog.Error("sent-log lookup failed", "year", year, "sheet", sheet.Name, "row", row.Index, "error", err)
			} else if already {
				// A previous run sent this stage but died before the
				// workbook commit. Never send it again; replay the
				// missed write-back instead so later stages still come
				// due on schedule.
				report.AlreadySent++
				repairs[year] = append(repairs[year], store.Update{
					Sheet:          sheet.Name,
					Row:            row.Index,
					LastContactCol: cols.LastContact,
					StageCol:       cols.Stage,
					LastContact:    sentOn,
					Stage:          decision.Stage + 1,
				})
				slog.Warn("proposal skipped: send already on record, replaying write-back",
					"year", year, "sheet", sheet.Name, "row", row.Index,
					"project", fact.Project, "stage", decision.Stage,
					"sent_on", sentOn.Format("2006-01-02"),
				)
				continue
			}
		}

		slog.Info("proposal due",
			"year", year, "sheet", sheet.Name, "row", row.Index,
			"project", fact.Project, "stage", decision.Stage, "email", engine.CanonicalEmail(fact.Email),
		)
		grouper.Add(fact)
	}
}

// send composes and dispatches each group, returning the groups whose
// send was confirmed.
func (r *Runner) send(ctx context.Context, groups []*engine.Group, report *Report, today time.Time) []*engine.Group {
	if len(groups) == 0 {
		return nil
	}

	signature, err := r.transport.Signature()
	if err != nil {
		slog.Warn("signature unavailable, using configured default", "error", err)
		signature = ""
	}

	var sent []*engine.Group
	for _, g := range groups {
		if ctx.Err() != nil {
			slog.Warn("send phase interrupted", "remaining", len(groups)-len(sent))
			break
		}

		msg := mail.Message{
			To:       g.Email,
			Subject:  r.composer.Subject(g.Facts),
			HTMLBody: r.composer.Body(g.Name, g.Facts, signature),
		}
		out := r.orch.Send(ctx, g.Key, msg)
		if !out.Sent {
			report.GroupsFailed++
			continue
		}
		report.GroupsSent++
		sent = append(sent, g)

		if r.recordSends && r.sentLog != nil {
			for _, f := range g.Facts {
				if err := r.sentLog.Record(ctx, r.runID, f.Source, f.Stage, g.Key, today); err != nil {
					// The send happened; a ledger miss only weakens
					// crash recovery, it must not fail the group.
					slog.Error("sent-log record failed",
						"year", f.Source.Year, "sheet", f.Source.Sheet, "row", f.Source.Row,
						"error", err,
					)
				}
			}
		}
	}
	return sent
}

// commit writes back last-correspondence and stage for every proposal
// of every confirmed group, batched per year file together with the
// replayed write-backs for sends on record from earlier runs.
func (r *Runner) commit(sent []*engine.Group, cols map[sheetKey]proposal.Columns, repairs map[string][]store.Update, report *Report, today time.Time) {
	byYear := make(map[string][]store.Update)
	for year, updates := range repairs {
		byYear[year] = append(byYear[year], updates...)
	}
	for _, g := range sent {
		for _, f := range g.Facts {
			c, ok := cols[sheetKey{f.Source.Year, f.Source.Sheet}]
			if !ok {
				// Cannot happen for facts that came through collect,
				// but write-back to a guessed column is never worth it.
				slog.Error("no resolved columns for committed row",
					"year", f.Source.Year, "sheet", f.Source.Sheet, "row", f.Source.Row)
				continue
			}
			byYear[f.Source.Year] = append(byYear[f.Source.Year], store.Update{
				Sheet:          f.Source.Sheet,
				Row:            f.Source.Row,
				LastContactCol: c.LastContact,
				StageCol:       c.Stage,
				LastContact:    today,
				Stage:          f.Stage + 1,
			})
		}
	}

	years := make([]string, 0, len(byYear))
	for year := range byYear {
		years = append(years, year)
	}
	sort.Strings(years)

	for _, year := range years {
		updates := byYear[year]
		if err := r.store.Commit(year, updates); err != nil {
			// Per-file isolation: this year's updates are lost (the
			// rows stay eligible next run), other years still commit.
			slog.Error("store commit failed", "year", year, "updates", len(updates), "error", err)
			report.CommitFailures++
			continue
		}
		report.RowsCommitted += len(updates)
	}
}

// runTestEmail sends one fixed sample message per configured snippet
// stage to the test recipient, bypassing the store entirely.
func (r *Runner) runTestEmail(ctx context.Context, report *Report, today time.Time) {
	signature, err := r.transport.Signature()
	if err != nil {
		slog.Warn("signature unavailable, using configured default", "error", err)
		signature = ""
	}

	for stage := range r.cfg.Templates.Snippets {
		fact := proposal.Fact{
			Project:     fmt.Sprintf("Sample Project %d", stage+1),
			Email:       r.cfg.TestEmailRecipient,
			ContactName: "Test Recipient",
			Submitted:   today.AddDate(0, 0, -10),
			Value:       25000,
			HasValue:    true,
			Stage:       stage,
		}
		msg := mail.Message{
			To:       r.cfg.TestEmailRecipient,
			Subject:  r.composer.Subject([]proposal.Fact{fact}),
			HTMLBody: r.composer.Body(fact.ContactName, []proposal.Fact{fact}, signature),
		}
		out := r.orch.Send(ctx, "test-stage-"+fmt.Sprint(stage), msg)
		if out.Sent {
			report.GroupsSent++
		} else {
			report.GroupsFailed++
		}
	}
}
