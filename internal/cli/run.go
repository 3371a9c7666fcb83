package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/steelbid/followup/internal/config"
	"github.com/steelbid/followup/internal/ledger"
	"github.com/steelbid/followup/internal/mail"
	"github.com/steelbid/followup/internal/runlock"
	"github.com/steelbid/followup/internal/runner"
	"github.com/steelbid/followup/internal/store"
)

// runFollowUp wires and executes one run. Order matters: config, then
// log sink, then the run lock, then everything else. The lock release
// is deferred immediately after acquisition so every exit path,
// including signal-driven cancellation, releases it.
func runFollowUp(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := config.Parse(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitConfigError, "configuration rejected", err)
	}
	// The override lands before validation so a dry run is judged by
	// dry-run requirements (no SMTP settings needed).
	if opts.DryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitConfigError, "configuration rejected", err)
	}

	closeLog, err := setupLogging(cfg.LogFile, opts.Verbose)
	if err != nil {
		return WrapExitError(ExitConfigError, "log file unusable", err)
	}
	defer closeLog()

	lock, err := runlock.Acquire(cfg.LockFile)
	if err != nil {
		if errors.Is(err, runlock.ErrHeld) {
			return WrapExitError(ExitConfigError, "another instance is running", err)
		}
		return WrapExitError(ExitConfigError, "run lock unavailable", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Error("run lock release failed", "error", err)
		}
	}()

	run, cleanup, err := buildRunner(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, err := run.Run(ctx)
	if report != nil {
		fmt.Fprint(cmd.OutOrStdout(), report.Summary())
	}
	if err != nil {
		return WrapExitError(ExitFailure, "run aborted", err)
	}
	return nil
}

// buildRunner wires the mode-selected collaborators: transport, store,
// and sent ledger. The decision logic downstream is identical in every
// mode.
func buildRunner(cfg *config.Config) (*runner.Runner, func(), error) {
	cleanup := func() {}

	signature, err := mail.LoadSignature(cfg.SignatureDir, cfg.SignatureName)
	if err != nil {
		slog.Warn("signature file unreadable, using configured default", "error", err)
		signature = ""
	}

	var transport mail.Transport
	if cfg.DryRun {
		transport = mail.NewDryRun(signature)
	} else {
		transport, err = mail.NewSMTP(mail.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: os.Getenv(cfg.SMTP.PasswordEnv),
			From:     cfg.SMTP.SenderAccount,
		}, signature)
		if err != nil {
			return nil, cleanup, WrapExitError(ExitConfigError, "mail transport unavailable", err)
		}
	}

	var st store.Store
	if cfg.Mode() != config.ModeTestEmail {
		workbooks, err := store.NewWorkbooks(cfg.Stores, cfg.BackupBeforeSave)
		if err != nil {
			return nil, cleanup, WrapExitError(ExitConfigError, "proposal store unreadable", err)
		}
		st = workbooks
		if cfg.DryRun {
			st = store.ReadOnly{Store: workbooks}
		}
	}

	var sentLog runner.SentLog
	if cfg.LedgerFile != "" && cfg.Mode() != config.ModeTestEmail {
		led, err := ledger.Open(cfg.LedgerFile)
		if err != nil {
			return nil, cleanup, WrapExitError(ExitConfigError, "sent ledger unavailable", err)
		}
		cleanup = func() {
			if err := led.Close(); err != nil {
				slog.Error("sent ledger close failed", "error", err)
			}
		}
		sentLog = led
	}

	return runner.New(cfg, st, transport, sentLog, runner.WallClock{}, uuid.NewString()), cleanup, nil
}

// setupLogging installs the default slog handler, duplicating records
// to the append-only run log when one is configured.
func setupLogging(logFile string, verbose bool) (func(), error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	out := io.Writer(os.Stderr)
	closer := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", logFile, err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closer = func() { f.Close() }
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return closer, nil
}
