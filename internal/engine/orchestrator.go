package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/steelbid/followup/internal/mail"
)

// Outcome is the result of driving one group through the transport.
type Outcome struct {
	Sent     bool
	Attempts int
	Err      error
}

// Orchestrator drives the mail transport for one group at a time with
// bounded retry and inter-send pacing.
//
// Retry is a plain counted loop with a fixed delay, not backoff: the
// transport's rate limits are already respected by the inter-send
// delay, and the bound keeps a dead server from stalling a run.
type Orchestrator struct {
	transport      mail.Transport
	maxAttempts    int
	retryDelay     time.Duration
	interSendDelay time.Duration

	// sleep is swapped out in tests so retry timing is assertable
	// without real waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator builds an Orchestrator. maxAttempts < 1 is treated
// as 1: every group gets at least one attempt.
func NewOrchestrator(t mail.Transport, maxAttempts int, retryDelay, interSendDelay time.Duration) *Orchestrator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Orchestrator{
		transport:      t,
		maxAttempts:    maxAttempts,
		retryDelay:     retryDelay,
		interSendDelay: interSendDelay,
		sleep:          sleepCtx,
	}
}

// Send attempts delivery of msg for the named group.
//
// Transient failures are retried up to the attempt bound with a fixed
// delay between attempts. Permanent failures stop immediately. After
// the final attempt, successful or not, the inter-send delay runs so
// the next group respects the transport's pacing.
func (o *Orchestrator) Send(ctx context.Context, key string, msg mail.Message) Outcome {
	out := o.attempt(ctx, key, msg)

	if err := o.sleep(ctx, o.interSendDelay); err != nil {
		// Pacing interrupted by shutdown; the send outcome stands.
		slog.Debug("inter-send pacing interrupted", "group", key, "error", err)
	}
	return out
}

func (o *Orchestrator) attempt(ctx context.Context, key string, msg mail.Message) Outcome {
	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Attempts: attempt - 1, Err: fmt.Errorf("send aborted: %w", err)}
		}

		err := o.transport.Send(ctx, msg)
		if err == nil {
			slog.Info("group sent",
				"group", key,
				"to", msg.To,
				"subject", msg.Subject,
				"attempt", attempt,
			)
			return Outcome{Sent: true, Attempts: attempt}
		}
		lastErr = err

		if !mail.IsTransient(err) {
			slog.Error("group send failed permanently",
				"group", key,
				"to", msg.To,
				"attempt", attempt,
				"error", err,
			)
			return Outcome{Attempts: attempt, Err: err}
		}

		slog.Warn("group send failed, will retry",
			"group", key,
			"to", msg.To,
			"attempt", attempt,
			"max_attempts", o.maxAttempts,
			"error", err,
		)
		if attempt < o.maxAttempts {
			if err := o.sleep(ctx, o.retryDelay); err != nil {
				return Outcome{Attempts: attempt, Err: fmt.Errorf("send aborted: %w", err)}
			}
		}
	}

	slog.Error("group send exhausted attempts",
		"group", key,
		"to", msg.To,
		"attempts", o.maxAttempts,
		"error", lastErr,
	)
	return Outcome{Attempts: o.maxAttempts, Err: fmt.Errorf("exhausted %d attempts: %w", o.maxAttempts, lastErr)}
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
