package mail

import (
	"context"
	"log/slog"
)

// DryRun is the simulate-mode transport. It performs no network I/O
// and reports every send as successful, logging the same record shape
// as a live send so dry-run output is diffable against a real run.
type DryRun struct {
	signature string
}

// NewDryRun builds the simulated transport. signatureHTML keeps body
// composition identical to what a live run would produce.
func NewDryRun(signatureHTML string) *DryRun {
	return &DryRun{signature: signatureHTML}
}

func (d *DryRun) Signature() (string, error) {
	return d.signature, nil
}

func (d *DryRun) Send(ctx context.Context, msg Message) error {
	slog.Info("send simulated",
		"to", msg.To,
		"subject", msg.Subject,
		"body_bytes", len(msg.HTMLBody),
	)
	return nil
}
