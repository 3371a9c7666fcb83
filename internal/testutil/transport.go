package testutil

import (
	"context"
	"sync"

	"github.com/steelbid/followup/internal/mail"
)

// RecorderTransport records every send and replays scripted errors.
// The zero value accepts every message.
type RecorderTransport struct {
	mu sync.Mutex

	// SignatureHTML is returned by Signature.
	SignatureHTML string

	// Script holds errors returned by successive Send calls; nil
	// entries succeed. Calls beyond the script succeed.
	Script []error

	// Sent records the messages of successful sends only.
	Sent []mail.Message

	// Attempts counts every Send call, successful or not.
	Attempts int
}

func (r *RecorderTransport) Signature() (string, error) {
	return r.SignatureHTML, nil
}

func (r *RecorderTransport) Send(ctx context.Context, msg mail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := r.Attempts
	r.Attempts++
	if call < len(r.Script) && r.Script[call] != nil {
		return r.Script[call]
	}
	r.Sent = append(r.Sent, msg)
	return nil
}
