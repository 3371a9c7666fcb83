package mail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig carries everything needed to reach the outbound server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	// From is the send-as identity placed on every message.
	From string
}

// SMTP is the live transport. One client is built at startup and
// reused for every group; sends are serial per the runner's pacing.
type SMTP struct {
	cfg       SMTPConfig
	client    *gomail.Client
	signature string
}

// NewSMTP builds the live transport. signatureHTML may be "" when no
// signature file is configured or readable.
func NewSMTP(cfg SMTPConfig, signatureHTML string) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	opts := []gomail.Option{
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Port != 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("build smtp client: %w", err)
	}
	return &SMTP{cfg: cfg, client: client, signature: signatureHTML}, nil
}

// Signature returns the signature block loaded at startup.
func (s *SMTP) Signature() (string, error) {
	return s.signature, nil
}

// Send delivers one message.
//
// Address errors are permanent: a malformed recipient will not get
// better on retry. Dial and delivery errors are transient.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return Permanent(fmt.Errorf("sender %q: %w", s.cfg.From, err))
	}
	if err := m.To(msg.To); err != nil {
		return Permanent(fmt.Errorf("recipient %q: %w", msg.To, err))
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTMLBody)

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return Transient(fmt.Errorf("deliver to %q: %w", msg.To, err))
	}
	return nil
}

// LoadSignature reads the named signature file from dir. A missing
// file is not an error: the caller falls back to the configured
// default block.
func LoadSignature(dir, name string) (string, error) {
	if dir == "" || name == "" {
		return "", nil
	}
	path := filepath.Join(dir, name+".html")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read signature %s: %w", path, err)
	}
	return string(data), nil
}
