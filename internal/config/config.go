// Package config loads, defaults, and validates the run configuration.
//
// Validation is two-layered: the embedded CUE schema vets shapes and
// bounds, then Go code checks the conditional requirements of the
// selected run mode. Everything that fails here is startup-fatal; the
// run loop never sees a half-valid configuration.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/steelbid/followup/internal/compose"
	"github.com/steelbid/followup/internal/proposal"
)

//go:embed schema.cue
var schemaCUE string

// Error is a startup-fatal configuration problem.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid configuration: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

func invalid(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// Mode is the closed set of run modes, selected once at startup.
type Mode int

const (
	ModeLive Mode = iota
	ModeDryRun
	ModeTestEmail
)

func (m Mode) String() string {
	switch m {
	case ModeDryRun:
		return "dry-run"
	case ModeTestEmail:
		return "test-email"
	default:
		return "live"
	}
}

// SMTP holds the outbound server settings. The password is never in
// the file; password_env names the environment variable carrying it.
type SMTP struct {
	Host        string `yaml:"host" json:"host"`
	Port        int    `yaml:"port" json:"port"`
	Username    string `yaml:"username" json:"username"`
	PasswordEnv string `yaml:"password_env" json:"password_env"`

	// SenderAccount is the send-as identity placed on every message.
	SenderAccount string `yaml:"sender_account" json:"sender_account"`
}

// Config is the full configuration surface.
type Config struct {
	DryRun             bool   `yaml:"dry_run" json:"dry_run"`
	SendTestEmail      bool   `yaml:"send_test_email" json:"send_test_email"`
	TestEmailRecipient string `yaml:"test_email_recipient" json:"test_email_recipient"`

	// Stores maps a year identifier to its workbook path.
	Stores map[string]string `yaml:"stores" json:"stores"`

	// ValidMonths is the ordered sheet allow-list; sheets not named
	// here are never parsed.
	ValidMonths []string `yaml:"valid_months" json:"valid_months"`

	DaysFirstFollowUp       int `yaml:"days_first_follow_up" json:"days_first_follow_up"`
	DaysSubsequentFollowUps int `yaml:"days_subsequent_follow_ups" json:"days_subsequent_follow_ups"`

	MaxSendAttempts   int `yaml:"max_send_attempts" json:"max_send_attempts"`
	RetryDelaySeconds int `yaml:"retry_delay_seconds" json:"retry_delay_seconds"`
	SendDelaySeconds  int `yaml:"send_delay_seconds" json:"send_delay_seconds"`

	SMTP SMTP `yaml:"smtp" json:"smtp"`

	SignatureDir     string `yaml:"signature_dir" json:"signature_dir"`
	SignatureName    string `yaml:"signature_name" json:"signature_name"`
	DefaultSignature string `yaml:"default_signature" json:"default_signature"`

	BackupBeforeSave bool   `yaml:"backup_before_save" json:"backup_before_save"`
	LockFile         string `yaml:"lock_file" json:"lock_file"`
	LogFile          string `yaml:"log_file" json:"log_file"`
	LedgerFile       string `yaml:"ledger_file" json:"ledger_file"`

	// Columns maps semantic field keys to the header text used in the
	// store, so reordering or renaming source columns is a config
	// change, not a code change.
	Columns map[string]string `yaml:"columns" json:"columns"`

	Templates compose.Templates `yaml:"templates" json:"templates"`
}

// Mode returns the run mode the configuration selects.
func (c *Config) Mode() Mode {
	switch {
	case c.SendTestEmail:
		return ModeTestEmail
	case c.DryRun:
		return ModeDryRun
	default:
		return ModeLive
	}
}

// RetryDelay returns the fixed delay between send attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// SendDelay returns the pacing delay between groups.
func (c *Config) SendDelay() time.Duration {
	return time.Duration(c.SendDelaySeconds) * time.Second
}

// HeaderMap returns the column mapping as the proposal package wants it.
func (c *Config) HeaderMap() proposal.HeaderMap {
	return proposal.HeaderMap(c.Columns)
}

// Default returns the built-in configuration: the original log's
// headers, a full-year month allow-list, 7/14 day thresholds, and the
// stock template set.
func Default() *Config {
	return &Config{
		ValidMonths: []string{
			"January", "February", "March", "April", "May", "June",
			"July", "August", "September", "October", "November", "December",
		},
		DaysFirstFollowUp:       7,
		DaysSubsequentFollowUps: 14,
		MaxSendAttempts:         3,
		RetryDelaySeconds:       30,
		SendDelaySeconds:        1,
		BackupBeforeSave:        true,
		LockFile:                "followup.lock",
		Columns: map[string]string{
			proposal.FieldSubmitted:   "Date Proposal Submitted",
			proposal.FieldLastContact: "Last Correspondence",
			proposal.FieldEmail:       "Contact Email",
			proposal.FieldContact:     "Contact",
			proposal.FieldProject:     "Project",
			proposal.FieldValue:       "Value",
			proposal.FieldWon:         "Won",
			proposal.FieldLost:        "Lost",
			proposal.FieldReBid:       "Re-Bid",
			proposal.FieldStage:       "Follow-Up Stage",
		},
		Templates: compose.Templates{
			Subjects: compose.Subjects{
				Single:   "Quick Follow-Up on Our {project} Proposal",
				Two:      "Checking In on {projects}",
				Multiple: "Checking In on {count} Open Proposals",
			},
			Greeting: "Hi {contact},<br><br>",
			Intro:    "I hope you're doing well! I wanted to touch base on the proposals we have out with you.<br><br>",
			Item:     "<b>{project}</b> (submitted {date}{value}): {snippet}<br><br>",
			Closing:  "Looking forward to your thoughts!<br><br>",
			Snippets: []string{
				"Were we competitive on pricing? Let us know if there is anything we can clarify or adjust.",
				"How is this project coming along? Is there anything we can do to help?",
				"Is this project still moving forward? Let us know if we can assist in any way.",
			},
		},
	}
}

// Parse reads the YAML file at path over the defaults without
// validating. Callers that apply command-line overrides validate
// afterwards, so a mode override is in effect before the mode's
// requirements are checked. Unknown keys are rejected: a typoed
// option should fail loudly, not silently fall back to a default.
func Parse(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Msg: fmt.Sprintf("read %s", path), Err: err}
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, &Error{Msg: fmt.Sprintf("parse %s", path), Err: err}
	}
	return cfg, nil
}

// Load parses and validates in one step, for callers with no
// overrides to apply.
func Load(path string) (*Config, error) {
	cfg, err := Parse(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate runs schema validation plus the mode-conditional checks.
func (c *Config) Validate() error {
	if err := c.validateSchema(); err != nil {
		return err
	}

	for _, field := range proposal.RequiredFields() {
		if c.Columns[field] == "" {
			return invalid("columns is missing the %q field mapping", field)
		}
	}

	switch c.Mode() {
	case ModeTestEmail:
		if c.TestEmailRecipient == "" {
			return invalid("send_test_email requires test_email_recipient")
		}
		if !c.DryRun {
			if c.SMTP.Host == "" {
				return invalid("send_test_email requires smtp.host")
			}
			if c.SMTP.SenderAccount == "" {
				return invalid("send_test_email requires smtp.sender_account")
			}
		}
	default:
		if len(c.Stores) == 0 {
			return invalid("at least one store path is required")
		}
		if len(c.ValidMonths) == 0 {
			return invalid("valid_months must not be empty")
		}
		if c.Mode() == ModeLive {
			if c.SMTP.Host == "" {
				return invalid("live mode requires smtp.host")
			}
			if c.SMTP.SenderAccount == "" {
				return invalid("live mode requires smtp.sender_account")
			}
		}
	}
	return nil
}

// validateSchema unifies the configuration with the embedded CUE
// schema. Shape and bound violations surface here with CUE's own
// field-path diagnostics.
func (c *Config) validateSchema() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return &Error{Msg: "compile embedded schema", Err: err}
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return &Error{Msg: "lookup #Config in embedded schema", Err: err}
	}

	val := ctx.Encode(c)
	if err := val.Err(); err != nil {
		return &Error{Msg: "encode configuration", Err: err}
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &Error{Msg: "schema violation", Err: err}
	}
	return nil
}
