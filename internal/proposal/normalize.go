package proposal

import (
	"errors"
	"fmt"
	netmail "net/mail"
	"strconv"
	"strings"
	"time"
)

// RejectReason categorizes why a row could not be normalized.
type RejectReason string

const (
	RejectMissingField   RejectReason = "MISSING_REQUIRED_FIELD"
	RejectUnparsableDate RejectReason = "UNPARSABLE_DATE"
	RejectInvalidEmail   RejectReason = "INVALID_EMAIL"
	RejectNegativeValue  RejectReason = "NEGATIVE_VALUE"
)

// RejectError reports a row-level normalization failure.
// Rejections are per-row and non-fatal: callers log them and move on.
type RejectError struct {
	Reason RejectReason
	Field  string
	Source SourceRef
	Err    error
}

func (e *RejectError) Error() string {
	base := fmt.Sprintf("%s: field %q (%s %s row %d)", e.Reason, e.Field, e.Source.Year, e.Source.Sheet, e.Source.Row)
	if e.Err != nil {
		return base + ": " + e.Err.Error()
	}
	return base
}

func (e *RejectError) Unwrap() error { return e.Err }

// AsReject returns the RejectError inside err, if any.
func AsReject(err error) (*RejectError, bool) {
	var re *RejectError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// Semantic field keys used by the column mapping.
const (
	FieldSubmitted   = "submitted"
	FieldLastContact = "last_contact"
	FieldEmail       = "email"
	FieldContact     = "contact"
	FieldProject     = "project"
	FieldValue       = "value"
	FieldWon         = "won"
	FieldLost        = "lost"
	FieldReBid       = "rebid"
	FieldStage       = "stage"
)

// requiredFields lists every semantic field a sheet must expose.
var requiredFields = []string{
	FieldSubmitted, FieldLastContact, FieldEmail, FieldContact,
	FieldProject, FieldValue, FieldWon, FieldLost, FieldReBid, FieldStage,
}

// RequiredFields returns the semantic field keys a column mapping must
// cover. Config validation checks this at startup so an incomplete
// mapping fails before any sheet is read.
func RequiredFields() []string {
	return append([]string(nil), requiredFields...)
}

// HeaderMap maps semantic field keys to the header text configured for
// the external store. Lookup is by header text, never by position, so
// reordering source columns is safe.
type HeaderMap map[string]string

// Columns holds the 0-based cell index of each semantic field within a
// sheet, resolved once per sheet from its header row.
type Columns struct {
	Submitted   int
	LastContact int
	Email       int
	Contact     int
	Project     int
	Value       int
	Won         int
	Lost        int
	ReBid       int
	Stage       int
}

// ResolveColumns matches a sheet's header row against the configured
// header map. A missing required header is a sheet-level error: the
// caller skips the whole sheet rather than guessing positions.
func ResolveColumns(headers []string, m HeaderMap) (Columns, error) {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[strings.TrimSpace(h)] = i
	}

	var cols Columns
	var missing []string
	for _, field := range requiredFields {
		header, ok := m[field]
		if !ok || header == "" {
			return Columns{}, fmt.Errorf("column mapping missing entry for field %q", field)
		}
		i, found := index[header]
		if !found {
			missing = append(missing, header)
			continue
		}
		switch field {
		case FieldSubmitted:
			cols.Submitted = i
		case FieldLastContact:
			cols.LastContact = i
		case FieldEmail:
			cols.Email = i
		case FieldContact:
			cols.Contact = i
		case FieldProject:
			cols.Project = i
		case FieldValue:
			cols.Value = i
		case FieldWon:
			cols.Won = i
		case FieldLost:
			cols.Lost = i
		case FieldReBid:
			cols.ReBid = i
		case FieldStage:
			cols.Stage = i
		}
	}
	if len(missing) > 0 {
		return Columns{}, fmt.Errorf("headers not found: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// dateLayouts are tried in order when parsing date cells.
var dateLayouts = []string{
	"2006-01-02",
	"01-02-2006",
	"1/2/2006",
	"01/02/2006",
	"2006-01-02 15:04:05",
	"1/2/06",
}

// excelEpoch is the serial-number epoch used by spreadsheet date cells.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ParseDate parses a date cell. Accepts the textual layouts above plus
// raw spreadsheet serial numbers. Dates before year 2000 are rejected:
// they are invariably serial-number artifacts or placeholder junk.
func ParseDate(cell string) (time.Time, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date cell")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return checkDate(Date(t))
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		return checkDate(Date(excelEpoch.AddDate(0, 0, int(serial))))
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func checkDate(t time.Time) (time.Time, error) {
	if t.Year() < 2000 {
		return time.Time{}, fmt.Errorf("implausible date %s", t.Format("2006-01-02"))
	}
	return t, nil
}

// parseFlag reports whether a disposition cell is set. The store's
// convention is a literal X; common truthy spellings are accepted too.
func parseFlag(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "x", "true", "yes", "1":
		return true
	default:
		return false
	}
}

// parseValue parses an optional monetary cell. Currency symbols and
// thousands separators are stripped before parsing. A cell that is not
// a number at all is treated as absent: value is advisory and junk in
// it should not cost the row its follow-up.
func parseValue(cell string) (float64, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, false
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// cellAt returns the trimmed cell at index i, or "" when the row is
// shorter than i. Sheet readers drop trailing empty cells, so short
// rows are normal, not an error.
func cellAt(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

// Normalize turns one raw row into a Fact, or rejects it.
//
// today is used only to enforce the date-ordering invariant; Normalize
// performs no eligibility logic.
func Normalize(cells []string, cols Columns, ref SourceRef, today time.Time) (Fact, error) {
	reject := func(reason RejectReason, field string, err error) (Fact, error) {
		return Fact{}, &RejectError{Reason: reason, Field: field, Source: ref, Err: err}
	}

	project := cellAt(cells, cols.Project)
	if project == "" {
		return reject(RejectMissingField, FieldProject, nil)
	}

	email := cellAt(cells, cols.Email)
	if email == "" {
		return reject(RejectMissingField, FieldEmail, nil)
	}
	if _, err := netmail.ParseAddress(email); err != nil {
		return reject(RejectInvalidEmail, FieldEmail, err)
	}

	submitted, err := ParseDate(cellAt(cells, cols.Submitted))
	if err != nil {
		return reject(RejectUnparsableDate, FieldSubmitted, err)
	}

	var lastContact time.Time
	if cell := cellAt(cells, cols.LastContact); cell != "" {
		lastContact, err = ParseDate(cell)
		if err != nil {
			return reject(RejectUnparsableDate, FieldLastContact, err)
		}
		if lastContact.Before(submitted) || Date(today).Before(lastContact) {
			return reject(RejectUnparsableDate, FieldLastContact,
				fmt.Errorf("last correspondence %s outside [%s, today]",
					lastContact.Format("2006-01-02"), submitted.Format("2006-01-02")))
		}
	}

	value, hasValue := parseValue(cellAt(cells, cols.Value))
	if hasValue && value < 0 {
		return reject(RejectNegativeValue, FieldValue, nil)
	}

	stage := 0
	if cell := cellAt(cells, cols.Stage); cell != "" {
		n, err := strconv.Atoi(cell)
		if err != nil || n < 0 {
			return reject(RejectMissingField, FieldStage, fmt.Errorf("stage cell %q is not a non-negative integer", cell))
		}
		stage = n
	}

	return Fact{
		Project:     project,
		Email:       email,
		ContactName: cellAt(cells, cols.Contact),
		Submitted:   submitted,
		LastContact: lastContact,
		Value:       value,
		HasValue:    hasValue,
		Stage:       stage,
		Flags: Flags{
			Won:   parseFlag(cellAt(cells, cols.Won)),
			Lost:  parseFlag(cellAt(cells, cols.Lost)),
			ReBid: parseFlag(cellAt(cells, cols.ReBid)),
		},
		Source: ref,
	}, nil
}

// Empty reports whether every mapped cell of the row is blank.
// Trailing blank rows are common in hand-maintained sheets and are
// skipped silently rather than rejected.
func Empty(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
