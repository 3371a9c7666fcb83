package proposal

import (
	"time"
)

// SourceRef locates a proposal row in the external tabular store.
// It is an opaque back-reference: the core never interprets it beyond
// handing it back to the store for write-back.
type SourceRef struct {
	Year  string // store identifier, e.g. "2025"
	Sheet string // month sheet name
	Row   int    // 1-based workbook row index (row 1 = headers)
}

// Flags carries the disposition markers. Any true flag permanently
// excludes the proposal from follow-up.
type Flags struct {
	Won   bool
	Lost  bool
	ReBid bool
}

// Any reports whether any disposition flag is set.
func (f Flags) Any() bool {
	return f.Won || f.Lost || f.ReBid
}

// String names the first set flag, for logging.
func (f Flags) String() string {
	switch {
	case f.Won:
		return "won"
	case f.Lost:
		return "lost"
	case f.ReBid:
		return "re-bid"
	default:
		return "none"
	}
}

// Fact is one row's validated snapshot.
//
// Dates are calendar dates, stored as UTC midnight. LastContact's zero
// value means "never contacted". Value is optional: HasValue
// distinguishes a genuine zero from an empty cell.
//
// INVARIANT: Submitted <= LastContact <= today when LastContact is set.
// Enforced at normalization; a Fact violating it is never constructed.
type Fact struct {
	Project     string
	Email       string
	ContactName string
	Submitted   time.Time
	LastContact time.Time
	Value       float64
	HasValue    bool
	Stage       int
	Flags       Flags
	Source      SourceRef
}

// ReferenceDate returns the date the follow-up clock runs from:
// last correspondence when present, submission otherwise.
func (f Fact) ReferenceDate() time.Time {
	if !f.LastContact.IsZero() {
		return f.LastContact
	}
	return f.Submitted
}

// Date truncates t to a calendar date at UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole-day difference to - from.
// Both arguments are truncated to calendar dates first.
func DaysBetween(from, to time.Time) int {
	return int(Date(to).Sub(Date(from)).Hours() / 24)
}
