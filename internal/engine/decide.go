package engine

import (
	"time"

	"github.com/steelbid/followup/internal/proposal"
)

// SkipReason says why a proposal is not due for follow-up today.
type SkipReason string

const (
	// SkipDisposition: a Won/Lost/ReBid flag permanently excludes the row.
	SkipDisposition SkipReason = "disposition"

	// SkipNotYetDue: the configured day threshold has not elapsed.
	SkipNotYetDue SkipReason = "not_yet_due"
)

// Decision is the outcome of the eligibility check for one proposal.
// Either Due is true and Stage carries the stage to send, or Due is
// false and Reason says why.
type Decision struct {
	Due    bool
	Stage  int
	Reason SkipReason
}

// Skip builds a not-due decision.
func Skip(reason SkipReason) Decision {
	return Decision{Reason: reason}
}

// Due builds a send-at-stage decision.
func Due(stage int) Decision {
	return Decision{Due: true, Stage: stage}
}

// Decide applies the eligibility and staging rules to one fact.
//
// Pure and deterministic: same fact, same today, same thresholds, same
// answer. No I/O, no clock access, no mode awareness.
//
// Rules, in order:
//  1. Any disposition flag set -> Skip(disposition).
//  2. Stage 0: reference is last correspondence when present, else the
//     submission date. Due when today-reference >= firstDays.
//  3. Stage >= 1: reference is last correspondence. Due when
//     today-reference >= subsequentDays. Stage is uncapped.
//
// Comparisons are whole-day and inclusive: a proposal exactly at the
// threshold day is due.
func Decide(f proposal.Fact, today time.Time, firstDays, subsequentDays int) Decision {
	if f.Flags.Any() {
		return Skip(SkipDisposition)
	}

	if f.Stage == 0 {
		if proposal.DaysBetween(f.ReferenceDate(), today) >= firstDays {
			return Due(0)
		}
		return Skip(SkipNotYetDue)
	}

	// Stage >= 1 implies a prior send wrote last correspondence. A row
	// hand-edited into a staged state without one is not due until the
	// store is repaired.
	if f.LastContact.IsZero() {
		return Skip(SkipNotYetDue)
	}
	if proposal.DaysBetween(f.LastContact, today) >= subsequentDays {
		return Due(f.Stage)
	}
	return Skip(SkipNotYetDue)
}
