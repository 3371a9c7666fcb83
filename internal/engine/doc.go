// Package engine holds the follow-up decision logic: eligibility and
// staging, recipient consolidation, and the retrying send loop.
//
// Decide is a pure function and the only place staging policy lives.
// The Grouper and Orchestrator are mode-independent: dry-run and live
// runs differ solely in which transport and store implementations are
// wired in, never in anything this package computes.
package engine
