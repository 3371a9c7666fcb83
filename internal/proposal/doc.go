// Package proposal defines the validated snapshot of one proposal row
// and the normalization path from raw sheet cells to that snapshot.
//
// Normalization is lossy on purpose: a row that cannot be turned into a
// well-formed Fact is rejected with a typed reason and the run carries
// on. A single malformed row must never abort a run.
package proposal
