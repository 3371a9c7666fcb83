// Package store is the boundary to the external tabular proposal
// store: per-year workbook files holding one sheet per month, headers
// on row 1, data from row 2.
//
// The runner depends only on the Store interface so tests can swap in
// an in-memory fake and dry-run can swap in a read-only wrapper. The
// xlsx adapter is the only code in the repository that knows the store
// is a spreadsheet.
package store
