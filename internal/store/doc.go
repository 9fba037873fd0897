// Package store provides SQLite-backed storage for compiled breakpoint
// tables.
//
// A database holds any number of named tables. Each table keeps:
//   - Breakpoints: the compiled rows in table order
//   - Dropped rows: rows removed by the guideline/intrinsic merge, with
//     the reason
//
// # Ordering
//
// Rows are read back ORDER BY row_index ASC, so an Index built from a
// stored table resolves ties exactly like one built from the CSV it was
// imported from. Table listings are ordered by name COLLATE BINARY.
//
// # Connection settings
//
//   - journal_mode=WAL
//   - synchronous=NORMAL
//   - busy_timeout=5000 (milliseconds)
//   - foreign_keys=ON
//
// Row identities are the content hashes computed by ir.BreakpointRecord.ID.
package store
