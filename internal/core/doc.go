// Package core provides the business logic for work-log CSV imports.
//
// This package contains the import pipeline independent of any UI or
// storage engine. It is used by the HTTP server, the CLI, and tests through
// the [Store] interface.
//
// # Pipeline
//
// [Importer.Import] runs one file through a fixed sequence of phases:
//
//  1. Reading: every row is validated by [ValidateFields] and checked for
//     repeats of its composite [Key] within the file (first occurrence wins)
//  2. AwaitingLookup: the keys of all accepted rows are sent to
//     [KeyLookup.ExistingKeys] in a single call
//  3. AwaitingInsert: rows not already stored are written with one
//     [BulkInserter.InsertWorkLogs] call (skipped on a dry run)
//  4. Reporting: rejected rows are written to an import_errors_*.csv file
//     next to the source
//
// Row-level problems never fail an import; each becomes a [Rejected] entry
// tagged with a [Reason]. Lookup and insert failures are fatal and are
// returned wrapping [ErrStoreLookup] or [ErrBulkInsert].
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DB001-DB007: Database errors (duplicates, connections, timeouts)
//   - FILE001-FILE006: File errors (size, format, missing)
//   - IMP001-IMP004: Import errors (lookup, insert, busy, expired)
//   - RPT001: Report parameter errors
package core
