package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/worklog/internal/logging"
	"github.com/google/uuid"
)

var (
	// ErrStoreLookup wraps failures of the persisted-key lookup. Fatal for the import.
	ErrStoreLookup = errors.New("store key lookup failed")

	// ErrBulkInsert wraps failures of the bulk insert. Fatal for the import.
	ErrBulkInsert = errors.New("bulk insert failed")
)

// Importer runs the validate, dedup, insert, report pipeline for work-log files.
type Importer struct {
	store    Store
	reporter *ErrorReporter
	validate func(Fields) (Record, error)
	now      func() time.Time
	newID    func() uuid.UUID
}

// NewImporter creates an Importer backed by store.
// If reporter is nil, a default ErrorReporter is used.
func NewImporter(store Store, reporter *ErrorReporter) *Importer {
	if reporter == nil {
		reporter = NewErrorReporter()
	}
	return &Importer{
		store:    store,
		reporter: reporter,
		validate: ValidateFields,
		now:      time.Now,
		newID:    uuid.New,
	}
}

// Import reads the CSV file at path and imports its rows.
// The error report, if any, is written next to the source file.
//
// Row-level problems never fail the import; they are returned in the
// Outcome. Failures of the store lookup or the bulk insert are returned as
// errors wrapping ErrStoreLookup or ErrBulkInsert, and no Outcome is produced.
func (im *Importer) Import(ctx context.Context, path string, opts Options) (*Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	if opts.FileName == "" {
		opts.FileName = filepath.Base(path)
	}
	return im.ImportReader(ctx, f, filepath.Dir(path), opts)
}

// ImportReader imports rows from r, writing any error report into reportDir.
func (im *Importer) ImportReader(ctx context.Context, r io.Reader, reportDir string, opts Options) (*Outcome, error) {
	started := im.now()
	id := opts.ImportID
	if id == uuid.Nil {
		id = im.newID()
	}
	out := &Outcome{
		ImportID:  id,
		FileName:  opts.FileName,
		DryRun:    opts.DryRun,
		StartedAt: started,
	}

	logger := logging.WithFields(ctx,
		"import_id", out.ImportID.String(),
		"file", out.FileName,
		"dry_run", out.DryRun,
	)
	enter := func(p ImportPhase) {
		logger.Debug("import phase", "phase", p)
		if opts.OnPhase != nil {
			opts.OnPhase(p)
		}
	}
	fail := func(err error) (*Outcome, error) {
		enter(PhaseFailed)
		logger.Error("import failed", "error", err, "rows_read", out.TotalRead)
		return nil, err
	}

	// Reading
	enter(PhaseReading)
	rows, err := newRowReader(r)
	if err != nil {
		return fail(err)
	}
	if missing := rows.MissingColumns(); len(missing) > 0 {
		logger.Warn("source header is missing columns", "missing", missing)
	}

	var (
		accepted []Record
		rejected []Rejected
		dedup    = newBatchDeduper()
	)
	for {
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(err)
		}

		out.TotalRead++
		if start, end, ok := lineSpan(row.Err); ok {
			logger.Warn("malformed record spans several lines; lines after its start were not read as rows",
				"row", row.Position, "start_line", start, "end_line", end)
		}
		rec, reason := im.classify(row, dedup)
		if reason != 0 {
			rejected = append(rejected, Rejected{Position: row.Position, Reason: reason, Fields: row.Fields})
			continue
		}
		accepted = append(accepted, rec)
	}

	// AwaitingLookup
	enter(PhaseAwaitingLookup)
	existing, err := im.store.ExistingKeys(ctx, keysOf(accepted))
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrStoreLookup, err))
	}
	insert, duplicates := partitionByStore(accepted, existing)
	rejected = append(rejected, duplicates...)
	out.PlannedInsert = len(insert)

	// AwaitingInsert
	if !opts.DryRun && len(insert) > 0 {
		enter(PhaseAwaitingInsert)
		if err := im.store.InsertWorkLogs(ctx, out.ImportID, insert); err != nil {
			return fail(fmt.Errorf("%w: %w", ErrBulkInsert, err))
		}
		out.Inserted = len(insert)
	}

	// Reporting
	enter(PhaseReporting)
	out.Rejected = sortedByPosition(rejected)
	out.Counts = countByReason(out.Rejected)
	if len(out.Rejected) > 0 {
		out.ErrorReportPath = im.writeReport(logger, reportDir, out.Rejected)
	}

	enter(PhaseDone)
	out.Duration = im.now().Sub(started)

	logger.Info("import complete",
		"total_read", out.TotalRead,
		"planned_insert", out.PlannedInsert,
		"inserted", out.Inserted,
		"rejected", out.RejectedTotal(),
		"error_report", out.ErrorReportPath,
		"duration_ms", out.Duration.Milliseconds(),
	)
	return out, nil
}

// classify validates one row and applies intra-batch dedup.
// A zero Reason means the row was accepted. Panics are contained to the row.
func (im *Importer) classify(row RawRow, dedup *batchDeduper) (rec Record, reason Reason) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("row classification panicked", "row", row.Position, "panic", r)
			rec, reason = Record{}, ReasonParseError
		}
	}()

	if row.Err != nil {
		return Record{}, ReasonParseError
	}

	rec, err := im.validate(row.Fields)
	if err != nil {
		return Record{}, ReasonOf(err)
	}
	rec.Position = row.Position

	if !dedup.admit(rec) {
		return Record{}, ReasonDuplicateInFile
	}
	return rec, 0
}

// writeReport writes the error report and returns its path, or "" on any failure.
func (im *Importer) writeReport(logger *slog.Logger, dir string, rejected []Rejected) (path string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("error report panicked", "panic", r)
			path = ""
		}
	}()

	path, err := im.reporter.Write(dir, rejected)
	if err != nil {
		logger.Warn("error report not written", "dir", dir, "error", err)
		return ""
	}
	return path
}

func keysOf(records []Record) []Key {
	keys := make([]Key, len(records))
	for i, rec := range records {
		keys[i] = rec.Key()
	}
	return keys
}
