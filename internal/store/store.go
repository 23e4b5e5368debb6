// Package store persists work logs in PostgreSQL.
//
// It implements the import boundary (key lookup and bulk insert) consumed by
// core.Importer and the aggregate queries consumed by report.Service.
package store

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/worklog/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TableName is the work-log table.
const TableName = "work_logs"

// insertColumns is the COPY column order used by InsertWorkLogs.
var insertColumns = []string{"work_date", "member", "project", "work_type", "hours", "hourly_rate", "import_id"}

// DBTX is the subset of pgx used by Store. Both *pgxpool.Pool and pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is a PostgreSQL-backed work-log store.
type Store struct {
	db DBTX
}

// New creates a Store over db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// NewFromPool creates a Store over a connection pool.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return New(pool)
}

// Ping checks that the database answers queries.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

const existingKeysQuery = `
SELECT DISTINCT q.work_date, q.member, q.project, q.work_type
FROM unnest($1::text[], $2::text[], $3::text[], $4::text[]) AS q(work_date, member, project, work_type)
JOIN work_logs w
  ON w.work_date = q.work_date::date
 AND w.member = q.member
 AND w.project = q.project
 AND w.work_type = q.work_type`

// ExistingKeys returns the subset of keys already stored, in one round trip.
// Matching is exact and case-sensitive; dates compare by calendar day.
func (s *Store) ExistingKeys(ctx context.Context, keys []core.Key) (core.KeySet, error) {
	found := core.NewKeySet()
	if len(keys) == 0 {
		return found, nil
	}

	dates, members, projects, workTypes := keyColumns(keys)
	rows, err := s.db.Query(ctx, existingKeysQuery, dates, members, projects, workTypes)
	if err != nil {
		return nil, fmt.Errorf("query existing keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k core.Key
		if err := rows.Scan(&k.Date, &k.Member, &k.Project, &k.WorkType); err != nil {
			return nil, fmt.Errorf("scan existing key: %w", err)
		}
		found.Add(k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return found, nil
}

// InsertWorkLogs writes records with COPY inside one transaction.
// Either every record is stored or none is.
func (s *Store) InsertWorkLogs(ctx context.Context, importID uuid.UUID, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	id := toPgUUID(importID)
	n, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{TableName},
		insertColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return workLogRow(records[i], id)
		}),
	)
	if err != nil {
		return fmt.Errorf("copy work logs: %w", err)
	}
	if int(n) != len(records) {
		return fmt.Errorf("copy work logs: wrote %d of %d rows", n, len(records))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit work logs: %w", err)
	}
	return nil
}

// keyColumns splits keys into parallel arrays for unnest.
func keyColumns(keys []core.Key) (dates, members, projects, workTypes []string) {
	dates = make([]string, len(keys))
	members = make([]string, len(keys))
	projects = make([]string, len(keys))
	workTypes = make([]string, len(keys))
	for i, k := range keys {
		dates[i] = k.Date
		members[i] = k.Member
		projects[i] = k.Project
		workTypes[i] = k.WorkType
	}
	return dates, members, projects, workTypes
}

// workLogRow builds one COPY row in insertColumns order.
func workLogRow(rec core.Record, importID any) ([]any, error) {
	hours, err := toPgNumeric(rec.Hours)
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", rec.Position, err)
	}
	return []any{
		toPgDate(rec.WorkDate),
		rec.Member,
		rec.Project,
		rec.WorkType,
		hours,
		toPgInt4(rec.HourlyRate),
		importID,
	}, nil
}
