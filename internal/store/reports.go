package store

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/worklog/internal/report"
	"github.com/jackc/pgx/v5/pgtype"
)

const monthlyHoursQuery = `
SELECT to_char(work_date, 'YYYY-MM') AS month, SUM(hours)::text
FROM work_logs
WHERE work_date >= $1 AND work_date < $2
GROUP BY month
ORDER BY month`

const topProjectsQuery = `
SELECT project, SUM(hours)::text AS total
FROM work_logs
WHERE work_date >= $1 AND work_date < $2
GROUP BY project
ORDER BY SUM(hours) DESC, project
LIMIT $3`

const topMembersQuery = `
SELECT member, SUM(hours)::text AS total
FROM work_logs
WHERE work_date >= $1 AND work_date < $2
GROUP BY member
ORDER BY SUM(hours) DESC, member
LIMIT $3`

const dateRangeQuery = `SELECT MIN(work_date), MAX(work_date) FROM work_logs`

// MonthlyHours totals hours per calendar month in [from, until), oldest first.
func (s *Store) MonthlyHours(ctx context.Context, from, until time.Time) ([]report.Row, error) {
	return s.aggregate(ctx, "monthly hours", monthlyHoursQuery, toPgDate(from), toPgDate(until))
}

// TopProjects returns the limit projects with the most hours in [from, until).
func (s *Store) TopProjects(ctx context.Context, from, until time.Time, limit int) ([]report.Row, error) {
	return s.aggregate(ctx, "top projects", topProjectsQuery, toPgDate(from), toPgDate(until), limit)
}

// TopMembers returns the limit members with the most hours in [from, until).
func (s *Store) TopMembers(ctx context.Context, from, until time.Time, limit int) ([]report.Row, error) {
	return s.aggregate(ctx, "top members", topMembersQuery, toPgDate(from), toPgDate(until), limit)
}

// DateRange returns the first and last stored work date.
func (s *Store) DateRange(ctx context.Context) (report.DateRange, error) {
	var first, last pgtype.Date
	if err := s.db.QueryRow(ctx, dateRangeQuery).Scan(&first, &last); err != nil {
		return report.DateRange{}, fmt.Errorf("query date range: %w", err)
	}
	if !first.Valid || !last.Valid {
		return report.DateRange{}, nil
	}
	return report.DateRange{First: first.Time, Last: last.Time, HasData: true}, nil
}

func (s *Store) aggregate(ctx context.Context, name, query string, args ...any) ([]report.Row, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()

	var out []report.Row
	for rows.Next() {
		var label string
		var total *string
		if err := rows.Scan(&label, &total); err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		hours, err := toDecimal(total)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		out = append(out, report.Row{Label: label, TotalHours: hours})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
