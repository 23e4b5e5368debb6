// Package report builds hour totals over imported work logs.
//
// Three aggregates are supported: totals per calendar month, the top
// projects by hours, and the top members by hours. Periods are inclusive
// calendar days; a missing bound defaults to the earliest or latest work
// date in the store.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the layout for period bounds in requests and output.
const DateLayout = "2006-01-02"

// DefaultTopN is how many rows the project and member rankings return.
const DefaultTopN = 10

var (
	// ErrInvalidPeriod is returned when From is after To.
	ErrInvalidPeriod = errors.New("invalid period: from date is after to date")

	// ErrUnknownKind is returned for an unsupported report name.
	ErrUnknownKind = errors.New("unknown report kind")
)

// Kind names an aggregate.
type Kind string

const (
	KindMonthly  Kind = "monthly"
	KindProjects Kind = "projects"
	KindMembers  Kind = "members"
)

// Kinds lists the supported aggregates.
func Kinds() []Kind {
	return []Kind{KindMonthly, KindProjects, KindMembers}
}

// ParseKind converts a name to a Kind, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindMonthly, KindProjects, KindMembers:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// LabelColumn is the header of the first column for this kind.
func (k Kind) LabelColumn() string {
	switch k {
	case KindMonthly:
		return "Month"
	case KindProjects:
		return "Project"
	case KindMembers:
		return "Member"
	}
	return "Label"
}

// Row is one aggregate line: a month (YYYY-MM), project or member and its hours.
type Row struct {
	Label      string          `json:"label"`
	TotalHours decimal.Decimal `json:"totalHours"`
}

// Period is an inclusive range of calendar days.
type Period struct {
	From time.Time
	To   time.Time
}

// Validate rejects periods that end before they start.
func (p Period) Validate() error {
	if p.From.After(p.To) {
		return fmt.Errorf("%w (%s > %s)", ErrInvalidPeriod, p.From.Format(DateLayout), p.To.Format(DateLayout))
	}
	return nil
}

// End returns the exclusive upper bound: the day after To.
func (p Period) End() time.Time {
	return p.To.AddDate(0, 0, 1)
}

// DateRange is the span of work dates present in the store.
type DateRange struct {
	First   time.Time `json:"first"`
	Last    time.Time `json:"last"`
	HasData bool      `json:"hasData"`
}

// Table is a computed report.
type Table struct {
	Kind Kind   `json:"kind"`
	From string `json:"from"`
	To   string `json:"to"`
	Rows []Row  `json:"rows"`
}

// Total sums the hours of all rows.
func (t *Table) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, r := range t.Rows {
		sum = sum.Add(r.TotalHours)
	}
	return sum
}

// Source runs the aggregate queries. Upper bounds are exclusive.
type Source interface {
	MonthlyHours(ctx context.Context, from, until time.Time) ([]Row, error)
	TopProjects(ctx context.Context, from, until time.Time, limit int) ([]Row, error)
	TopMembers(ctx context.Context, from, until time.Time, limit int) ([]Row, error)
	DateRange(ctx context.Context) (DateRange, error)
}

// ParseDate parses an optional YYYY-MM-DD bound. Empty input returns nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrInvalidPeriod, s)
	}
	return &t, nil
}
