package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service computes report tables from a Source.
type Service struct {
	source Source
	topN   int
	now    func() time.Time
}

// NewService creates a Service. A non-positive topN uses DefaultTopN.
func NewService(source Source, topN int) *Service {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Service{source: source, topN: topN, now: time.Now}
}

// Range returns the span of work dates in the store.
func (s *Service) Range(ctx context.Context) (DateRange, error) {
	r, err := s.source.DateRange(ctx)
	if err != nil {
		return DateRange{}, fmt.Errorf("date range: %w", err)
	}
	return r, nil
}

// Build computes the kind aggregate for [from, to]. Nil bounds default to
// the store's first and last work date, or today when the store is empty.
func (s *Service) Build(ctx context.Context, kind Kind, from, to *time.Time) (*Table, error) {
	period, err := s.resolve(ctx, from, to)
	if err != nil {
		return nil, err
	}

	var rows []Row
	switch kind {
	case KindMonthly:
		rows, err = s.source.MonthlyHours(ctx, period.From, period.End())
	case KindProjects:
		rows, err = s.source.TopProjects(ctx, period.From, period.End(), s.topN)
	case KindMembers:
		rows, err = s.source.TopMembers(ctx, period.From, period.End(), s.topN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%s report: %w", kind, err)
	}
	if rows == nil {
		rows = []Row{}
	}

	slog.Debug("report built", "kind", kind, "from", period.From.Format(DateLayout), "to", period.To.Format(DateLayout), "rows", len(rows))

	return &Table{
		Kind: kind,
		From: period.From.Format(DateLayout),
		To:   period.To.Format(DateLayout),
		Rows: rows,
	}, nil
}

func (s *Service) resolve(ctx context.Context, from, to *time.Time) (Period, error) {
	var p Period
	if from != nil && to != nil {
		p = Period{From: day(*from), To: day(*to)}
		return p, p.Validate()
	}

	r, err := s.Range(ctx)
	if err != nil {
		return Period{}, err
	}
	today := day(s.now())
	first, last := today, today
	if r.HasData {
		first, last = day(r.First), day(r.Last)
	}

	p.From, p.To = first, last
	if from != nil {
		p.From = day(*from)
	}
	if to != nil {
		p.To = day(*to)
	}
	return p, p.Validate()
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
