package core

// convert.go turns raw CSV cells into typed work-log values.
//
// Dates come from spreadsheets and hand-edited files, so several layouts are
// accepted (ISO, slashes, US month-first, named months, with or without a
// time of day). The time of day is always dropped.

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling.
// Single-digit month/day verbs also accept zero-padded input.
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "1-2-06", "1.2.06",
	}
	fourDigitYearLayouts = []string{
		"2006-1-2", "2006/1/2", "2006.1.2",
		"1/2/2006", "1-2-2006", "1.2.2006",
		"Jan 2, 2006", "2 Jan 2006", "January 2, 2006", "2 January 2006",
		"20060102",
	}
	timeSuffixes = []string{
		"", " 15:04", " 15:04:05", "T15:04", "T15:04:05", " 3:04 PM", " 3:04:05 PM",
	}
	zonedLayouts = []string{
		time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05Z0700",
	}
)

// Work dates must fall in [MinWorkYear, MaxWorkYear]. PostgreSQL has no
// year 0, and four-digit layouts cannot express years past 9999.
const (
	MinWorkYear = 1
	MaxWorkYear = 9999
)

// ParseWorkDate parses a work date and truncates it to its calendar day.
// The day is taken as written, before any time zone conversion.
// Dates outside the supported year range are rejected.
func ParseWorkDate(s string) (time.Time, bool) {
	t, ok := parseWorkDate(s)
	if !ok || t.Year() < MinWorkYear || t.Year() > MaxWorkYear {
		return time.Time{}, false
	}
	return t, true
}

func parseWorkDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), true
		}
	}

	for _, suffix := range timeSuffixes {
		for _, layout := range fourDigitYearLayouts {
			if t, err := time.Parse(layout+suffix, s); err == nil {
				return truncateDay(t), true
			}
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, suffix := range timeSuffixes {
		for _, layout := range twoDigitYearLayouts {
			t, err := time.Parse(layout+suffix, s)
			if err != nil {
				continue
			}
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return truncateDay(t), true
		}
	}

	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseHours parses a non-negative decimal hours value.
func ParseHours(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// ParseHourlyRate parses an optional hourly rate.
// Empty, non-integer, and negative values yield nil rather than an error.
func ParseHourlyRate(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil || n < 0 {
		return nil
	}
	rate := int(n)
	return &rate
}

// HeaderIndex maps column names (lowercase) to their position in the CSV row.
type HeaderIndex map[string]int

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// Keys are lowercased for case-insensitive matching. The first occurrence of a
// repeated column name wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = i
	}
	return idx
}

// Cell returns the cleaned value of column name in row, or "" if the column
// is absent from the header or the row is short.
func (h HeaderIndex) Cell(row []string, name string) string {
	pos, ok := h[strings.ToLower(name)]
	if !ok || pos >= len(row) {
		return ""
	}
	return CleanCell(row[pos])
}

// Missing returns the expected columns that are not present in the header.
func (h HeaderIndex) Missing(expected []string) []string {
	var missing []string
	for _, col := range expected {
		if _, ok := h[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// CleanCell trims surrounding whitespace and replaces invalid UTF-8.
func CleanCell(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return strings.TrimSpace(s)
}
