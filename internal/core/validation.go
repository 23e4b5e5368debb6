package core

// validation.go classifies one source row.
//
// Checks run in a fixed order and stop at the first failure:
//  1. Required fields present (WorkDate, Member, Project, WorkType, Hours)
//  2. WorkDate parses as a calendar date
//  3. Hours parses as a non-negative decimal
//
// HourlyRate is optional; an unparseable rate is recorded as absent, not rejected.

import (
	"errors"
	"fmt"
)

// ValidationError reports why a row was rejected by field validation.
type ValidationError struct {
	Reason Reason
	Field  string // Column name, empty if not field-specific
	Value  string // The offending value
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s %q", e.Reason.Tag(), e.Field, e.Value)
	}
	return e.Reason.Tag()
}

// ReasonOf extracts the rejection reason from a validation error.
// Any other non-nil error classifies as ReasonParseError.
func ReasonOf(err error) Reason {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return ReasonParseError
}

// ValidateFields checks one row's trimmed fields and builds a Record.
// The returned Record has no Position; the caller assigns it.
func ValidateFields(f Fields) (Record, error) {
	required := []struct {
		name  string
		value string
	}{
		{ColWorkDate, f.WorkDate},
		{ColMember, f.Member},
		{ColProject, f.Project},
		{ColWorkType, f.WorkType},
		{ColHours, f.Hours},
	}
	for _, r := range required {
		if r.value == "" {
			return Record{}, &ValidationError{Reason: ReasonRequiredMissing, Field: r.name}
		}
	}

	workDate, ok := ParseWorkDate(f.WorkDate)
	if !ok {
		return Record{}, &ValidationError{Reason: ReasonInvalidWorkDate, Field: ColWorkDate, Value: f.WorkDate}
	}

	hours, ok := ParseHours(f.Hours)
	if !ok {
		return Record{}, &ValidationError{Reason: ReasonInvalidHours, Field: ColHours, Value: f.Hours}
	}

	return Record{
		WorkDate:   workDate,
		Member:     f.Member,
		Project:    f.Project,
		WorkType:   f.WorkType,
		Hours:      hours,
		HourlyRate: ParseHourlyRate(f.HourlyRate),
		Raw:        f,
	}, nil
}
