package core

import "fmt"

// Reason classifies why a row was rejected.
// Values are ordered by check priority: a row is classified by the first check that fails.
type Reason int

const (
	ReasonRequiredMissing Reason = iota + 1
	ReasonInvalidWorkDate
	ReasonInvalidHours
	ReasonDuplicateInFile
	ReasonDuplicateInDB
	ReasonParseError
)

var reasonTags = map[Reason]string{
	ReasonRequiredMissing: "required_missing",
	ReasonInvalidWorkDate: "invalid_workdate",
	ReasonInvalidHours:    "invalid_hours",
	ReasonDuplicateInFile: "duplicate_in_file",
	ReasonDuplicateInDB:   "duplicate_in_db",
	ReasonParseError:      "parse_error",
}

// AllReasons returns every reason in priority order.
func AllReasons() []Reason {
	return []Reason{
		ReasonRequiredMissing,
		ReasonInvalidWorkDate,
		ReasonInvalidHours,
		ReasonDuplicateInFile,
		ReasonDuplicateInDB,
		ReasonParseError,
	}
}

// Tag returns the stable string used in error reports and JSON.
func (r Reason) Tag() string {
	if tag, ok := reasonTags[r]; ok {
		return tag
	}
	return "unknown"
}

func (r Reason) String() string { return r.Tag() }

// MarshalText implements encoding.TextMarshaler so reasons encode as tags,
// including when used as JSON map keys.
func (r Reason) MarshalText() ([]byte, error) {
	if _, ok := reasonTags[r]; !ok {
		return nil, fmt.Errorf("unknown reason %d", int(r))
	}
	return []byte(r.Tag()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Reason) UnmarshalText(b []byte) error {
	parsed, err := ParseReason(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseReason converts a tag back to its Reason.
func ParseReason(tag string) (Reason, error) {
	for r, t := range reasonTags {
		if t == tag {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown reason tag %q", tag)
}

// countByReason tallies rejected rows per reason.
func countByReason(rejected []Rejected) map[Reason]int {
	counts := make(map[Reason]int, len(reasonTags))
	for _, r := range AllReasons() {
		counts[r] = 0
	}
	for _, rej := range rejected {
		counts[rej.Reason]++
	}
	return counts
}
