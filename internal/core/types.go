package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source column names. The header row must use these names (case-insensitive).
const (
	ColWorkDate   = "WorkDate"
	ColMember     = "Member"
	ColProject    = "Project"
	ColWorkType   = "WorkType"
	ColHours      = "Hours"
	ColHourlyRate = "HourlyRate"
)

// Columns lists the source columns in file order.
var Columns = []string{ColWorkDate, ColMember, ColProject, ColWorkType, ColHours, ColHourlyRate}

// Fields holds the six raw string values read for one source row.
type Fields struct {
	WorkDate   string `json:"workDate"`
	Member     string `json:"member"`
	Project    string `json:"project"`
	WorkType   string `json:"workType"`
	Hours      string `json:"hours"`
	HourlyRate string `json:"hourlyRate"`
}

// Values returns the fields in source column order.
func (f Fields) Values() []string {
	return []string{f.WorkDate, f.Member, f.Project, f.WorkType, f.Hours, f.HourlyRate}
}

// RawRow is one source record before validation.
type RawRow struct {
	Position int   // 1-based, header is row 1
	Fields   Fields
	Err      error // non-nil if the record itself could not be decoded
}

// Record is a validated work-log entry.
type Record struct {
	Position   int
	WorkDate   time.Time // midnight UTC of the calendar day
	Member     string
	Project    string
	WorkType   string
	Hours      decimal.Decimal
	HourlyRate *int // nil when absent
	Raw        Fields
}

// Key returns the composite identity of the record.
func (r Record) Key() Key {
	return NewKey(r.WorkDate, r.Member, r.Project, r.WorkType)
}

// Rejected is a source row that will not be inserted, with the reason why.
type Rejected struct {
	Position int    `json:"rowNumber"`
	Reason   Reason `json:"reason"`
	Fields   Fields `json:"fields"`
}

// ImportPhase indicates the current stage of import processing.
type ImportPhase string

const (
	PhaseReading        ImportPhase = "reading"
	PhaseAwaitingLookup ImportPhase = "awaiting_lookup"
	PhaseAwaitingInsert ImportPhase = "awaiting_insert"
	PhaseReporting      ImportPhase = "reporting"
	PhaseDone           ImportPhase = "done"
	PhaseFailed         ImportPhase = "failed"
)

// PhaseCallback is called on every phase transition.
type PhaseCallback func(ImportPhase)

// Options controls a single import run.
type Options struct {
	// DryRun validates and deduplicates without inserting anything.
	DryRun bool

	// ImportID, if non-zero, is used instead of a freshly generated id.
	ImportID uuid.UUID

	// FileName overrides the name recorded in the outcome (defaults to the base name of the path).
	FileName string

	// OnPhase, if set, observes phase transitions.
	OnPhase PhaseCallback
}

// Outcome is the result of one import run.
type Outcome struct {
	ImportID        uuid.UUID      `json:"importId"`
	FileName        string         `json:"fileName"`
	DryRun          bool           `json:"dryRun"`
	TotalRead       int            `json:"totalRead"`
	PlannedInsert   int            `json:"plannedInsert"`
	Inserted        int            `json:"inserted"`
	Counts          map[Reason]int `json:"counts"`
	Rejected        []Rejected     `json:"rejected"`
	ErrorReportPath string         `json:"errorReportPath,omitempty"`
	StartedAt       time.Time      `json:"startedAt"`
	Duration        time.Duration  `json:"durationNs"`
}

// RejectedTotal returns the number of rejected rows across all reasons.
func (o *Outcome) RejectedTotal() int {
	return len(o.Rejected)
}

// Count returns the number of rows rejected for reason r.
func (o *Outcome) Count(r Reason) int {
	return o.Counts[r]
}

// KeyLookup reports which composite keys already exist in the persisted store.
type KeyLookup interface {
	ExistingKeys(ctx context.Context, keys []Key) (KeySet, error)
}

// BulkInserter persists accepted records as a single batch.
type BulkInserter interface {
	InsertWorkLogs(ctx context.Context, importID uuid.UUID, records []Record) error
}

// Store is the persisted-store boundary consumed by the importer.
type Store interface {
	KeyLookup
	BulkInserter
}
