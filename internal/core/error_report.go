package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// ErrorReportHeader is the header line of every error report.
var ErrorReportHeader = []string{"RowNumber", "Reason", "WorkDate", "Member", "Project", "WorkType", "Hours", "HourlyRate"}

// ErrorReportPrefix names the report files written next to the source file.
const ErrorReportPrefix = "import_errors_"

// maxReportAttempts bounds the suffix search when a timestamped name is taken.
const maxReportAttempts = 100

// ErrorReporter writes rejected rows to a timestamped CSV file.
type ErrorReporter struct {
	now func() time.Time
}

// NewErrorReporter creates a reporter that stamps file names with the local time.
func NewErrorReporter() *ErrorReporter {
	return &ErrorReporter{now: time.Now}
}

// Write renders rejected rows, sorted by row position, to a new file in dir
// and returns its path. Existing reports are never overwritten.
func (r *ErrorReporter) Write(dir string, rejected []Rejected) (string, error) {
	if len(rejected) == 0 {
		return "", nil
	}

	f, path, err := r.create(dir)
	if err != nil {
		return "", err
	}

	if err := WriteErrorReport(f, rejected); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close error report: %w", err)
	}
	return path, nil
}

// WriteErrorReport renders rejected rows as error-report CSV to w,
// sorted by row position.
func WriteErrorReport(w io.Writer, rejected []Rejected) error {
	cw := csv.NewWriter(w)
	_ = cw.Write(ErrorReportHeader)
	for _, rej := range sortedByPosition(rejected) {
		line := append([]string{strconv.Itoa(rej.Position), rej.Reason.Tag()}, rej.Fields.Values()...)
		_ = cw.Write(line)
	}
	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("write error report: %w", err)
	}
	return nil
}

// create opens a fresh report file, adding a numeric suffix if the
// timestamped name already exists.
func (r *ErrorReporter) create(dir string) (*os.File, string, error) {
	base := ErrorReportPrefix + r.now().Format("20060102_150405")
	for i := 0; i < maxReportAttempts; i++ {
		name := base + ".csv"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.csv", base, i)
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create error report: %w", err)
		}
	}
	return nil, "", fmt.Errorf("create error report: no free name for %s in %s", base, dir)
}

// sortedByPosition returns a copy of rejected ordered by row position.
func sortedByPosition(rejected []Rejected) []Rejected {
	rows := make([]Rejected, len(rejected))
	copy(rows, rejected)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Position < rows[j].Position
	})
	return rows
}
