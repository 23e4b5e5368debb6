package core

// source.go reads work-log rows from a CSV stream.
//
// The header row is required and matched by name, so column order in the
// file does not matter and unknown columns are ignored. Columns missing from
// the header read as empty strings on every row.

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// ErrEmptyFile is returned when the source has no header record.
var ErrEmptyFile = errors.New("empty file: no header row")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// skipBOM returns a reader positioned after a leading UTF-8 byte order mark.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(byteOrderMark)); err == nil && string(head) == string(byteOrderMark) {
		_, _ = br.Discard(len(byteOrderMark))
	}
	return br
}

// rowReader yields RawRows from a CSV source.
type rowReader struct {
	csv     *csv.Reader
	header  HeaderIndex
	records int
}

// newRowReader reads the header and prepares to iterate data rows.
func newRowReader(r io.Reader) (*rowReader, error) {
	cr := csv.NewReader(skipBOM(r))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}

	return &rowReader{csv: cr, header: MakeHeaderIndex(header)}, nil
}

// MissingColumns returns the expected columns absent from the header.
func (rr *rowReader) MissingColumns() []string {
	return rr.header.Missing(Columns)
}

// Next returns the next data row. It returns io.EOF when the source is
// exhausted. A record the decoder cannot parse is returned with Err set and
// best-effort fields; any other read failure is returned as an error.
func (rr *rowReader) Next() (RawRow, error) {
	record, err := rr.csv.Read()
	if errors.Is(err, io.EOF) {
		return RawRow{}, io.EOF
	}

	var perr *csv.ParseError
	if err != nil && !errors.As(err, &perr) {
		return RawRow{}, fmt.Errorf("read csv: %w", err)
	}

	rr.records++
	row := RawRow{
		Position: rr.records + 1,
		Fields:   rr.fields(record),
	}
	if err != nil {
		row.Err = err
	}
	return row, nil
}

// lineSpan reports the source lines covered by a record the decoder could
// not parse, when it covers more than one. An unterminated quote makes the
// decoder consume every following line into that record.
func lineSpan(err error) (start, end int, ok bool) {
	var perr *csv.ParseError
	if !errors.As(err, &perr) || perr.StartLine == perr.Line {
		return 0, 0, false
	}
	return perr.StartLine, perr.Line, true
}

func (rr *rowReader) fields(record []string) Fields {
	return Fields{
		WorkDate:   rr.header.Cell(record, ColWorkDate),
		Member:     rr.header.Cell(record, ColMember),
		Project:    rr.header.Cell(record, ColProject),
		WorkType:   rr.header.Cell(record, ColWorkType),
		Hours:      rr.header.Cell(record, ColHours),
		HourlyRate: rr.header.Cell(record, ColHourlyRate),
	}
}
