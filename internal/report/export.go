package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is an export encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
)

// ParseFormat converts a name to a Format. Empty input yields def.
func ParseFormat(s string, def Format) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "":
		return def, nil
	case FormatTable, FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// ContentType returns the HTTP media type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}

// FileName suggests a download name such as monthly_2024-01-01_2024-12-31.csv.
func (t *Table) FileName(f Format) string {
	ext := string(f)
	if f == FormatTable {
		ext = "txt"
	}
	return fmt.Sprintf("%s_%s_%s.%s", t.Kind, t.From, t.To, ext)
}

// Header returns the column names for exports, e.g. Month,TotalHours.
func (t *Table) Header() []string {
	return []string{t.Kind.LabelColumn(), "TotalHours"}
}

// WriteCSV writes the table with a header line.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range t.Rows {
		if err := cw.Write([]string{r.Label, r.TotalHours.String()}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteText writes an aligned plain-text table for terminals.
func WriteText(w io.Writer, t *Table) error {
	width := len(t.Kind.LabelColumn())
	for _, r := range t.Rows {
		if len(r.Label) > width {
			width = len(r.Label)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s report %s .. %s\n", t.Kind, t.From, t.To)
	fmt.Fprintf(&b, "%-*s  %12s\n", width, t.Kind.LabelColumn(), "TotalHours")
	for _, r := range t.Rows {
		fmt.Fprintf(&b, "%-*s  %12s\n", width, r.Label, r.TotalHours.StringFixed(2))
	}
	fmt.Fprintf(&b, "%-*s  %12s\n", width, "Total", t.Total().StringFixed(2))

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteXLSX writes the table as a single-sheet workbook.
func WriteXLSX(w io.Writer, t *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := string(t.Kind)
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	hoursStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 2}) // 0.00

	_ = f.SetColWidth(sheet, "A", "A", 28)
	_ = f.SetColWidth(sheet, "B", "B", 14)

	for i, h := range t.Header() {
		c, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, c, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	_ = f.SetCellStyle(sheet, "A1", "B1", headerStyle)

	for i, r := range t.Rows {
		row := i + 2
		label, _ := excelize.CoordinatesToCellName(1, row)
		hours, _ := excelize.CoordinatesToCellName(2, row)
		if err := f.SetCellValue(sheet, label, r.Label); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		if err := f.SetCellValue(sheet, hours, r.TotalHours.InexactFloat64()); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}
	if len(t.Rows) > 0 {
		last, _ := excelize.CoordinatesToCellName(2, len(t.Rows)+1)
		_ = f.SetCellStyle(sheet, "B2", last, hoursStyle)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
