package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JonMunkholm/worklog/internal/report"
	"github.com/spf13/cobra"
)

func newReportCmd(rt *runtime) *cobra.Command {
	var from, to, format, outPath string

	kinds := make([]string, 0, len(report.Kinds()))
	for _, k := range report.Kinds() {
		kinds = append(kinds, string(k))
	}

	cmd := &cobra.Command{
		Use:   "report " + strings.Join(kinds, "|"),
		Short: "Summarize stored hours",
		Long: `Report totals the hours stored for a period of calendar days.

  monthly   hours per calendar month
  projects  projects with the most hours
  members   members with the most hours

--from and --to are inclusive YYYY-MM-DD dates. A missing bound defaults
to the earliest or latest stored work date.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.runReport(cmd, args[0], from, to, format, outPath)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day of the period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day of the period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json, csv or xlsx")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to this file instead of stdout (required for xlsx)")
	return cmd
}

func (rt *runtime) runReport(cmd *cobra.Command, kindArg, fromArg, toArg, formatArg, outPath string) error {
	kind, err := report.ParseKind(kindArg)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(formatArg, report.FormatTable)
	if err != nil {
		return err
	}
	if format == report.FormatXLSX && outPath == "" {
		return fmt.Errorf("--out is required for xlsx output")
	}
	from, err := report.ParseDate(fromArg)
	if err != nil {
		return err
	}
	to, err := report.ParseDate(toArg)
	if err != nil {
		return err
	}

	a, err := rt.open(cmd.Context(), rt.cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	table, err := a.Reports.Build(cmd.Context(), kind, from, to)
	if err != nil {
		return err
	}

	if outPath == "" {
		return writeTable(cmd.OutOrStdout(), table, format)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := writeTable(f, table, format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", outPath)
	return nil
}

func writeTable(w io.Writer, t *report.Table, format report.Format) error {
	switch format {
	case report.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case report.FormatCSV:
		return report.WriteCSV(w, t)
	case report.FormatXLSX:
		return report.WriteXLSX(w, t)
	default:
		return report.WriteText(w, t)
	}
}

func newRangeCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "range",
		Short: "Show the first and last stored work date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.open(cmd.Context(), rt.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			dr, err := a.Reports.Range(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !dr.HasData {
				fmt.Fprintln(out, "no work logs stored")
				return nil
			}
			fmt.Fprintf(out, "%s .. %s\n", dr.First.Format(report.DateLayout), dr.Last.Format(report.DateLayout))
			return nil
		},
	}
}
