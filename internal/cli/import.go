package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/JonMunkholm/worklog/internal/core"
	"github.com/spf13/cobra"
)

func newImportCmd(rt *runtime) *cobra.Command {
	var dryRun, asJSON bool

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a work-log CSV file",
		Long: `Import reads FILE, validates every row, drops rows that duplicate an
earlier row in the file or an entry already stored, and inserts the rest
in a single batch. Rejected rows are written to import_errors_*.csv in the
directory of FILE.

The command exits non-zero only when the file cannot be read or the
database lookup or insert fails. Rejected rows alone are not a failure.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.runImport(cmd, args[0], dryRun, asJSON)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and deduplicate without inserting")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")
	return cmd
}

func (rt *runtime) runImport(cmd *cobra.Command, path string, dryRun, asJSON bool) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open source: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.Import.Timeout)
	defer cancel()

	a, err := rt.open(ctx, rt.cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.Importer.Import(ctx, path, core.Options{DryRun: dryRun})
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return writeSummary(cmd.OutOrStdout(), out)
}

// writeSummary prints the outcome of an import for a terminal.
func writeSummary(w io.Writer, out *core.Outcome) error {
	var b strings.Builder

	mode := "import"
	if out.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(&b, "%-18s%s (%s)\n", "Import:", out.ImportID, mode)
	fmt.Fprintf(&b, "%-18s%s\n", "File:", out.FileName)
	fmt.Fprintf(&b, "%-18s%d\n", "Rows read:", out.TotalRead)
	fmt.Fprintf(&b, "%-18s%d\n", "Planned insert:", out.PlannedInsert)
	fmt.Fprintf(&b, "%-18s%d\n", "Inserted:", out.Inserted)
	fmt.Fprintf(&b, "%-18s%d\n", "Rejected:", out.RejectedTotal())
	for _, r := range core.AllReasons() {
		if n := out.Count(r); n > 0 {
			fmt.Fprintf(&b, "  %-20s%d\n", r.Tag(), n)
		}
	}
	if out.ErrorReportPath != "" {
		fmt.Fprintf(&b, "%-18s%s\n", "Error report:", out.ErrorReportPath)
	}
	fmt.Fprintf(&b, "%-18s%s\n", "Duration:", out.Duration.Round(time.Millisecond))

	_, err := io.WriteString(w, b.String())
	return err
}
