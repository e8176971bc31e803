package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mesh-intelligence/blockshift/internal/migration"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printReports writes run reports as JSON or one block of text per report.
func printReports(w io.Writer, jsonMode bool, reports []migration.Report) error {
	if jsonMode {
		if reports == nil {
			reports = []migration.Report{}
		}
		return printJSON(w, reports)
	}
	if len(reports) == 0 {
		fmt.Fprintln(w, "nothing to do")
		return nil
	}
	for _, r := range reports {
		printReport(w, r)
	}
	return nil
}

func printReport(w io.Writer, r migration.Report) {
	if r.AlreadyApplied {
		fmt.Fprintf(w, "%s: already applied\n", r.Migration)
		return
	}
	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "%s %s%s: scanned %d, updated %d, unchanged %d, already migrated %d, skipped %d",
		r.Migration, r.Direction, mode, r.Scanned, r.Updated, r.Unchanged, r.AlreadyMigrated, len(r.Skipped))
	if r.RevisionsSynced > 0 {
		fmt.Fprintf(w, ", revisions synced %d", r.RevisionsSynced)
	}
	fmt.Fprintf(w, " in %s\n", r.Duration.Round(time.Millisecond))

	for _, s := range r.Skipped {
		where := fmt.Sprintf("row %d %s", s.RowID, s.Field)
		if s.Index >= 0 {
			where += fmt.Sprintf("[%d]", s.Index)
		}
		if s.BlockID != "" {
			where += " " + s.BlockID
		}
		fmt.Fprintf(w, "  skipped %s: %s\n", where, s.Reason)
	}
	if r.Lossy {
		fmt.Fprintln(w, "  lossy: some content was not restored; use 'blockshift restore' with the forwards snapshot")
	}
	if r.Snapshot != "" {
		fmt.Fprintf(w, "  snapshot: %s\n", r.Snapshot)
	}
}
