package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lherron/wrkmig/internal/cli/appctx"
	"github.com/lherron/wrkmig/internal/domain"
	"github.com/lherron/wrkmig/internal/migrate"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview what a run would create",
	Long: `Transforms every pending source record without writing to the
destination and prints the creation payloads. The rendered plan is saved,
and when a previous plan file exists the differences between the two are
shown, so mapping or config changes can be reviewed before a real run.

Parent links resolve against the checkpoint database and a dry run records
nothing, so a record whose parent is itself only planned is listed as
waiting on that parent; it creates normally on a real run.

Examples:
  wrkmig plan
  wrkmig plan --out review.txt`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.Options{NeedsDB: true}, runPlan),
}

var planOut string

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringVar(&planOut, "out", ".wrkmig/plan.txt", "Path of the rendered plan file")
}

func runPlan(app *appctx.App, cmd *cobra.Command, args []string) error {
	driver, err := buildDriver(app, cmd, true, 0, "")
	if err != nil {
		return err
	}

	res, err := driver.Run()
	if err != nil {
		return err
	}

	rendered := renderPlan(res)
	out := cmd.OutOrStdout()

	if previous, err := os.ReadFile(planOut); err == nil {
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(previous)),
			B:        difflib.SplitLines(rendered),
			FromFile: "previous plan",
			ToFile:   "current plan",
			Context:  3,
		}
		if diffText, err := difflib.GetUnifiedDiffString(diff); err == nil {
			if diffText == "" {
				fmt.Fprintln(out, "Plan unchanged since last time.")
			} else {
				fmt.Fprint(out, diffText)
			}
		}
	} else {
		fmt.Fprint(out, rendered)
	}

	if err := os.MkdirAll(filepath.Dir(planOut), 0755); err != nil {
		return fmt.Errorf("failed to create plan directory: %w", err)
	}
	if err := os.WriteFile(planOut, []byte(rendered), 0644); err != nil {
		return fmt.Errorf("failed to write plan file: %w", err)
	}

	waiting := waitingForParent(res)
	fmt.Fprintf(out, "Plan: %d to create, %d waiting on a planned parent, %d already migrated, %d would fail (saved to %s)\n",
		len(res.Planned), len(waiting), res.Skipped, res.Failed-len(waiting), planOut)
	return nil
}

// renderPlan renders planned records deterministically: field order follows
// payload assembly order, which is fixed per category.
func renderPlan(res *migrate.Result) string {
	waiting := waitingForParent(res)

	var b strings.Builder
	for _, planned := range res.Planned {
		fmt.Fprintf(&b, "%s -> %s\n", planned.SourceID, planned.Category.WorkItemType())
		for _, field := range planned.Payload.Fields {
			fmt.Fprintf(&b, "  %s = %v\n", field.Path, field.Value)
		}
		for _, rel := range planned.Payload.Relations {
			fmt.Fprintf(&b, "  relation %s -> %s\n", rel.Rel, rel.URL)
		}
	}
	for _, failure := range res.Failures {
		if parentID, ok := waiting[failure.SourceID]; ok {
			fmt.Fprintf(&b, "%s (%s) waits for parent %s above\n", failure.SourceID, failure.Type, parentID)
			continue
		}
		fmt.Fprintf(&b, "%s (%s) would fail: %v\n", failure.SourceID, failure.Type, failure.Err)
	}
	return b.String()
}

// waitingForParent returns, per failed record, the planned parent it waits
// on. A dry run never records checkpoints, so every child of a record planned
// in the same run fails parent resolution; on a real run the parent is
// checkpointed first and the child creates normally.
func waitingForParent(res *migrate.Result) map[string]string {
	planned := make(map[string]bool, len(res.Planned))
	for _, p := range res.Planned {
		planned[p.SourceID] = true
	}

	waiting := make(map[string]string)
	for _, failure := range res.Failures {
		var notMigrated *domain.ParentNotMigratedError
		if errors.As(failure.Err, &notMigrated) && planned[notMigrated.ParentID] {
			waiting[failure.SourceID] = notMigrated.ParentID
		}
	}
	return waiting
}
