package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lherron/wrkmig/internal/checkpoint"
	"github.com/lherron/wrkmig/internal/cli/appctx"
	"github.com/lherron/wrkmig/internal/dest"
	"github.com/lherron/wrkmig/internal/mapping"
	"github.com/lherron/wrkmig/internal/migrate"
	"github.com/lherron/wrkmig/internal/source"
	"github.com/lherron/wrkmig/internal/transform"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the migration",
	Long: `Pages source records oldest first and migrates each one: skip if
checkpointed, otherwise create the destination work item, record the
checkpoint, and transfer comments. A failing record is logged and skipped;
re-running after a failure is safe.

Examples:
  wrkmig run
  wrkmig run --dry-run
  wrkmig run --from-cursor <cursor>`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.Options{NeedsDB: true}, runRun),
}

var (
	runDryRun     bool
	runPageSize   int
	runFromCursor string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Transform records without writing to the destination")
	runCmd.Flags().IntVar(&runPageSize, "page-size", 0, "Source page size (defaults to config)")
	runCmd.Flags().StringVar(&runFromCursor, "from-cursor", "", "Resume paging from an opaque cursor printed by a prior run")
}

func runRun(app *appctx.App, cmd *cobra.Command, args []string) error {
	driver, err := buildDriver(app, cmd, runDryRun, runPageSize, runFromCursor)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Starting run %s: %s -> %s/%s\n",
		driver.RunID(), app.Config.SourceProject, app.Config.DestURL, app.Config.DestProject)

	res, err := driver.Run()
	printSummary(cmd, res)
	if err != nil {
		return err
	}
	return nil
}

// buildDriver wires the mapper, checkpoint store, clients, and driver from
// the loaded configuration. Shared by run and plan.
func buildDriver(app *appctx.App, cmd *cobra.Command, dryRun bool, pageSize int, fromCursor string) (*migrate.Driver, error) {
	if err := app.Config.Validate(); err != nil {
		return nil, err
	}

	mapper, err := mapping.Load(app.Config.MappingFile)
	if err != nil {
		return nil, err
	}

	store, err := checkpoint.Open(app.DB)
	if err != nil {
		return nil, err
	}

	srcClient := source.NewJiraClient(app.Config.SourceURL, app.Config.SourceUser, app.Config.SourceToken)
	dstClient := dest.NewAzureClient(app.Config.DestURL, app.Config.DestToken)
	transformer := transform.New(mapper, store, dstClient, app.Config.DestProject)

	if pageSize <= 0 {
		pageSize = app.Config.PageSize
	}

	var startAfter time.Time
	if fromCursor != "" {
		cursor, err := source.DecodeCursor(fromCursor)
		if err != nil {
			return nil, fmt.Errorf("invalid --from-cursor: %w", err)
		}
		if cursor.Project != app.Config.SourceProject {
			return nil, fmt.Errorf("cursor is for project %s, configured project is %s", cursor.Project, app.Config.SourceProject)
		}
		startAfter = cursor.LastCreated
	}

	runID := uuid.New().String()
	var events *checkpoint.EventWriter
	if !dryRun {
		events = checkpoint.NewEventWriter(app.DB, runID)
	}

	return migrate.New(srcClient, dstClient, store, transformer, events, migrate.Options{
		SourceProject: app.Config.SourceProject,
		StartAfter:    startAfter,
		DestProject:   app.Config.DestProject,
		PageSize:      pageSize,
		DryRun:        dryRun,
		RunID:         runID,
		Out:           cmd.OutOrStdout(),
	}), nil
}

func printSummary(cmd *cobra.Command, res *migrate.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s finished: %d created, %d skipped, %d failed\n",
		res.RunID, res.Created, res.Skipped, res.Failed)
	if res.CommentsFailed > 0 {
		fmt.Fprintf(out, "%d created record(s) had comment transfer failures; see wrkmig log --failed\n",
			res.CommentsFailed)
	}

	for _, failure := range res.Failures {
		fmt.Fprintf(out, "  failed %s (%s): %v\n", failure.SourceID, failure.Type, failure.Err)
	}

	if res.Cursor != nil {
		if encoded, err := res.Cursor.Encode(); err == nil {
			fmt.Fprintf(out, "Cursor: %s\n", encoded)
		}
	}
}
