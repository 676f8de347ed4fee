package cli

import (
	"fmt"

	"github.com/lherron/wrkmig/internal/checkpoint"
	"github.com/lherron/wrkmig/internal/cli/appctx"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show migration event history",
	Long: `Prints the per-record event log from the checkpoint database:
one line per attempted record with run, outcome, and message.

Examples:
  wrkmig log
  wrkmig log --failed
  wrkmig log --run <run-id>`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.Options{NeedsDB: true}, runLog),
}

var (
	logRunID  string
	logFailed bool
)

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().StringVar(&logRunID, "run", "", "Only events from this run")
	logCmd.Flags().BoolVar(&logFailed, "failed", false, "Only failed records")
}

func runLog(app *appctx.App, cmd *cobra.Command, args []string) error {
	events, err := checkpoint.ListEvents(app.DB, checkpoint.EventFilter{
		RunID:      logRunID,
		FailedOnly: logFailed,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, event := range events {
		fmt.Fprintf(out, "%s  %s  %-16s %-12s %s\n",
			event.CreatedAt, shortRunID(event.RunID), event.EventType, event.SourceID, event.Message)
	}
	fmt.Fprintf(out, "%d event(s)\n", len(events))
	return nil
}

func shortRunID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}
