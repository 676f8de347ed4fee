package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wrkmig",
	Short: "One-way issue tracker to work item migration",
	Long: `wrkmig migrates issue-tracker records into a work-item system:
records are created exactly once, parents before children, with comments
and attachments carried along. Progress is checkpointed in SQLite so an
interrupted run resumes where it left off.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to checkpoint database (overrides WRKMIG_DB_PATH)")
	rootCmd.PersistentFlags().String("mapping", "", "Path to mapping overlay file (overrides WRKMIG_MAPPING_FILE)")
}
