package cli

import (
	"fmt"
	"sort"

	"github.com/lherron/wrkmig/internal/cli/appctx"
	"github.com/lherron/wrkmig/internal/domain"
	"github.com/lherron/wrkmig/internal/mapping"
	"github.com/spf13/cobra"
)

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Show the effective mapping tables",
	Long: `Prints the state, priority, and user tables after the overlay file
(if any) is merged over the builtin defaults. Useful for auditing before a
run and for finding the entry to add after an unmapped-value failure.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.Options{}, runMappings),
}

func init() {
	rootCmd.AddCommand(mappingsCmd)
}

func runMappings(app *appctx.App, cmd *cobra.Command, args []string) error {
	mapper, err := mapping.Load(app.Config.MappingFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	for _, category := range domain.Categories {
		fmt.Fprintf(out, "states (%s):\n", category)
		table := mapper.StateTable(category)
		for _, status := range sortedKeys(table) {
			fmt.Fprintf(out, "  %-28s -> %s\n", status, table[status])
		}
	}

	fmt.Fprintln(out, "priorities:")
	priorities := mapper.PriorityTable()
	names := make([]string, 0, len(priorities))
	for name := range priorities {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if priorities[names[i]] != priorities[names[j]] {
			return priorities[names[i]] < priorities[names[j]]
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		fmt.Fprintf(out, "  %-28s -> %d\n", name, priorities[name])
	}

	users := mapper.UserTable()
	if len(users) > 0 {
		fmt.Fprintln(out, "users:")
		for _, name := range sortedKeys(users) {
			fmt.Fprintf(out, "  %-28s -> %s\n", name, users[name])
		}
	}

	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
