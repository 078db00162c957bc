package commands

import (
	"loggingturtle/internal/entity"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the configured entities along with their last run.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		state, err := entity.ReadState(entity.StatePath(registry.Path))
		if err != nil {
			return err
		}

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Entity", "Name", "URL", "Last access", "Records changed", "Last error"})
		for _, key := range registry.Names() {
			config := registry.Config.Entities[key]
			name := config.Name
			if name == "" {
				name = key
			}

			lastAccess := "never"
			bookkeeping, ok := state.Entities[key]
			if ok && !bookkeeping.LastAccess.IsZero() {
				lastAccess = bookkeeping.LastAccess.Format(time.DateTime)
			}
			t.AppendRow(table.Row{
				key,
				name,
				config.URL,
				lastAccess,
				bookkeeping.NRecordsChanged,
				bookkeeping.LastError,
			})
		}
		t.Render()
		return nil
	},
}
