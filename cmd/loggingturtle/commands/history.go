package commands

import (
	"context"
	"loggingturtle/internal/components/telemetry"
	"loggingturtle/services/logstore"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "amount of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func openStore(ctx context.Context, key string) (logstore.Store, error) {
	registry, err := loadRegistry()
	if err != nil {
		return logstore.Store{}, err
	}
	ent, err := registry.Resolve(key, debug)
	if err != nil {
		return logstore.Store{}, err
	}
	return logstore.Open(ctx, ent.Database, telemetry.NewSlogAPI(nil))
}

var historyCmd = &cobra.Command{
	Use:   "history <entity>",
	Short: "Shows the most recent runs committed to an entity's database.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.Runs(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Run", "Started", "Normalized rows", "Raw rows"})
		for _, run := range runs {
			t.AppendRow(table.Row{
				run.ID,
				run.StartedAt.Format(time.DateTime),
				run.NormalizedRows,
				run.RawRows,
			})
		}
		t.Render()
		return nil
	},
}
