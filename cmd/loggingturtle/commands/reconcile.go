package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <entity>",
	Short: "Checks an entity's normalized and raw logs against the run ledger.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		report, err := store.Reconcile(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Log", "Rows", "Ledger"})
		t.AppendRow(table.Row{"normalized_log", report.NormalizedRows, report.LedgerNormalized})
		t.AppendRow(table.Row{"raw_log", report.RawRows, report.LedgerRaw})
		t.Render()

		if !report.Consistent() {
			return fmt.Errorf("%s: logs do not match the run ledger", args[0])
		}
		if report.Diverged() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: normalized and raw logs hold a different amount of rows\n", args[0])
		}
		return nil
	},
}
