package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runAll bool

func init() {
	runCmd.Flags().BoolVar(&runAll, "all", false, "run every configured entity")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <entity>...",
	Short: "Fetch, store and render the dispatch log of the given entities once.",
	Args: func(cmd *cobra.Command, args []string) error {
		if runAll && len(args) > 0 {
			return fmt.Errorf("--all does not take entity names")
		}
		if !runAll && len(args) == 0 {
			return fmt.Errorf("requires at least one entity name or --all")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		if runAll {
			args = registry.Names()
		}
		return newRunner(registry, debug, cmd.OutOrStdout()).runAll(cmd.Context(), args)
	},
}
