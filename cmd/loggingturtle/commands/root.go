package commands

import (
	"context"
	"fmt"
	"io"
	"loggingturtle/internal/entity"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	configDir string
	debug     bool
)

var rootCmd = &cobra.Command{
	Use:   "loggingturtle",
	Short: "loggingturtle archives public police and fire dispatch logs.",
	Long: `loggingturtle fetches the dispatch log table of each configured entity,
appends it to the entity's database and writes a csv and html copy of it.

Entities are configured in turtles.json5, read from --config or ~/loggingTurtle.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "directory containing turtles.json5")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "run in a clean test environment under <entity>/Debug/")
}

// ExecuteContext runs the command line, the returned error has already
// been printed.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return err
}

func loadRegistry() (entity.Registry, error) {
	if configDir != "" {
		return entity.Load(configDir)
	}
	return entity.Load(entity.DefaultConfigDir)
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}
