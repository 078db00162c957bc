package commands

import (
	"context"
	"log/slog"
	"loggingturtle/internal/components/chrono"
	"loggingturtle/internal/components/telemetry"
	libtelemetry "loggingturtle/lib/telemetry"
	"time"

	"github.com/spf13/cobra"
)

// DefaultSchedule runs every morning, after the previous day's log is complete.
const DefaultSchedule = "0 6 * * *"

var cronSpec string

func init() {
	daemonCmd.Flags().StringVar(&cronSpec, "cron", "", "cron spec, overrides the configured schedule")
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Runs every configured entity on a schedule until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		registry, err := loadRegistry()
		if err != nil {
			return err
		}

		spec := cronSpec
		if spec == "" {
			spec = registry.Config.Schedule
		}
		if spec == "" {
			spec = DefaultSchedule
		}

		r := newRunner(registry, debug, cmd.OutOrStdout()).withBreakers()
		tel := telemetry.NewSlogAPI(nil)
		scheduler := chrono.NewStandardCron(tel, chrono.NewStandardTime(nil))
		err = scheduler.Cron(spec, func() {
			err := r.runAll(ctx, registry.Names())
			if err != nil {
				slog.Error("scheduled run failed", "err", err)
			}
		})
		if err != nil {
			return err
		}

		libtelemetry.InstrumentPerfStats(ctx, 30*time.Second)
		scheduler.Start()
		slog.Info("daemon started", "schedule", spec, "entities", registry.Names())

		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		scheduler.Stop(stopCtx)
		return nil
	},
}
