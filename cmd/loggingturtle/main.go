package main

import (
	"context"
	"log/slog"
	"loggingturtle/cmd/loggingturtle/commands"
	"loggingturtle/lib/telemetry"
	"loggingturtle/lib/util/serviceutil"
	"os"
	"time"
)

func main() {
	ctx, cancel := serviceutil.SignalContext()

	telemetry.InitSlog(false)

	otel, err := telemetry.SetupFromEnv(ctx, "loggingturtle")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}

	err = commands.ExecuteContext(ctx)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if shutdownErr := otel.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Warn("failed to flush telemetry", "err", shutdownErr)
	}

	if err != nil {
		os.Exit(1)
	}
}
