package telemetry

import (
	"io"
	"log/slog"
	"os"
)

// InitSlog replaces the default slog logger with a text handler writing to
// stderr and to every extra writer given (ex. a per-run log file).
func InitSlog(debug bool, extra ...io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	writers := append([]io.Writer{os.Stderr}, extra...)
	logger := slog.New(slog.NewTextHandler(
		io.MultiWriter(writers...),
		&slog.HandlerOptions{Level: level},
	))
	slog.SetDefault(logger)
	return logger
}
