package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. Handlers and workers take
// it as a dependency so tests can discard output.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
