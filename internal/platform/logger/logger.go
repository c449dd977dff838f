package logger

import (
	"log/slog"
	"os"
)

// New returns the default structured JSON logger for the service.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
