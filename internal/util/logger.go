package util

import (
	"io"
	"log/slog"
	"os"
)

type Logger = *slog.Logger

// NewLogger returns a text logger on stderr so that tables printed to stdout
// stay machine readable.
func NewLogger(verbose bool) *slog.Logger {
	return NewLoggerTo(os.Stderr, verbose)
}

func NewLoggerTo(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// DiscardLogger drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
