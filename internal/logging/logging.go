// Package logging builds the process logger: a text slog handler writing to
// the relay log file, optionally mirrored to the console.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Setup opens the log file for appending and returns the logger plus a
// closer for the file handle. When disableConsole is set only the file
// receives output; the file handler is always active.
func Setup(file string, disableConsole bool) (*slog.Logger, func() error, error) {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", file, err)
	}

	var w io.Writer = f
	if !disableConsole {
		w = io.MultiWriter(os.Stderr, f)
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return logger, f.Close, nil
}
