// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// New returns the process logger, writing to stderr so stdout stays free
// for agent output and the ACP wire. A terminal gets colorized output,
// anything else plain text. Verbose lowers the level to debug.
func New(verbose bool) *slog.Logger {
	return NewWriter(os.Stderr, verbose, term.IsTerminal(int(os.Stderr.Fd())))
}

// NewWriter builds a logger for w. Split out of New so tests can capture
// output.
func NewWriter(w io.Writer, verbose, colorize bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if colorize {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
