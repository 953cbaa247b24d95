// Package log configures the global zerolog logger and renders progress
// feedback for interactive runs.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Format selects how log lines are written
type Format string

const (
	FormatAuto    Format = "auto"
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Setup configures the global logger. FormatAuto picks the console writer
// when out is a terminal and JSON otherwise.
func Setup(level string, format Format, out io.Writer) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	switch format {
	case FormatJSON:
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	case FormatConsole:
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	case FormatAuto, "":
		if IsTerminal(out) {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
		} else {
			log.Logger = zerolog.New(out).With().Timestamp().Logger()
		}
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
