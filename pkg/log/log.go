// Package log builds the logr.Logger handed to stores and the state manager,
// with zerolog doing the output.
package log

import (
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// NewLogr logs to stderr, human-readable on a terminal and JSON lines
// otherwise.
func NewLogr(name string, verbosity int) logr.Logger {
	format := FormatJSON
	if isatty.IsTerminal(os.Stderr.Fd()) {
		format = FormatConsole
	}
	return New(os.Stderr, format, name, verbosity)
}

// New logs to w. verbosity is the highest V-level emitted; store lifecycle
// events are V(1), per-record decisions V(1) or above.
func New(w io.Writer, format Format, name string, verbosity int) logr.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerologr.NameFieldName = "logger"
	zerologr.NameSeparator = "/"
	zerologr.SetMaxV(verbosity)

	if format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	zl := zerolog.New(w).With().Timestamp().Logger()
	return zerologr.New(&zl).WithName(name)
}
