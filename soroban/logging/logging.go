// Package logging builds the charmbracelet loggers used across soroban.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// ShortLen is how many characters of a channel name are logged.
const ShortLen = 8

// New returns a logger writing to w at the given level ("debug", "info",
// "warn", "error").
func New(w io.Writer, prefix, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          prefix,
		Level:           lvl,
	}), nil
}

// Open resolves a log file setting: "" or "-" means stderr, anything else
// is opened for append. The returned closer is a no-op for stderr.
func Open(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stderr, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// Short truncates a channel name for logging. Full names are never logged.
func Short(name string) string {
	if len(name) <= ShortLen {
		return name
	}
	return name[:ShortLen]
}
