// Package logging holds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	SetOutput(os.Stderr)
}

// Logger returns the package logger.
func Logger() zerolog.Logger {
	return logger
}

// SetOutput redirects log output through a console writer. Useful for tests.
func SetOutput(w io.Writer) {
	logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().
		Level(logger.GetLevel())
}

// SetLevel parses level ("debug", "info", "warn", "error") and applies it.
// An empty string keeps the current level.
func SetLevel(level string) error {
	if strings.TrimSpace(level) == "" {
		return nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	logger = logger.Level(lvl)
	return nil
}
