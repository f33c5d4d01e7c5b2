// Package logging provides the process-wide structured logger used by every
// other package. All output funnels through a single zerolog.Logger that
// writes to stderr; log records are not delivered through the event
// callback (internal/events).
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	base zerolog.Logger
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

func root() zerolog.Logger {
	once.Do(func() {
		level := parseLevel(os.Getenv("WIREMAIL_LOG_LEVEL"))

		var w zerolog.Logger
		if strings.EqualFold(os.Getenv("WIREMAIL_LOG_FORMAT"), "console") {
			w = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		} else {
			w = zerolog.New(os.Stderr).With().Timestamp().Logger()
		}
		base = w.Level(level)
	})
	return base
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent returns a logger annotated with a "component" field, the same
// pattern used throughout the ingestion, PGP, and store packages.
func WithComponent(name string) zerolog.Logger {
	return root().With().Str("component", name).Logger()
}
