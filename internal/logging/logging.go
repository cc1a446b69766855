// Package logging builds the process-wide zerolog logger.
//
// Console output is human-readable in dev; everything else gets JSON so
// log shippers can keep the fields structured. An optional file sink
// receives JSON regardless of the console format.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string // trace|debug|info|warn|error
	Console bool   // pretty console writer instead of JSON on stdout
	File    string // optional JSON sink path, append mode
}

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// New builds the root logger. The returned closer owns the file sink
// and is never nil; without a file it closes nothing.
func New(cfg Config) (zerolog.Logger, io.Closer) {
	zerolog.TimeFieldFormat = time.RFC3339

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat})
	} else {
		sinks = append(sinks, os.Stdout)
	}

	var closer io.Closer = nopCloser{}
	if p := strings.TrimSpace(cfg.File); p != "" {
		f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			sinks = append(sinks, f)
			closer = f
		}
	}

	var w io.Writer = sinks[0]
	if len(sinks) > 1 {
		w = zerolog.MultiLevelWriter(sinks...)
	}

	log := zerolog.New(w).With().Timestamp().Logger().Level(ParseLevel(cfg.Level, zerolog.InfoLevel))
	return log, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return def
	}
}
