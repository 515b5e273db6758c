// Package telemetry is the ambient logging and metrics-export layer.
// The core decision packages (safety, metrics) never import this
// package; only the session-owning packages (protocolrunner,
// assessment) and the cmd/bioctl CLI do.
package telemetry

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// LogLevel mirrors zerolog's levels without leaking the zerolog type
// into callers that only want to pick a verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat selects the wire format zerolog renders to.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// LoggerConfig configures a new Logger.
type LoggerConfig struct {
	Level  LogLevel
	Format LogFormat
	Output io.Writer
}

// Logger wraps a zerolog.Logger with the variadic key-value helpers
// the rest of this module's session packages use to log rejections,
// failures and fault detail as structured fields, never as baked-in
// message strings (fault kinds stay structured all the way to the log
// line).
type Logger struct {
	z zerolog.Logger
}

// NewLogger builds a Logger from LoggerConfig, defaulting to
// info/text/stderr for any zero fields.
func NewLogger(cfg LoggerConfig) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == LogFormatText || cfg.Format == "" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	level := zerolog.InfoLevel
	switch cfg.Level {
	case LogLevelDebug:
		level = zerolog.DebugLevel
	case LogLevelWarn:
		level = zerolog.WarnLevel
	case LogLevelError:
		level = zerolog.ErrorLevel
	}

	z := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &Logger{z: z}
}

// NewNop returns a Logger that discards everything, for core packages
// exercised without a logger wired in (e.g. unit tests).
func NewNop() *Logger {
	return &Logger{z: zerolog.Nop()}
}

func (l *Logger) Debug(msg string, kv ...any) { l.log(l.z.Debug(), msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.log(l.z.Info(), msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.log(l.z.Warn(), msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { l.log(l.z.Error(), msg, kv) }

func (l *Logger) log(event *zerolog.Event, msg string, kv []any) {
	addFields(event, kv).Msg(msg)
}

// addFields interprets kv as alternating key/value pairs, matching the
// teacher's logger.
func addFields(event *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, kv[i+1])
	}
	return event
}

// WithField returns a derived Logger carrying one extra structured
// field on every subsequent line (e.g. a session ID).
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{z: l.z.With().Interface(key, value).Logger()}
}
