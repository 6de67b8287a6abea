package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewZerolog builds the zerolog logger shared by dispatch, storage and influx.
// Console lines by default, raw JSON when asJSON is set.
func NewZerolog(w io.Writer, level string, asJSON bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if !asJSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// DispatcherLogger satisfies dispatcher.Logger with a zerolog.Logger. Pairs with a
// non-string key and a dangling trailing key are dropped.
type DispatcherLogger struct {
	zerolog.Logger
}

func NewDispatcherLogger(l zerolog.Logger) DispatcherLogger {
	return DispatcherLogger{Logger: l.With().Str("component", "dispatcher").Logger()}
}

func (l DispatcherLogger) Debug(msg string, kv ...any) { l.Logger.Debug().Fields(kv).Msg(msg) }

func (l DispatcherLogger) Info(msg string, kv ...any) { l.Logger.Info().Fields(kv).Msg(msg) }

func (l DispatcherLogger) Error(msg string, kv ...any) { l.Logger.Error().Fields(kv).Msg(msg) }
