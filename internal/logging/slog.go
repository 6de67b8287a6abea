package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Sinks are the destinations of a session logger.
type Sinks struct {
	// File receives the session log. Nil logs to the console instead.
	File io.Writer
	// JSON switches the file or console sink from text lines to JSON.
	JSON bool
	// OTel bridges every record into the provider when set.
	OTel *sdklog.LoggerProvider
	// Extra handlers, e.g. Graylog.
	Extra []slog.Handler
}

// SlogManager owns the session slog.Logger.
type SlogManager struct {
	logger  *slog.Logger
	otel    *sdklog.LoggerProvider
	context ContextProvider
	console io.Writer
}

// NewSlogManager returns a manager whose Logger is slog.Default until Setup.
func NewSlogManager() *SlogManager {
	return &SlogManager{console: os.Stdout}
}

// parseLevel accepts slog level names in any case, e.g. "debug" or "WARN+2".
// Anything else is info.
func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// handlerOptions stamps records in RFC3339 UTC.
func handlerOptions(lvl slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.TimeKey || len(groups) > 0 {
				return a
			}
			if t, ok := a.Value.Any().(time.Time); ok {
				a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
			}
			return a
		},
	}
}

// SetContext installs a provider whose attributes are added to every record.
// It takes effect on the next Setup.
func (m *SlogManager) SetContext(p ContextProvider) {
	m.context = p
}

// Setup replaces the logger with one writing to sinks at level.
func (m *SlogManager) Setup(level string, sinks Sinks) {
	opts := handlerOptions(parseLevel(level))
	m.otel = sinks.OTel

	w := sinks.File
	if w == nil {
		w = m.console
	}
	var primary slog.Handler = slog.NewTextHandler(w, opts)
	if sinks.JSON {
		primary = slog.NewJSONHandler(w, opts)
	}

	handlers := append([]slog.Handler{primary}, sinks.Extra...)
	if sinks.OTel != nil {
		handlers = append(handlers, otelslog.NewHandler("backplot", otelslog.WithLoggerProvider(sinks.OTel)))
	}

	var h slog.Handler = NewMultiHandler(handlers...)
	if m.context != nil {
		h = NewContextHandler(h, m.context)
	}
	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", level, "json", sinks.JSON)
}

// Logger returns the session logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush exports records still buffered in the OTel provider.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.otel == nil {
		return nil
	}
	return m.otel.ForceFlush(ctx)
}
