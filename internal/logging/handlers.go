package logging

import (
	"context"
	"errors"
	"log/slog"
)

// ContextProvider returns attributes added to every record at handle time, such as
// the name of the loaded program.
type ContextProvider func() []slog.Attr

// ContextHandler decorates records with the attributes of a ContextProvider.
type ContextHandler struct {
	next     slog.Handler
	provider ContextProvider
}

// NewContextHandler wraps next.
func NewContextHandler(next slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{next: next, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		r.AddAttrs(h.provider()...)
	}
	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewContextHandler(h.next.WithAttrs(attrs), h.provider)
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return NewContextHandler(h.next.WithGroup(name), h.provider)
}

// MultiHandler writes every record to each enabled handler.
type MultiHandler []slog.Handler

// NewMultiHandler drops nil handlers.
func NewMultiHandler(handlers ...slog.Handler) MultiHandler {
	out := make(MultiHandler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (m MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle returns the joined errors of all sinks; a failing sink does not keep the
// record from the others.
func (m MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (m MultiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return m
	}
	return m.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (m MultiHandler) each(f func(slog.Handler) slog.Handler) MultiHandler {
	out := make(MultiHandler, len(m))
	for i, h := range m {
		out[i] = f(h)
	}
	return out
}
