package logbuf

import (
	"context"
	"log/slog"
)

// Handler tees slog records into a Buffer before delegating to the
// real output handler. The buffer captures every level so the health
// monitor sees errors even when stdout is filtered to INFO.
type Handler struct {
	inner  slog.Handler
	buf    *Buffer
	bound  []slog.Attr
	groups []string
}

// NewHandler wraps inner so records are also captured into buf.
func NewHandler(inner slog.Handler, buf *Buffer) *Handler {
	return &Handler{inner: inner, buf: buf}
}

func (h *Handler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.bound)+r.NumAttrs())
	for _, a := range h.bound {
		attrs[h.qualify(a.Key)] = flatten(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.qualify(a.Key)] = flatten(a.Value)
		return true
	})
	if len(attrs) == 0 {
		attrs = nil
	}

	h.buf.Write(Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
		Attrs:   attrs,
	})

	// The inner handler keeps its own level filter.
	if !h.inner.Enabled(ctx, r.Level) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithAttrs(attrs)
	clone.bound = append(h.bound[:len(h.bound):len(h.bound)], attrs...)
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithGroup(name)
	clone.groups = append(h.groups[:len(h.groups):len(h.groups)], name)
	return &clone
}

// qualify prefixes a key with the open groups, outermost first.
func (h *Handler) qualify(key string) string {
	for i := len(h.groups) - 1; i >= 0; i-- {
		key = h.groups[i] + "." + key
	}
	return key
}

// flatten resolves a slog value to something that JSON-marshals
// usefully. Errors become their message instead of {}.
func flatten(v slog.Value) any {
	raw := v.Resolve().Any()
	if err, ok := raw.(error); ok {
		return err.Error()
	}
	return raw
}
