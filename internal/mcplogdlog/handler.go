// Package mcplogdlog forwards log records to a local mcplogd daemon in dev builds.
// Release builds compile the forwarding out.
package mcplogdlog

import (
	"context"
	"log/slog"
	"strings"
)

const appName = "sequencer"

const (
	levelInfo  = "info"
	levelDebug = "debug"
	levelWarn  = "warn"
	levelError = "error"
)

// Handler is a slog.Handler that sends every record to mcplogd.
type Handler struct {
	attrs  []slog.Attr
	groups []string
}

// NewHandler returns a handler forwarding to mcplogd. It is disabled unless built with the dev tag.
func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Enabled(context.Context, slog.Level) bool {
	return enabled
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	metadata := make(map[string]any, len(h.attrs)+r.NumAttrs())
	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		metadata[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		metadata[key] = a.Value.Any()
		return true
	})
	send(levelName(r.Level), r.Message, metadata)
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := strings.Join(h.groups, ".")
	next := &Handler{groups: h.groups, attrs: append([]slog.Attr(nil), h.attrs...)}
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{attrs: h.attrs, groups: append(append([]string(nil), h.groups...), name)}
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return levelError
	case l >= slog.LevelWarn:
		return levelWarn
	case l >= slog.LevelInfo:
		return levelInfo
	default:
		return levelDebug
	}
}
