package clog

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// AttributesHandler decorates another handler with the attributes stored in
// the record's context by AddAttribute. Context attributes are appended in
// key order so JSON lines for the same request shape compare equal.
type AttributesHandler struct {
	handler slog.Handler
}

func NewAttributesHandler(handler slog.Handler) *AttributesHandler {
	return &AttributesHandler{handler: handler}
}

func (h *AttributesHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *AttributesHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := GetAttributes(ctx)
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		record.AddAttrs(slog.Any(k, attrs[k]))
	}
	return h.handler.Handle(ctx, record)
}

func (h *AttributesHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AttributesHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *AttributesHandler) WithGroup(name string) slog.Handler {
	return &AttributesHandler{handler: h.handler.WithGroup(name)}
}
