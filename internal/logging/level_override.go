package logging

import (
	"context"
	"log/slog"
	"strings"
)

// levelOverrideHandler enforces a per-logger minimum level on top of the
// wrapped handler, which should be configured with the most verbose level
// needed globally.
type levelOverrideHandler struct {
	next  slog.Handler
	level slog.Level
}

func (h *levelOverrideHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.next.Enabled(ctx, level)
}

func (h *levelOverrideHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *levelOverrideHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelOverrideHandler{next: h.next.WithAttrs(attrs), level: h.level}
}

func (h *levelOverrideHandler) WithGroup(name string) slog.Handler {
	return &levelOverrideHandler{next: h.next.WithGroup(name), level: h.level}
}

// WithLevelOverride returns a logger that drops records below level while
// keeping the attributes and routing of logger.
func WithLevelOverride(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	next := logger.Handler()
	if existing, ok := next.(*levelOverrideHandler); ok {
		next = existing.next
	}
	return slog.New(&levelOverrideHandler{next: next, level: level})
}

// ForWorker returns the component logger for a supervised worker, applying
// any level override configured for it. The worker and generation fields
// come from the worker context via WithContext.
func ForWorker(logger *slog.Logger, worker string, overrides map[string]string) *slog.Logger {
	out := NewComponentLogger(logger, worker)
	if value, ok := overrides[worker]; ok && strings.TrimSpace(value) != "" {
		out = WithLevelOverride(out, parseLevel(value))
	}
	return out
}

// MostVerbose returns the lowest level named by global or any override, so a
// shared handler can serve every worker's override.
func MostVerbose(global string, overrides map[string]string) string {
	best := strings.TrimSpace(global)
	bestLevel := parseLevel(best)
	for _, value := range overrides {
		if lvl := parseLevel(value); lvl < bestLevel {
			best, bestLevel = strings.TrimSpace(value), lvl
		}
	}
	return best
}
