package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent names the subsystem emitting the record.
	FieldComponent = "component"
	// FieldWorker names the supervised worker (scan, alert).
	FieldWorker = "worker"
	// FieldGeneration identifies one incarnation of a worker.
	FieldGeneration = "generation"
	// FieldSSID carries the network identifier under consideration.
	FieldSSID = "ssid"
	// FieldAlertID carries the unique ID of an alert.
	FieldAlertID = "alert_id"
	// FieldVerdict carries the classification outcome.
	FieldVerdict = "verdict"
	// FieldEventType classifies a record for log queries.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step for an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact states the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldRunID identifies one daemon run.
	FieldRunID = "run_id"
	// FieldAlert flags records that should stand out.
	FieldAlert = "alert"
)

type contextKey string

const (
	workerKey     contextKey = "worker"
	generationKey contextKey = "generation"
)

// WithWorker tags ctx with the worker name and incarnation.
func WithWorker(ctx context.Context, name, generation string) context.Context {
	ctx = context.WithValue(ctx, workerKey, name)
	if generation != "" {
		ctx = context.WithValue(ctx, generationKey, generation)
	}
	return ctx
}

// WorkerFromContext returns the worker name stored by WithWorker.
func WorkerFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	name, ok := ctx.Value(workerKey).(string)
	return name, ok && name != ""
}

// ContextFields extracts standardized slog attributes from ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if name, ok := WorkerFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldWorker, name))
	}
	if gen, ok := ctx.Value(generationKey).(string); ok && gen != "" {
		fields = append(fields, slog.String(FieldGeneration, gen))
	}
	return fields
}

// WithContext returns logger augmented with fields derived from ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
