// Package logging assembles the structured slog loggers used across
// wifiguard.
//
// It owns the console and JSON handlers, level parsing, output plumbing, the
// tee handler that splits console output from the JSON run log, and the
// run-ID handler that stamps every record of one daemon run. Field keys are
// standardized here (worker, ssid, alert_id, event_type, ...) so the scan,
// alert, and supervisor loops emit records with the same shape.
//
// Use NewNop in tests and wiring code that cannot fail.
package logging
