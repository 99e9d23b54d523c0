package alerting

import (
	"context"
	"log/slog"
	"time"

	"wifiguard/internal/alertq"
	"wifiguard/internal/logging"
	"wifiguard/internal/notifications"
)

// Reporter delivers one alert somewhere.
type Reporter interface {
	Name() string
	Report(ctx context.Context, alert alertq.Alert) error
}

// LogReporter writes each alert as a warning-level log line.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter returns a reporter that logs to logger.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Name() string { return "log" }

func (r *LogReporter) Report(ctx context.Context, alert alertq.Alert) error {
	logging.WithContext(ctx, r.logger).Warn("untrusted network detected",
		logging.String(logging.FieldSSID, alert.SSID.String()),
		logging.String(logging.FieldAlertID, alert.ID),
		logging.Time("observed_at", alert.ObservedAt),
		logging.String(logging.FieldEventType, "untrusted_network"),
		logging.Alert("untrusted_network"),
	)
	return nil
}

// AlertRecorder persists alerts. journal.Store satisfies it.
type AlertRecorder interface {
	RecordAlert(ctx context.Context, alert alertq.Alert) error
}

// JournalReporter appends each alert to the journal.
type JournalReporter struct {
	store AlertRecorder
}

// NewJournalReporter wraps store.
func NewJournalReporter(store AlertRecorder) *JournalReporter {
	return &JournalReporter{store: store}
}

func (r *JournalReporter) Name() string { return "journal" }

func (r *JournalReporter) Report(ctx context.Context, alert alertq.Alert) error {
	return r.store.RecordAlert(ctx, alert)
}

// NotifyReporter publishes each alert through the notification service.
type NotifyReporter struct {
	service notifications.Service
}

// NewNotifyReporter wraps service.
func NewNotifyReporter(service notifications.Service) *NotifyReporter {
	return &NotifyReporter{service: service}
}

func (r *NotifyReporter) Name() string { return "ntfy" }

func (r *NotifyReporter) Report(ctx context.Context, alert alertq.Alert) error {
	return r.service.Publish(ctx, notifications.EventUntrustedNetwork, notifications.Payload{
		"ssid":       alert.SSID.String(),
		"alertID":    alert.ID,
		"observedAt": alert.ObservedAt.Local().Format(time.DateTime),
	})
}
