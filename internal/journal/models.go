package journal

import "time"

// EventKind classifies an event row.
type EventKind string

const (
	EventAlertDropped              EventKind = "alert_dropped"
	EventClassificationUnavailable EventKind = "classification_unavailable"
	EventWorkerRestarted           EventKind = "worker_restarted"
	EventRestartSuppressed         EventKind = "restart_suppressed"
	EventWatchdogExpired           EventKind = "watchdog_expired"
)

// Kinds lists every event kind in display order.
func Kinds() []EventKind {
	return []EventKind{
		EventAlertDropped,
		EventClassificationUnavailable,
		EventWorkerRestarted,
		EventRestartSuppressed,
		EventWatchdogExpired,
	}
}

// ParseKind resolves a kind name, reporting false for unknown names.
func ParseKind(name string) (EventKind, bool) {
	for _, kind := range Kinds() {
		if string(kind) == name {
			return kind, true
		}
	}
	return "", false
}

// AlertRecord is one persisted untrusted-network alert.
type AlertRecord struct {
	ID         int64
	AlertID    string
	SSID       string
	ObservedAt time.Time
	RecordedAt time.Time
}

// Event is one persisted monitor event.
type Event struct {
	ID         int64
	Kind       EventKind
	Worker     string
	SSID       string
	Detail     string
	OccurredAt time.Time
}

// NetworkCount pairs an SSID with how many alerts it produced.
type NetworkCount struct {
	SSID      string
	Count     int
	FirstSeen time.Time
	LastSeen  time.Time
}

// Summary aggregates the journal for status output.
type Summary struct {
	Alerts        int
	DistinctSSIDs int
	LastAlert     time.Time
	EventsByKind  map[EventKind]int
	TopNetworks   []NetworkCount
}
