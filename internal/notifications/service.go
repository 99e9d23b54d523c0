package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"wifiguard/internal/config"
)

const userAgent = "wifiguard/0.1.0"

// Event enumerates the notifications the monitor can publish.
type Event string

const (
	EventUntrustedNetwork  Event = "untrusted_network"
	EventWorkerRestarted   Event = "worker_restarted"
	EventRestartSuppressed Event = "restart_suppressed"
	EventWatchdogExpired   Event = "watchdog_expired"
	EventTest              Event = "test"
)

// Payload carries event-specific fields.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		settings: cfg.Notifications,
		dedup:    time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second,
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
	dedup    time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil {
		return nil
	}
	if !n.enabled(event) {
		return nil
	}
	if key := dedupKey(event, data); key != "" && !n.claim(key) {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return fmt.Errorf("unsupported notification event %q", event)
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventUntrustedNetwork:
		return n.settings.Untrusted
	case EventWorkerRestarted, EventRestartSuppressed:
		return n.settings.Restarts
	case EventWatchdogExpired:
		return n.settings.Watchdog
	default:
		return true
	}
}

// claim reports whether key may be sent now and records the send.
func (n *ntfyService) claim(key string) bool {
	if n.dedup <= 0 {
		return true
	}
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.lastSent[key]; ok && now.Sub(last) < n.dedup {
		return false
	}
	for k, t := range n.lastSent {
		if now.Sub(t) >= n.dedup {
			delete(n.lastSent, k)
		}
	}
	n.lastSent[key] = now
	return true
}

func dedupKey(event Event, data Payload) string {
	if event != EventUntrustedNetwork {
		return ""
	}
	return string(event) + ":" + stringValue(data, "ssid")
}

func format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventUntrustedNetwork:
		ssid := stringValue(data, "ssid")
		message := fmt.Sprintf("⚠️ Untrusted network detected: %s", ssid)
		if observed := stringValue(data, "observedAt"); observed != "" {
			message = fmt.Sprintf("%s\nSeen at %s", message, observed)
		}
		return payload{
			title:    "wifiguard - Untrusted Network",
			message:  message,
			tags:     []string{"wifiguard", "untrusted", "warning"},
			priority: "high",
		}, true
	case EventWorkerRestarted:
		worker := stringValue(data, "worker")
		message := fmt.Sprintf("🔁 Worker %s was stuck and has been restarted", worker)
		if reason := stringValue(data, "reason"); reason != "" {
			message = fmt.Sprintf("%s (%s)", message, reason)
		}
		return payload{
			title:   "wifiguard - Worker Restarted",
			message: message,
			tags:    []string{"wifiguard", "supervisor", "restart"},
		}, true
	case EventRestartSuppressed:
		worker := stringValue(data, "worker")
		return payload{
			title:    "wifiguard - Restart Suppressed",
			message:  fmt.Sprintf("⏸️ Worker %s exceeded its restart budget (%s in %s)", worker, stringValue(data, "restarts"), stringValue(data, "window")),
			tags:     []string{"wifiguard", "supervisor", "suppressed"},
			priority: "high",
		}, true
	case EventWatchdogExpired:
		worker := stringValue(data, "worker")
		return payload{
			title:    "wifiguard - Watchdog Expired",
			message:  fmt.Sprintf("❌ Watchdog expired for %s after %s of silence", worker, stringValue(data, "silence")),
			tags:     []string{"wifiguard", "watchdog", "alert"},
			priority: "urgent",
		}, true
	case EventTest:
		return payload{
			title:    "wifiguard - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"wifiguard", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func stringValue(data Payload, key string) string {
	if data == nil {
		return ""
	}
	value, ok := data[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
