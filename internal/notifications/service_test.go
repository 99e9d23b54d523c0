package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"wifiguard/internal/config"
	"wifiguard/internal/notifications"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		captured = append(captured, capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventUntrustedNetwork, notifications.Payload{"ssid": "Rede_Insegura_7"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:           "untrusted network",
			event:          notifications.EventUntrustedNetwork,
			payload:        notifications.Payload{"ssid": "Rede_Insegura_42"},
			expectTitle:    "wifiguard - Untrusted Network",
			expectMessage:  "⚠️ Untrusted network detected: Rede_Insegura_42",
			expectTags:     "wifiguard,untrusted,warning",
			expectPriority: "high",
		},
		{
			name:          "worker restarted",
			event:         notifications.EventWorkerRestarted,
			payload:       notifications.Payload{"worker": "scan", "reason": "heartbeat stale"},
			expectTitle:   "wifiguard - Worker Restarted",
			expectMessage: "🔁 Worker scan was stuck and has been restarted (heartbeat stale)",
			expectTags:    "wifiguard,supervisor,restart",
		},
		{
			name:           "restart suppressed",
			event:          notifications.EventRestartSuppressed,
			payload:        notifications.Payload{"worker": "alert", "restarts": 3, "window": "1m0s"},
			expectTitle:    "wifiguard - Restart Suppressed",
			expectMessage:  "⏸️ Worker alert exceeded its restart budget (3 in 1m0s)",
			expectTags:     "wifiguard,supervisor,suppressed",
			expectPriority: "high",
		},
		{
			name:           "watchdog expired",
			event:          notifications.EventWatchdogExpired,
			payload:        notifications.Payload{"worker": "scan", "silence": "12s"},
			expectTitle:    "wifiguard - Watchdog Expired",
			expectMessage:  "❌ Watchdog expired for scan after 12s of silence",
			expectTags:     "wifiguard,watchdog,alert",
			expectPriority: "urgent",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "wifiguard - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "wifiguard,test",
			expectPriority: "low",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, captured := newCaptureServer(t)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = srv.URL
			svc := notifications.NewService(&cfg)

			if err := svc.Publish(context.Background(), tt.event, tt.payload); err != nil {
				t.Fatalf("Publish returned error: %v", err)
			}
			got := captured()
			if len(got) != 1 {
				t.Fatalf("expected one request, got %d", len(got))
			}
			req := got[0]
			if req.title != tt.expectTitle {
				t.Fatalf("title: got %q want %q", req.title, tt.expectTitle)
			}
			if req.body != tt.expectMessage {
				t.Fatalf("message: got %q want %q", req.body, tt.expectMessage)
			}
			if req.tags != tt.expectTags {
				t.Fatalf("tags: got %q want %q", req.tags, tt.expectTags)
			}
			if req.priority != tt.expectPriority {
				t.Fatalf("priority: got %q want %q", req.priority, tt.expectPriority)
			}
		})
	}
}

func TestNtfyServiceDedupsUntrustedPerNetwork(t *testing.T) {
	srv, captured := newCaptureServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.DedupWindowSeconds = 300
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	for _, name := range []string{"Rede_Insegura_1", "Rede_Insegura_1", "Rede_Insegura_2"} {
		if err := svc.Publish(ctx, notifications.EventUntrustedNetwork, notifications.Payload{"ssid": name}); err != nil {
			t.Fatalf("Publish returned error: %v", err)
		}
	}
	got := captured()
	if len(got) != 2 {
		t.Fatalf("expected duplicate detection collapsed, got %d requests", len(got))
	}
	if !strings.Contains(got[1].body, "Rede_Insegura_2") {
		t.Fatalf("unexpected second notification %q", got[1].body)
	}
}

func TestNtfyServiceRespectsToggles(t *testing.T) {
	srv, captured := newCaptureServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.Restarts = false
	cfg.Notifications.Watchdog = false
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	_ = svc.Publish(ctx, notifications.EventWorkerRestarted, notifications.Payload{"worker": "scan"})
	_ = svc.Publish(ctx, notifications.EventWatchdogExpired, notifications.Payload{"worker": "scan"})
	if got := captured(); len(got) != 0 {
		t.Fatalf("expected disabled events to be skipped, got %d", len(got))
	}
}

func TestNtfyServiceReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)
	err := svc.Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestNtfyServiceRejectsUnknownEvent(t *testing.T) {
	srv, _ := newCaptureServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.Event("bogus"), nil); err == nil {
		t.Fatal("expected unsupported event error")
	}
}
