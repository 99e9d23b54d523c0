package alerting_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wifiguard/internal/alerting"
	"wifiguard/internal/alertq"
	"wifiguard/internal/notifications"
	"wifiguard/internal/ssid"
	"wifiguard/internal/testsupport"
)

func TestNotifyReporterPublishesUntrustedEvent(t *testing.T) {
	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		bodies <- string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(srv.URL))
	rep := alerting.NewNotifyReporter(notifications.NewService(cfg))
	if rep.Name() != "ntfy" {
		t.Fatalf("unexpected reporter name %q", rep.Name())
	}

	if err := rep.Report(context.Background(), alertq.NewAlert(ssid.New("Rede_Insegura_3"))); err != nil {
		t.Fatalf("Report: %v", err)
	}
	body := <-bodies
	if !strings.Contains(body, "Untrusted network detected: Rede_Insegura_3") {
		t.Fatalf("unexpected notification body %q", body)
	}
}
