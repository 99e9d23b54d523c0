package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"wifiguard/internal/journal"
	"wifiguard/internal/monitor"
	"wifiguard/internal/scanner"
	"wifiguard/internal/testsupport"
)

func TestRunWritesStatusAndCleansUp(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithNetworks("A", "B"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, Options{
			Source:  scanner.NewSequence("A", "Z", "B", "Q"),
			Console: filepath.Join(t.TempDir(), "console.log"),
		})
	}()

	var snap monitor.Snapshot
	deadline := time.Now().Add(3 * time.Second)
	for {
		var err error
		snap, err = monitor.ReadSnapshot(cfg.StatusPath())
		if err == nil && snap.Status.Scanner.Untrusted > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("status snapshot never reported untrusted scans: %+v err=%v", snap, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if snap.PID != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), snap.PID)
	}
	if !snap.Status.Running {
		t.Fatal("expected running monitor in snapshot")
	}
	if !strings.HasPrefix(filepath.Base(snap.LogPath), "wifiguard-") {
		t.Fatalf("unexpected log path %q", snap.LogPath)
	}

	pid, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if strings.TrimSpace(string(pid)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file contents %q", pid)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	for _, path := range []string{cfg.PIDPath(), cfg.StatusPath()} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, stat err=%v", path, err)
		}
	}
	if _, err := os.Lstat(filepath.Join(cfg.Paths.LogDir, "wifiguard.log")); err != nil {
		t.Fatalf("expected current log pointer: %v", err)
	}

	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer store.Close()
	records, err := store.RecentAlerts(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("expected alerts persisted by the run")
	}
}

func TestRunRejectsNilConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestEnsureCurrentLogPointerReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "wifiguard-1.log")
	second := filepath.Join(dir, "wifiguard-2.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "wifiguard.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "wifiguard-2.log" {
		t.Fatalf("pointer resolves to %q", data)
	}
}

func TestWritePIDFileEmptyPath(t *testing.T) {
	if err := writePIDFile(""); err != nil {
		t.Fatalf("expected empty path to be ignored, got %v", err)
	}
}
