package supervisor_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wifiguard/internal/journal"
	"wifiguard/internal/logging"
	"wifiguard/internal/notifications"
	"wifiguard/internal/supervisor"
	"wifiguard/internal/task"
	"wifiguard/internal/telemetry"
	"wifiguard/internal/watchdog"
)

type eventLog struct {
	mu     sync.Mutex
	events []journal.Event
}

func (l *eventLog) RecordEvent(_ context.Context, ev journal.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) kinds() []journal.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]journal.EventKind, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

type notifyLog struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *notifyLog) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func beating(ctx context.Context, beat *task.Beat) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		beat.Beat()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// stalling beats once and then waits without beating until cancelled.
func stalling(ctx context.Context, beat *task.Beat) error {
	beat.Beat()
	<-ctx.Done()
	return nil
}

func fakeMemory(calls *atomic.Int32) func() (telemetry.MemorySample, error) {
	return func() (telemetry.MemorySample, error) {
		calls.Add(1)
		return telemetry.MemorySample{FreeBytes: 1 << 20, Source: "test"}, nil
	}
}

func newSupervisor(t *testing.T, opts supervisor.Options, workers ...supervisor.Worker) *supervisor.Supervisor {
	t.Helper()
	if opts.StuckThreshold == 0 {
		opts.StuckThreshold = 50 * time.Millisecond
	}
	if opts.Memory == nil {
		var calls atomic.Int32
		opts.Memory = fakeMemory(&calls)
	}
	sup, err := supervisor.New(logging.NewNop(), opts, workers...)
	if err != nil {
		t.Fatalf("supervisor.New: %v", err)
	}
	return sup
}

func startSupervisor(t *testing.T, sup *supervisor.Supervisor) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		_ = sup.Stop(stopCtx)
		cancel()
	})
	return ctx
}

func TestCheckRecreatesStuckWorker(t *testing.T) {
	wd := watchdog.New(5*time.Second, []string{"scan", "alert"}, false, nil, logging.NewNop())
	events := &eventLog{}
	notes := &notifyLog{}
	sup := newSupervisor(t, supervisor.Options{Watchdog: wd, Events: events, Notifier: notes},
		supervisor.Worker{Spec: task.Spec{Name: "scan", Priority: 5, Run: stalling}, Watched: true},
		supervisor.Worker{Spec: task.Spec{Name: "alert", Priority: 4, Run: beating}, Watched: true},
	)
	ctx := startSupervisor(t, sup)

	old := sup.Handle("scan")
	if old == nil {
		t.Fatal("expected scan handle")
	}
	time.Sleep(120 * time.Millisecond)
	if state, _ := sup.State("scan"); state != task.StateStuck {
		t.Fatalf("expected scan stuck before check, got %s", state)
	}

	restarts := sup.Check(ctx)
	if len(restarts) != 1 || restarts[0].Worker != "scan" {
		t.Fatalf("expected exactly scan restarted, got %+v", restarts)
	}

	fresh := sup.Handle("scan")
	if fresh == old {
		t.Fatal("expected stored handle to be replaced")
	}
	if fresh.Generation() == old.Generation() || restarts[0].NewGeneration != fresh.Generation() {
		t.Fatalf("expected new generation, old=%s new=%s", old.Generation(), fresh.Generation())
	}
	if fresh.Priority() != 5 || fresh.Name() != "scan" {
		t.Fatalf("expected same name and priority, got %s/%d", fresh.Name(), fresh.Priority())
	}
	if state := fresh.Liveness(50 * time.Millisecond); state != task.StateRunning {
		t.Fatalf("expected new handle running, got %s", state)
	}
	if state := old.Liveness(50 * time.Millisecond); state != task.StateTerminated {
		t.Fatalf("expected old handle terminated, got %s", state)
	}
	if !wd.Registered("scan") {
		t.Fatal("expected new incarnation registered with the watchdog")
	}
	if state, _ := sup.State("alert"); state != task.StateRunning {
		t.Fatalf("healthy alert worker should be untouched, got %s", state)
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := old.Wait(waitCtx); err != nil {
		t.Fatalf("old scan goroutine did not exit: %v", err)
	}
	if got := events.kinds(); len(got) != 1 || got[0] != journal.EventWorkerRestarted {
		t.Fatalf("expected restart event, got %v", got)
	}
	notes.mu.Lock()
	defer notes.mu.Unlock()
	if len(notes.events) != 1 || notes.events[0] != notifications.EventWorkerRestarted {
		t.Fatalf("expected restart notification, got %v", notes.events)
	}
}

func TestCheckRecreatesExitedWorker(t *testing.T) {
	var runs atomic.Int32
	exiting := func(ctx context.Context, beat *task.Beat) error {
		if runs.Add(1) == 1 {
			beat.Beat()
			return errors.New("radio gone")
		}
		return beating(ctx, beat)
	}
	sup := newSupervisor(t, supervisor.Options{StuckThreshold: time.Second},
		supervisor.Worker{Spec: task.Spec{Name: "scan", Priority: 5, Run: exiting}},
	)
	ctx := startSupervisor(t, sup)

	first := sup.Handle("scan")
	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := first.Wait(waitCtx); err != nil {
		t.Fatalf("first incarnation did not exit: %v", err)
	}

	restarts := sup.Check(ctx)
	if len(restarts) != 1 {
		t.Fatalf("expected exited worker to be recreated, got %+v", restarts)
	}
	if restarts[0].Reason != "worker exited: radio gone" {
		t.Fatalf("unexpected reason %q", restarts[0].Reason)
	}
	if state, _ := sup.State("scan"); state != task.StateRunning {
		t.Fatalf("expected recreated worker running, got %s", state)
	}
}

func TestHealthyWorkersAreLeftAlone(t *testing.T) {
	var calls atomic.Int32
	sup := newSupervisor(t, supervisor.Options{Memory: fakeMemory(&calls)},
		supervisor.Worker{Spec: task.Spec{Name: "scan", Run: beating}},
		supervisor.Worker{Spec: task.Spec{Name: "alert", Run: beating}},
	)
	ctx := startSupervisor(t, sup)

	for range 3 {
		time.Sleep(20 * time.Millisecond)
		if restarts := sup.Check(ctx); len(restarts) != 0 {
			t.Fatalf("unexpected restarts %+v", restarts)
		}
	}
	if calls.Load() != 3 {
		t.Fatalf("expected memory sampled each pass, got %d", calls.Load())
	}
	if sup.Memory().FreeBytes != 1<<20 {
		t.Fatalf("expected last memory sample stored, got %+v", sup.Memory())
	}
	for _, status := range sup.Snapshot() {
		if status.State != task.StateRunning || status.Restarts != 0 || status.Beats == 0 {
			t.Fatalf("unexpected status %+v", status)
		}
	}
}

func TestRestartGuardSuppressesAfterBudget(t *testing.T) {
	events := &eventLog{}
	sup := newSupervisor(t, supervisor.Options{
		MaxRestarts:   1,
		RestartWindow: time.Minute,
		Events:        events,
	}, supervisor.Worker{Spec: task.Spec{Name: "scan", Run: stalling}})
	ctx := startSupervisor(t, sup)

	time.Sleep(80 * time.Millisecond)
	first := sup.Check(ctx)
	if len(first) != 1 || first[0].Suppressed {
		t.Fatalf("expected first restart allowed, got %+v", first)
	}

	time.Sleep(80 * time.Millisecond)
	second := sup.Check(ctx)
	if len(second) != 1 || !second[0].Suppressed {
		t.Fatalf("expected second restart suppressed, got %+v", second)
	}
	stuck := sup.Handle("scan")

	time.Sleep(20 * time.Millisecond)
	if third := sup.Check(ctx); len(third) != 0 {
		t.Fatalf("expected suppression to be reported once, got %+v", third)
	}
	if sup.Handle("scan") != stuck {
		t.Fatal("suppressed worker must keep its handle")
	}

	got := events.kinds()
	if len(got) != 2 || got[0] != journal.EventWorkerRestarted || got[1] != journal.EventRestartSuppressed {
		t.Fatalf("unexpected events %v", got)
	}
	snap := sup.Snapshot()
	if !snap[0].Suppressed || snap[0].Restarts != 1 {
		t.Fatalf("unexpected snapshot %+v", snap[0])
	}
}

func TestRunLoopRecoversWithoutManualCheck(t *testing.T) {
	sup := newSupervisor(t, supervisor.Options{Period: 20 * time.Millisecond},
		supervisor.Worker{Spec: task.Spec{Name: "scan", Run: stalling}},
	)
	ctx := startSupervisor(t, sup)
	first := sup.Handle("scan")

	loop, err := task.Spawn(ctx, task.Spec{Name: "supervisor", Priority: 3, Run: sup.Run})
	if err != nil {
		t.Fatalf("Spawn supervisor: %v", err)
	}
	defer loop.Destroy()

	deadline := time.Now().Add(2 * time.Second)
	for sup.Handle("scan") == first && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sup.Handle("scan") == first {
		t.Fatal("expected supervisor loop to replace the stuck worker")
	}
}

func TestNewRejectsDuplicateWorkers(t *testing.T) {
	_, err := supervisor.New(logging.NewNop(), supervisor.Options{StuckThreshold: time.Second},
		supervisor.Worker{Spec: task.Spec{Name: "scan", Run: beating}},
		supervisor.Worker{Spec: task.Spec{Name: "scan", Run: beating}},
	)
	if err == nil {
		t.Fatal("expected duplicate worker error")
	}
}

func TestStopBeforeStart(t *testing.T) {
	sup := newSupervisor(t, supervisor.Options{}, supervisor.Worker{Spec: task.Spec{Name: "scan", Run: beating}})
	if err := sup.Stop(context.Background()); !errors.Is(err, supervisor.ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCheckLogsFreeMemoryAtInfo(t *testing.T) {
	var out lockedBuffer
	logger := slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo}))
	var calls atomic.Int32
	sup, err := supervisor.New(logger, supervisor.Options{
		StuckThreshold: time.Second,
		Memory:         fakeMemory(&calls),
	}, supervisor.Worker{Spec: task.Spec{Name: "scan", Run: beating}})
	if err != nil {
		t.Fatalf("supervisor.New: %v", err)
	}
	ctx := startSupervisor(t, sup)

	sup.Check(ctx)
	logged := out.String()
	for _, want := range []string{`"msg":"free memory"`, `"level":"INFO"`, `"free_bytes":1048576`} {
		if !strings.Contains(logged, want) {
			t.Fatalf("expected %s in log output %s", want, logged)
		}
	}
}
