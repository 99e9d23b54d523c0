package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"

	"wifiguard/internal/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestWatchdog(t *testing.T, triggerPanic bool, fatal FatalFunc) (*Watchdog, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	wd := New(10*time.Second, []string{"scan", "alert"}, triggerPanic, fatal, logging.NewNop())
	wd.now = clock.Now
	return wd, clock
}

func TestCheckEscalatesSilentRegistration(t *testing.T) {
	var mu sync.Mutex
	var fired []string
	wd, clock := newTestWatchdog(t, true, func(worker string, silence time.Duration) {
		mu.Lock()
		fired = append(fired, worker)
		mu.Unlock()
		if silence <= 10*time.Second {
			t.Errorf("expected silence beyond timeout, got %s", silence)
		}
	})

	wd.Register("scan")
	alert := wd.Register("alert")

	clock.Advance(6 * time.Second)
	alert.Reset()
	clock.Advance(5 * time.Second)

	got := wd.Check()
	if len(got) != 1 || got[0] != "scan" {
		t.Fatalf("expected only scan to expire, got %v", got)
	}
	if len(wd.Check()) != 0 {
		t.Fatal("expected a registration to escalate only once")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != "scan" {
		t.Fatalf("expected fatal for scan, got %v", fired)
	}
}

func TestCheckWithoutEscalationOnlyReports(t *testing.T) {
	called := false
	wd, clock := newTestWatchdog(t, false, func(string, time.Duration) { called = true })
	wd.Register("scan")
	clock.Advance(11 * time.Second)

	if got := wd.Check(); len(got) != 1 {
		t.Fatalf("expected expiry to be reported, got %v", got)
	}
	if called {
		t.Fatal("fatal must not run when trigger_panic is disabled")
	}
	status := wd.Status()
	if len(status) != 1 || !status[0].Expired {
		t.Fatalf("expected expired status, got %+v", status)
	}
}

func TestResetKeepsRegistrationAlive(t *testing.T) {
	wd, clock := newTestWatchdog(t, true, func(worker string, _ time.Duration) {
		t.Fatalf("unexpected escalation for %s", worker)
	})
	reg := wd.Register("alert")
	for range 5 {
		clock.Advance(4 * time.Second)
		reg.Reset()
		if got := wd.Check(); len(got) != 0 {
			t.Fatalf("unexpected expiry %v", got)
		}
	}
}

func TestUnregisterRemovesSlot(t *testing.T) {
	wd, clock := newTestWatchdog(t, true, nil)
	reg := wd.Register("scan")
	reg.Unregister()
	reg.Unregister()
	reg.Reset()

	if wd.Registered("scan") {
		t.Fatal("expected slot removed")
	}
	clock.Advance(time.Minute)
	if got := wd.Check(); len(got) != 0 {
		t.Fatalf("unregistered worker must not expire, got %v", got)
	}
}

func TestRegisterReplacesPreviousSlot(t *testing.T) {
	wd, clock := newTestWatchdog(t, false, nil)
	old := wd.Register("scan")
	clock.Advance(8 * time.Second)
	fresh := wd.Register("scan")

	old.Unregister()
	if !wd.Registered("scan") {
		t.Fatal("stale Unregister must not remove the replacement slot")
	}
	clock.Advance(5 * time.Second)
	if got := wd.Check(); len(got) != 0 {
		t.Fatalf("replacement slot expired early: %v", got)
	}
	fresh.Unregister()
	if wd.Registered("scan") {
		t.Fatal("expected replacement slot removed")
	}
}

func TestRegisterIgnoresUnmonitoredWorkers(t *testing.T) {
	wd, clock := newTestWatchdog(t, true, func(worker string, _ time.Duration) {
		t.Fatalf("unexpected escalation for %s", worker)
	})
	reg := wd.Register("supervisor")
	reg.Reset()
	clock.Advance(time.Minute)
	if wd.Registered("supervisor") {
		t.Fatal("unmonitored worker must not hold a slot")
	}
	if got := wd.Check(); len(got) != 0 {
		t.Fatalf("unexpected expiry %v", got)
	}
	reg.Unregister()
}

func TestRunStopsOnCancel(t *testing.T) {
	wd := New(40*time.Millisecond, []string{"scan"}, false, nil, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		wd.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunDetectsExpiry(t *testing.T) {
	fired := make(chan string, 1)
	wd := New(40*time.Millisecond, []string{"scan"}, true, func(worker string, _ time.Duration) {
		select {
		case fired <- worker:
		default:
		}
	}, logging.NewNop())
	wd.Register("scan")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wd.Run(ctx)

	select {
	case worker := <-fired:
		if worker != "scan" {
			t.Fatalf("unexpected worker %q", worker)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected watchdog to escalate silent worker")
	}
}
