package task_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wifiguard/internal/task"
)

type fakeWatchdog struct {
	mu    sync.Mutex
	regs  []*fakeRegistration
	names []string
}

func (w *fakeWatchdog) Register(name string) task.Registration {
	w.mu.Lock()
	defer w.mu.Unlock()
	reg := &fakeRegistration{}
	w.regs = append(w.regs, reg)
	w.names = append(w.names, name)
	return reg
}

type fakeRegistration struct {
	mu           sync.Mutex
	resets       int
	unregistered int
}

func (r *fakeRegistration) Reset() {
	r.mu.Lock()
	r.resets++
	r.mu.Unlock()
}

func (r *fakeRegistration) Unregister() {
	r.mu.Lock()
	r.unregistered++
	r.mu.Unlock()
}

func (r *fakeRegistration) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resets, r.unregistered
}

func beatingWorker(interval time.Duration) task.Func {
	return func(ctx context.Context, beat *task.Beat) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			beat.Beat()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

func TestSpawnRunningWorker(t *testing.T) {
	wd := &fakeWatchdog{}
	h, err := task.Spawn(context.Background(), task.Spec{Name: "scan", Priority: 5, Run: beatingWorker(5 * time.Millisecond)}, task.WithWatchdog(wd))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	t.Cleanup(h.Destroy)

	time.Sleep(30 * time.Millisecond)
	if state := h.Liveness(200 * time.Millisecond); state != task.StateRunning {
		t.Fatalf("expected running, got %s", state)
	}
	if h.Beats() == 0 {
		t.Fatal("expected heartbeats")
	}
	if h.Name() != "scan" || h.Priority() != 5 || h.Generation() == "" {
		t.Fatalf("unexpected handle metadata: %s %d %q", h.Name(), h.Priority(), h.Generation())
	}
	if len(wd.names) != 1 || wd.names[0] != "scan" {
		t.Fatalf("expected watchdog registration for scan, got %v", wd.names)
	}
	if resets, _ := wd.regs[0].counts(); resets == 0 {
		t.Fatal("expected heartbeats to reset the watchdog")
	}
}

func TestSilentWorkerIsStuck(t *testing.T) {
	h, err := task.Spawn(context.Background(), task.Spec{Name: "alert", Run: func(ctx context.Context, beat *task.Beat) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	t.Cleanup(h.Destroy)

	time.Sleep(40 * time.Millisecond)
	if state := h.Liveness(20 * time.Millisecond); state != task.StateStuck {
		t.Fatalf("expected stuck, got %s", state)
	}
}

func TestWorkerExitIsStuck(t *testing.T) {
	h, err := task.Spawn(context.Background(), task.Spec{Name: "scan", Run: func(ctx context.Context, beat *task.Beat) error {
		beat.Beat()
		return errors.New("boom")
	}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if state := h.Liveness(time.Hour); state != task.StateStuck {
		t.Fatalf("expected exited worker to read as stuck, got %s", state)
	}
	if h.Err() == nil || h.Err().Error() != "boom" {
		t.Fatalf("unexpected exit error: %v", h.Err())
	}
}

func TestPanickingWorkerIsContained(t *testing.T) {
	h, err := task.Spawn(context.Background(), task.Spec{Name: "scan", Run: func(ctx context.Context, beat *task.Beat) error {
		panic("bad state")
	}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if h.Err() == nil {
		t.Fatal("expected panic to be recorded as exit error")
	}
}

func TestDestroyTerminatesHandle(t *testing.T) {
	wd := &fakeWatchdog{}
	h, err := task.Spawn(context.Background(), task.Spec{Name: "scan", Run: beatingWorker(time.Millisecond)}, task.WithWatchdog(wd))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	h.Destroy()
	h.Destroy()

	if state := h.Liveness(time.Hour); state != task.StateTerminated {
		t.Fatalf("expected terminated, got %s", state)
	}
	if !errors.Is(h.Err(), task.ErrDestroyed) {
		t.Fatalf("expected ErrDestroyed, got %v", h.Err())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.Wait(ctx); err != nil {
		t.Fatalf("worker did not exit after destroy: %v", err)
	}
	if _, unregistered := wd.regs[0].counts(); unregistered == 0 {
		t.Fatal("expected watchdog registration to be released")
	}
}

func TestSpawnRequiresEntryPoint(t *testing.T) {
	if _, err := task.Spawn(context.Background(), task.Spec{Name: "empty"}); err == nil {
		t.Fatal("expected error for missing entry point")
	}
}

func TestWithGenerationFixesID(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h, err := task.Spawn(ctx, task.Spec{Name: "alert", Run: beatingWorker(5 * time.Millisecond)}, task.WithGeneration("gen-1"))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Destroy()
	if h.Generation() != "gen-1" {
		t.Fatalf("expected fixed generation, got %q", h.Generation())
	}
}
