package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"wifiguard/internal/journal"
	"wifiguard/internal/logging"
	"wifiguard/internal/notifications"
	"wifiguard/internal/task"
	"wifiguard/internal/telemetry"
)

// ErrNotStarted is returned by operations that need Start to have run.
var ErrNotStarted = errors.New("supervisor not started")

// Worker is a supervised worker definition.
type Worker struct {
	Spec task.Spec
	// Watched registers every incarnation with the watchdog.
	Watched bool
}

// EventRecorder persists supervisor events. journal.Store satisfies it.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event journal.Event) error
}

// Options tunes the supervisor.
type Options struct {
	Period         time.Duration
	StuckThreshold time.Duration
	// MaxRestarts of 0 disables the restart guard.
	MaxRestarts   int
	RestartWindow time.Duration

	Watchdog task.Watchdog
	Events   EventRecorder
	Notifier notifications.Service
	// Memory samples memory each period; nil uses telemetry.FreeMemory.
	Memory func() (telemetry.MemorySample, error)
}

// WorkerStatus is a point-in-time view of one supervised worker.
type WorkerStatus struct {
	Name       string
	Priority   int
	Generation string
	State      task.State
	StartedAt  time.Time
	LastBeat   time.Time
	Beats      uint64
	Restarts   int
	Suppressed bool
}

// Restart records one recovery decision made by Check.
type Restart struct {
	Worker        string
	OldGeneration string
	NewGeneration string
	Reason        string
	Suppressed    bool

	recent int
}

type slot struct {
	worker     Worker
	handle     *task.Handle
	recent     []time.Time
	total      int
	suppressed bool
}

// Supervisor owns the worker handles.
type Supervisor struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	parent context.Context
	order  []string
	slots  map[string]*slot
	memory telemetry.MemorySample
}

// New validates the worker set. Names must be unique. The logger should
// already carry the supervisor component; see logging.ForWorker.
func New(logger *slog.Logger, opts Options, workers ...Worker) (*Supervisor, error) {
	if opts.StuckThreshold <= 0 {
		return nil, errors.New("stuck threshold must be positive")
	}
	if opts.Memory == nil {
		opts.Memory = telemetry.FreeMemory
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Supervisor{
		opts:   opts,
		logger: logger,
		now:    time.Now,
		slots:  make(map[string]*slot, len(workers)),
	}
	for _, w := range workers {
		if w.Spec.Name == "" || w.Spec.Run == nil {
			return nil, fmt.Errorf("worker %q needs a name and entry point", w.Spec.Name)
		}
		if _, dup := s.slots[w.Spec.Name]; dup {
			return nil, fmt.Errorf("duplicate worker %q", w.Spec.Name)
		}
		s.slots[w.Spec.Name] = &slot{worker: w}
		s.order = append(s.order, w.Spec.Name)
	}
	return s, nil
}

// Start spawns every worker under ctx. Recreated workers also derive from
// ctx, so cancelling it stops every incarnation.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parent != nil {
		return errors.New("supervisor already started")
	}
	s.parent = ctx
	for _, name := range s.order {
		sl := s.slots[name]
		handle, err := s.spawnLocked(sl.worker)
		if err != nil {
			for _, started := range s.order {
				s.slots[started].handle.Destroy()
			}
			return err
		}
		sl.handle = handle
		s.logger.Info("worker started",
			logging.String(logging.FieldWorker, name),
			logging.String(logging.FieldGeneration, handle.Generation()),
			logging.Int("priority", sl.worker.Spec.Priority),
		)
	}
	return nil
}

func (s *Supervisor) spawnLocked(w Worker) (*task.Handle, error) {
	generation := uuid.NewString()
	ctx := logging.WithWorker(s.parent, w.Spec.Name, generation)
	opts := []task.Option{task.WithGeneration(generation)}
	if w.Watched && s.opts.Watchdog != nil {
		opts = append(opts, task.WithWatchdog(s.opts.Watchdog))
	}
	handle, err := task.Spawn(ctx, w.Spec, opts...)
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", w.Spec.Name, err)
	}
	return handle, nil
}

// Run is the supervisor's own worker entry point: beat, check, sleep.
func (s *Supervisor) Run(ctx context.Context, beat *task.Beat) error {
	period := s.opts.Period
	if period <= 0 {
		period = 5 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		beat.Beat()
		s.Check(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Check runs one supervision pass and returns the recovery decisions made.
// Journal writes and notifications happen after the handle lock is released.
func (s *Supervisor) Check(ctx context.Context) []Restart {
	s.sampleMemory()

	s.mu.Lock()
	if s.parent == nil {
		s.mu.Unlock()
		return nil
	}
	var restarts []Restart
	for _, name := range s.order {
		sl := s.slots[name]
		if sl.handle == nil || sl.handle.Liveness(s.opts.StuckThreshold) != task.StateStuck {
			continue
		}
		if restart, ok := s.recoverLocked(sl); ok {
			restarts = append(restarts, restart)
		}
	}
	s.mu.Unlock()

	for _, restart := range restarts {
		s.publish(ctx, restart)
	}
	return restarts
}

func (s *Supervisor) recoverLocked(sl *slot) (Restart, bool) {
	old := sl.handle
	name := sl.worker.Spec.Name
	reason := stuckReason(old, s.now())
	logger := s.logger.With(
		logging.String(logging.FieldWorker, name),
		logging.String(logging.FieldGeneration, old.Generation()),
	)

	if s.guardExhausted(sl) {
		if sl.suppressed {
			return Restart{}, false
		}
		sl.suppressed = true
		logging.ErrorWithContext(logger, "restart suppressed", string(journal.EventRestartSuppressed),
			logging.String("reason", reason),
			logging.Int("max_restarts", s.opts.MaxRestarts),
			logging.Duration("window", s.opts.RestartWindow),
			logging.String(logging.FieldErrorHint, "worker keeps getting stuck; inspect its logs"),
			logging.Alert("restart_suppressed"),
		)
		return Restart{
			Worker:        name,
			OldGeneration: old.Generation(),
			Reason:        reason,
			Suppressed:    true,
			recent:        len(sl.recent),
		}, true
	}

	old.Destroy()
	fresh, err := s.spawnLocked(sl.worker)
	if err != nil {
		logging.ErrorWithContext(logger, "worker recreation failed", "worker_recreate_failed",
			logging.Error(err),
		)
		return Restart{}, false
	}
	sl.handle = fresh
	sl.total++
	sl.recent = append(sl.recent, s.now())
	sl.suppressed = false

	logging.WarnWithContext(logger, "worker restarted", string(journal.EventWorkerRestarted),
		logging.String("reason", reason),
		logging.String("new_generation", fresh.Generation()),
		logging.Int("restarts", sl.total),
		logging.String(logging.FieldImpact, "in-flight work of the old incarnation was discarded"),
	)
	return Restart{
		Worker:        name,
		OldGeneration: old.Generation(),
		NewGeneration: fresh.Generation(),
		Reason:        reason,
	}, true
}

func (s *Supervisor) publish(ctx context.Context, r Restart) {
	logger := s.logger.With(logging.String(logging.FieldWorker, r.Worker))
	if r.Suppressed {
		s.record(ctx, logger, journal.Event{
			Kind:   journal.EventRestartSuppressed,
			Worker: r.Worker,
			Detail: fmt.Sprintf("%d restarts within %s", r.recent, s.opts.RestartWindow),
		})
		s.notify(ctx, logger, notifications.EventRestartSuppressed, notifications.Payload{
			"worker":   r.Worker,
			"restarts": r.recent,
			"window":   s.opts.RestartWindow.String(),
		})
		return
	}
	s.record(ctx, logger, journal.Event{
		Kind:   journal.EventWorkerRestarted,
		Worker: r.Worker,
		Detail: r.Reason,
	})
	s.notify(ctx, logger, notifications.EventWorkerRestarted, notifications.Payload{
		"worker": r.Worker,
		"reason": r.Reason,
	})
}

// guardExhausted prunes the sliding window and reports whether another
// restart would exceed the budget.
func (s *Supervisor) guardExhausted(sl *slot) bool {
	if s.opts.MaxRestarts <= 0 {
		return false
	}
	cutoff := s.now().Add(-s.opts.RestartWindow)
	kept := sl.recent[:0]
	for _, at := range sl.recent {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	sl.recent = kept
	return len(sl.recent) >= s.opts.MaxRestarts
}

func stuckReason(h *task.Handle, now time.Time) string {
	select {
	case <-h.Done():
		if err := h.Err(); err != nil {
			return "worker exited: " + err.Error()
		}
		return "worker exited"
	default:
	}
	return fmt.Sprintf("no heartbeat for %s", now.Sub(h.LastBeat()).Round(time.Millisecond))
}

func (s *Supervisor) sampleMemory() {
	sample, err := s.opts.Memory()
	if err != nil {
		s.logger.Warn("memory sample failed", logging.Error(err))
		return
	}
	s.mu.Lock()
	s.memory = sample
	s.mu.Unlock()
	s.logger.Info("free memory",
		logging.String("free", telemetry.FormatBytes(sample.FreeBytes)),
		logging.Uint64("free_bytes", sample.FreeBytes),
		logging.Uint64("heap_alloc", sample.HeapAlloc),
		logging.Int("goroutines", sample.Goroutines),
		logging.String("source", sample.Source),
	)
}

func (s *Supervisor) record(ctx context.Context, logger *slog.Logger, event journal.Event) {
	if s.opts.Events == nil {
		return
	}
	if err := s.opts.Events.RecordEvent(ctx, event); err != nil && ctx.Err() == nil {
		logger.Warn("journal event write failed",
			logging.String(logging.FieldEventType, string(event.Kind)),
			logging.Error(err),
		)
	}
}

func (s *Supervisor) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if s.opts.Notifier == nil {
		return
	}
	if err := s.opts.Notifier.Publish(ctx, event, payload); err != nil && ctx.Err() == nil {
		logger.Warn("notification failed",
			logging.String(logging.FieldEventType, string(event)),
			logging.Error(err),
		)
	}
}

// State returns the liveness of the named worker's current handle.
func (s *Supervisor) State(name string) (task.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[name]
	if !ok || sl.handle == nil {
		return "", false
	}
	return sl.handle.Liveness(s.opts.StuckThreshold), true
}

// Handle returns the named worker's current handle.
func (s *Supervisor) Handle(name string) *task.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[name]; ok {
		return sl.handle
	}
	return nil
}

// Snapshot returns the status of every worker in registration order.
func (s *Supervisor) Snapshot() []WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WorkerStatus, 0, len(s.order))
	for _, name := range s.order {
		sl := s.slots[name]
		status := WorkerStatus{
			Name:       name,
			Priority:   sl.worker.Spec.Priority,
			Restarts:   sl.total,
			Suppressed: sl.suppressed,
		}
		if h := sl.handle; h != nil {
			status.Generation = h.Generation()
			status.State = h.Liveness(s.opts.StuckThreshold)
			status.StartedAt = h.StartedAt()
			status.LastBeat = h.LastBeat()
			status.Beats = h.Beats()
		}
		out = append(out, status)
	}
	return out
}

// Memory returns the last memory sample.
func (s *Supervisor) Memory() telemetry.MemorySample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memory
}

// Stop destroys every worker and waits for the goroutines to return or ctx
// to end.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.parent == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	handles := make([]*task.Handle, 0, len(s.order))
	for _, name := range s.order {
		if h := s.slots[name].handle; h != nil {
			h.Destroy()
			handles = append(handles, h)
		}
	}
	s.mu.Unlock()

	for _, h := range handles {
		if err := h.Wait(ctx); err != nil {
			return fmt.Errorf("wait for %s: %w", h.Name(), err)
		}
	}
	return nil
}
