package watchdog

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"wifiguard/internal/logging"
	"wifiguard/internal/task"
)

// ErrWatchdogExpired is the cause recorded when a monitored worker stays
// silent past the timeout and escalation is enabled.
var ErrWatchdogExpired = errors.New("watchdog expired")

// FatalFunc is invoked once per expired registration when escalation is
// enabled. The daemon uses it to cancel the run with ErrWatchdogExpired.
type FatalFunc func(worker string, silence time.Duration)

// SlotStatus is a point-in-time view of one registration.
type SlotStatus struct {
	Worker    string
	LastReset time.Time
	Silence   time.Duration
	Expired   bool
}

// Watchdog tracks registrations and escalates the silent ones.
type Watchdog struct {
	timeout      time.Duration
	monitored    map[string]struct{}
	triggerPanic bool
	fatal        FatalFunc
	logger       *slog.Logger
	now          func() time.Time

	mu    sync.Mutex
	slots map[string]*Registration
}

// New constructs a watchdog. A nil fatal with triggerPanic set only logs.
func New(timeout time.Duration, monitored []string, triggerPanic bool, fatal FatalFunc, logger *slog.Logger) *Watchdog {
	names := make(map[string]struct{}, len(monitored))
	for _, name := range monitored {
		names[name] = struct{}{}
	}
	return &Watchdog{
		timeout:      timeout,
		monitored:    names,
		triggerPanic: triggerPanic,
		fatal:        fatal,
		logger:       logging.NewComponentLogger(logger, "watchdog"),
		now:          time.Now,
		slots:        make(map[string]*Registration),
	}
}

// Timeout returns the silence bound.
func (w *Watchdog) Timeout() time.Duration { return w.timeout }

// Register adds a slot for worker, replacing any previous slot with the
// same name. The replaced registration becomes inert.
func (w *Watchdog) Register(worker string) task.Registration {
	if w == nil {
		return inert{}
	}
	if _, ok := w.monitored[worker]; !ok {
		return inert{}
	}
	reg := &Registration{wd: w, worker: worker}
	reg.lastReset.Store(w.now().UnixNano())
	reg.active.Store(true)

	w.mu.Lock()
	if prev, ok := w.slots[worker]; ok {
		prev.active.Store(false)
	}
	w.slots[worker] = reg
	w.mu.Unlock()

	w.logger.Debug("watchdog registration added", logging.String(logging.FieldWorker, worker))
	return reg
}

// Registered reports whether worker currently holds a live slot.
func (w *Watchdog) Registered(worker string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.slots[worker]
	return ok
}

// Run checks registrations every timeout/4 until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	interval := w.timeout / 4
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check escalates every registration silent for longer than the timeout
// and returns the names it escalated. A registration escalates at most once.
func (w *Watchdog) Check() []string {
	now := w.now()
	type expiry struct {
		worker  string
		silence time.Duration
	}
	var expired []expiry

	w.mu.Lock()
	for name, reg := range w.slots {
		silence := now.Sub(reg.LastReset())
		if silence <= w.timeout {
			continue
		}
		if !reg.expired.CompareAndSwap(false, true) {
			continue
		}
		expired = append(expired, expiry{worker: name, silence: silence})
	}
	w.mu.Unlock()

	sort.Slice(expired, func(i, j int) bool { return expired[i].worker < expired[j].worker })
	names := make([]string, 0, len(expired))
	for _, e := range expired {
		names = append(names, e.worker)
		logging.ErrorWithContext(w.logger, "watchdog expired", "watchdog_expired",
			logging.String(logging.FieldWorker, e.worker),
			logging.Duration("silence", e.silence),
			logging.Duration("timeout", w.timeout),
			logging.Bool("escalate", w.triggerPanic),
			logging.String(logging.FieldErrorHint, "worker stopped resetting its watchdog; supervisor recovery did not catch it"),
			logging.Alert("watchdog"),
		)
		if w.triggerPanic && w.fatal != nil {
			w.fatal(e.worker, e.silence)
		}
	}
	return names
}

// Status returns a snapshot of all live registrations ordered by name.
func (w *Watchdog) Status() []SlotStatus {
	now := w.now()
	w.mu.Lock()
	out := make([]SlotStatus, 0, len(w.slots))
	for name, reg := range w.slots {
		last := reg.LastReset()
		out = append(out, SlotStatus{
			Worker:    name,
			LastReset: last,
			Silence:   now.Sub(last),
			Expired:   reg.expired.Load(),
		})
	}
	w.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Worker < out[j].Worker })
	return out
}

func (w *Watchdog) remove(reg *Registration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if current, ok := w.slots[reg.worker]; ok && current == reg {
		delete(w.slots, reg.worker)
		w.logger.Debug("watchdog registration removed", logging.String(logging.FieldWorker, reg.worker))
	}
}

// Registration is one worker's slot. Reset and Unregister on a replaced or
// removed registration are no-ops.
type Registration struct {
	wd        *Watchdog
	worker    string
	lastReset atomic.Int64
	active    atomic.Bool
	expired   atomic.Bool
}

// Reset marks the worker as alive.
func (r *Registration) Reset() {
	if r == nil || !r.active.Load() {
		return
	}
	r.lastReset.Store(r.wd.now().UnixNano())
}

// Unregister removes the slot. It is idempotent.
func (r *Registration) Unregister() {
	if r == nil || !r.active.CompareAndSwap(true, false) {
		return
	}
	r.wd.remove(r)
}

// LastReset returns when the worker last reset the slot.
func (r *Registration) LastReset() time.Time {
	return time.Unix(0, r.lastReset.Load())
}

type inert struct{}

func (inert) Reset()      {}
func (inert) Unregister() {}
