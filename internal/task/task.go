package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the observable liveness of a worker incarnation.
type State string

const (
	StateRunning    State = "running"
	StateStuck      State = "stuck"
	StateTerminated State = "terminated"
)

// ErrDestroyed is the exit error recorded for a destroyed worker.
var ErrDestroyed = errors.New("worker destroyed")

// Func is a worker entry point. It must call beat.Beat at least once per
// iteration and return when ctx is cancelled.
type Func func(ctx context.Context, beat *Beat) error

// Spec describes how to (re)create a worker.
type Spec struct {
	Name     string
	Priority int
	Run      Func
}

// Watchdog is the external liveness facility a worker registers with.
type Watchdog interface {
	Register(name string) Registration
}

// Registration is one worker's slot in the Watchdog.
type Registration interface {
	Reset()
	Unregister()
}

// Beat is handed to the worker so it can signal progress.
type Beat struct {
	handle *Handle
	reg    Registration
}

// Beat records a heartbeat and resets the worker's watchdog slot.
func (b *Beat) Beat() {
	if b == nil || b.handle == nil {
		return
	}
	b.handle.lastBeat.Store(time.Now().UnixNano())
	b.handle.beats.Add(1)
	if b.reg != nil {
		b.reg.Reset()
	}
}

// Handle is an opaque reference to one running worker incarnation.
type Handle struct {
	spec       Spec
	generation string
	startedAt  time.Time

	cancel context.CancelFunc
	done   chan struct{}
	reg    Registration

	lastBeat  atomic.Int64
	beats     atomic.Uint64
	destroyed atomic.Bool

	mu      sync.Mutex
	exitErr error
}

// Option customizes Spawn.
type Option func(*spawnOptions)

type spawnOptions struct {
	watchdog   Watchdog
	generation string
}

// WithWatchdog registers the worker with wd for the life of the handle.
func WithWatchdog(wd Watchdog) Option {
	return func(o *spawnOptions) {
		o.watchdog = wd
	}
}

// WithGeneration fixes the incarnation ID instead of generating one, so the
// caller can tag the worker context before it starts.
func WithGeneration(id string) Option {
	return func(o *spawnOptions) {
		o.generation = id
	}
}

// Spawn starts spec.Run in its own goroutine.
func Spawn(parent context.Context, spec Spec, opts ...Option) (*Handle, error) {
	if spec.Run == nil {
		return nil, fmt.Errorf("worker %q has no entry point", spec.Name)
	}
	options := spawnOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if options.generation == "" {
		options.generation = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		spec:       spec,
		generation: options.generation,
		startedAt:  time.Now(),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.lastBeat.Store(h.startedAt.UnixNano())
	if options.watchdog != nil {
		h.reg = options.watchdog.Register(spec.Name)
	}

	go h.run(ctx)
	return h, nil
}

func (h *Handle) run(ctx context.Context) {
	defer close(h.done)
	defer func() {
		if h.reg != nil {
			h.reg.Unregister()
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			h.setExit(fmt.Errorf("worker %s panicked: %v\n%s", h.spec.Name, r, debug.Stack()))
		}
	}()

	err := h.spec.Run(ctx, &Beat{handle: h, reg: h.reg})
	if err == nil && ctx.Err() == nil {
		err = errors.New("worker returned without cancellation")
	}
	h.setExit(err)
}

func (h *Handle) setExit(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exitErr == nil {
		h.exitErr = err
	}
}

// Destroy cancels the worker and invalidates the handle without waiting for
// the goroutine to reach a safe point. It is idempotent.
func (h *Handle) Destroy() {
	if h == nil || !h.destroyed.CompareAndSwap(false, true) {
		return
	}
	h.setExit(ErrDestroyed)
	h.cancel()
	if h.reg != nil {
		h.reg.Unregister()
	}
}

// Liveness reports the handle state. A handle that was destroyed is
// terminated. A worker whose last heartbeat is older than threshold, or
// whose goroutine exited on its own, is stuck.
func (h *Handle) Liveness(threshold time.Duration) State {
	if h == nil || h.destroyed.Load() {
		return StateTerminated
	}
	select {
	case <-h.done:
		return StateStuck
	default:
	}
	if threshold > 0 && time.Since(h.LastBeat()) > threshold {
		return StateStuck
	}
	return StateRunning
}

// Wait blocks until the worker goroutine has returned or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the worker goroutine has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Name returns the worker name.
func (h *Handle) Name() string { return h.spec.Name }

// Priority returns the worker priority recorded at spawn.
func (h *Handle) Priority() int { return h.spec.Priority }

// Spec returns the spec the worker was spawned from.
func (h *Handle) Spec() Spec { return h.spec }

// Generation returns the unique ID of this incarnation.
func (h *Handle) Generation() string { return h.generation }

// StartedAt returns when this incarnation was spawned.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// LastBeat returns the most recent heartbeat, or the spawn time if the
// worker has not beaten yet.
func (h *Handle) LastBeat() time.Time {
	return time.Unix(0, h.lastBeat.Load())
}

// Beats returns how many heartbeats this incarnation has recorded.
func (h *Handle) Beats() uint64 { return h.beats.Load() }

// Err returns why the worker exited, or nil while it is still running.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}
