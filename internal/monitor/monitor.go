package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"wifiguard/internal/alerting"
	"wifiguard/internal/alertq"
	"wifiguard/internal/allowlist"
	"wifiguard/internal/config"
	"wifiguard/internal/journal"
	"wifiguard/internal/logging"
	"wifiguard/internal/notifications"
	"wifiguard/internal/scanner"
	"wifiguard/internal/supervisor"
	"wifiguard/internal/task"
	"wifiguard/internal/telemetry"
	"wifiguard/internal/watchdog"
)

// ErrAlreadyRunning reports that another instance holds the lock.
var ErrAlreadyRunning = errors.New("another wifiguard instance is already running")

// Options customizes New.
type Options struct {
	// Source replaces the simulator.
	Source scanner.Source
	// Fatal runs after a watchdog expiry has been recorded, when escalation
	// is enabled.
	Fatal watchdog.FatalFunc
}

// Status represents monitor runtime information.
type Status struct {
	Running      bool                      `json:"running"`
	StartedAt    time.Time                 `json:"started_at"`
	Workers      []supervisor.WorkerStatus `json:"workers"`
	Queue        alertq.Stats              `json:"queue"`
	Scanner      scanner.Stats             `json:"scanner"`
	Alerts       alerting.Stats            `json:"alerts"`
	Watchdog     []watchdog.SlotStatus     `json:"watchdog"`
	Memory       telemetry.MemorySample    `json:"memory"`
	AllowList    int                       `json:"allowlist"`
	JournalPath  string                    `json:"journal_path,omitempty"`
	LockFilePath string                    `json:"lock_path"`
}

// Monitor owns every runtime component.
type Monitor struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *journal.Store
	notifier notifications.Service
	fatal    watchdog.FatalFunc

	list       *allowlist.List
	queue      *alertq.Queue
	watchdog   *watchdog.Watchdog
	scanner    *scanner.Scanner
	consumer   *alerting.Consumer
	supervisor *supervisor.Supervisor

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	cancel    context.CancelFunc
	supLoop   *task.Handle
	wdDone    chan struct{}
	startedAt time.Time
}

// New allocates the allow-list, queue, workers, watchdog, and supervisor.
// store may be nil to run without a journal.
func New(cfg *config.Config, logger *slog.Logger, store *journal.Store, notifier notifications.Service, opts Options) (*Monitor, error) {
	if cfg == nil {
		return nil, errors.New("monitor requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	m := &Monitor{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "monitor"),
		store:    store,
		notifier: notifier,
		fatal:    opts.Fatal,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}

	list, err := allowlist.New(cfg.AllowList.Networks, allowlist.WithLockTimeout(cfg.LockTimeout()))
	if err != nil {
		return nil, fmt.Errorf("allocate allow-list: %w", err)
	}
	m.list = list

	queue, err := alertq.New(cfg.Alerts.Capacity)
	if err != nil {
		return nil, fmt.Errorf("allocate alert queue: %w", err)
	}
	m.queue = queue

	source := opts.Source
	if source == nil {
		sim, err := scanner.NewSimulator(list.Entries(), scanner.SimulatorOptions{
			TrustedRatio:    cfg.Scan.TrustedRatio,
			UntrustedPrefix: cfg.Scan.UntrustedPrefix,
			UntrustedRange:  cfg.Scan.UntrustedRange,
			Seed:            cfg.Scan.Seed,
		})
		if err != nil {
			return nil, fmt.Errorf("allocate simulator: %w", err)
		}
		source = sim
	}

	overrides := cfg.Logging.WorkerLevels
	var events scanner.EventRecorder
	if store != nil {
		events = store
	}
	m.scanner = scanner.New(list, queue, source, logging.ForWorker(logger, config.WorkerScan, overrides), scanner.Options{
		Period:        cfg.ScanPeriod(),
		SendTimeout:   cfg.SendTimeout(),
		Events:        events,
		RecordTimeout: cfg.JournalWriteTimeout(),
	})

	alertLogger := logging.ForWorker(logger, config.WorkerAlert, overrides)
	reporters := []alerting.Reporter{alerting.NewLogReporter(alertLogger)}
	if store != nil && cfg.Alerts.Journal {
		reporters = append(reporters, alerting.NewJournalReporter(store))
	}
	if cfg.Notifications.NtfyTopic != "" && cfg.Notifications.Untrusted {
		reporters = append(reporters, alerting.NewNotifyReporter(notifier))
	}
	m.consumer = alerting.NewConsumer(queue, cfg.ReceiveTimeout(), cfg.DeliverTimeout(), alertLogger, reporters...)

	m.watchdog = watchdog.New(cfg.WatchdogTimeout(), cfg.Watchdog.Monitored, cfg.Watchdog.TriggerPanic, m.onWatchdogExpired, logger)

	watched := make(map[string]bool, len(cfg.Watchdog.Monitored))
	for _, name := range cfg.Watchdog.Monitored {
		watched[name] = true
	}
	supOpts := supervisor.Options{
		Period:         cfg.SupervisorPeriod(),
		StuckThreshold: cfg.StuckThreshold(),
		MaxRestarts:    cfg.Supervisor.MaxRestarts,
		RestartWindow:  cfg.RestartWindow(),
		Watchdog:       m.watchdog,
		Notifier:       notifier,
	}
	if store != nil {
		supOpts.Events = store
	}
	sup, err := supervisor.New(logging.ForWorker(logger, config.WorkerSupervisor, overrides), supOpts,
		supervisor.Worker{
			Spec:    task.Spec{Name: config.WorkerScan, Priority: cfg.Scan.Priority, Run: m.scanner.Run},
			Watched: watched[config.WorkerScan],
		},
		supervisor.Worker{
			Spec:    task.Spec{Name: config.WorkerAlert, Priority: cfg.Alerts.Priority, Run: m.consumer.Run},
			Watched: watched[config.WorkerAlert],
		},
	)
	if err != nil {
		return nil, fmt.Errorf("allocate supervisor: %w", err)
	}
	m.supervisor = sup
	return m, nil
}

// Start acquires the instance lock and launches the workers, the
// supervisor loop, and the watchdog monitor.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running.Load() {
		return errors.New("monitor already running")
	}

	if err := m.cfg.EnsureDirectories(); err != nil {
		return err
	}
	ok, err := m.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := m.supervisor.Start(runCtx); err != nil {
		cancel()
		_ = m.lock.Unlock()
		return fmt.Errorf("start workers: %w", err)
	}

	supLoop, err := task.Spawn(logging.WithWorker(runCtx, config.WorkerSupervisor, ""), task.Spec{
		Name:     config.WorkerSupervisor,
		Priority: m.cfg.Supervisor.Priority,
		Run:      m.supervisor.Run,
	})
	if err != nil {
		cancel()
		_ = m.lock.Unlock()
		return fmt.Errorf("start supervisor: %w", err)
	}

	wdDone := make(chan struct{})
	go func() {
		defer close(wdDone)
		m.watchdog.Run(runCtx)
	}()

	m.cancel = cancel
	m.supLoop = supLoop
	m.wdDone = wdDone
	m.startedAt = time.Now()
	m.running.Store(true)
	m.logger.Info("wifiguard monitor started",
		logging.String("lock", m.lockPath),
		logging.Int("allowlist", m.list.Len()),
		logging.Int("queue_capacity", m.queue.Cap()),
		logging.Duration("scan_period", m.cfg.ScanPeriod()),
		logging.Duration("watchdog_timeout", m.cfg.WatchdogTimeout()),
	)
	return nil
}

// Stop cancels every worker, waits briefly for them, and releases the lock.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running.Load() {
		return
	}

	m.supLoop.Destroy()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.supervisor.Stop(waitCtx); err != nil {
		m.logger.Warn("workers did not stop cleanly", logging.Error(err))
	}
	if err := m.supLoop.Wait(waitCtx); err != nil {
		m.logger.Warn("supervisor did not stop cleanly", logging.Error(err))
	}
	select {
	case <-m.wdDone:
	case <-waitCtx.Done():
	}

	if err := m.lock.Unlock(); err != nil {
		m.logger.Warn("failed to release monitor lock", logging.Error(err))
	}
	m.running.Store(false)
	m.logger.Info("wifiguard monitor stopped")
}

// Close stops the monitor. The journal is owned by the caller.
func (m *Monitor) Close() error {
	m.Stop()
	return nil
}

// Running reports whether Start has succeeded and Stop has not run.
func (m *Monitor) Running() bool { return m.running.Load() }

// Supervisor exposes the supervisor for diagnostics.
func (m *Monitor) Supervisor() *supervisor.Supervisor { return m.supervisor }

// AllowList exposes the allow-list for diagnostics.
func (m *Monitor) AllowList() *allowlist.List { return m.list }

// Status returns the current monitor status.
func (m *Monitor) Status() Status {
	status := Status{
		Running:      m.running.Load(),
		Workers:      m.supervisor.Snapshot(),
		Queue:        m.queue.Stats(),
		Scanner:      m.scanner.Stats(),
		Alerts:       m.consumer.Stats(),
		Watchdog:     m.watchdog.Status(),
		Memory:       m.supervisor.Memory(),
		AllowList:    m.list.Len(),
		LockFilePath: m.lockPath,
	}
	m.mu.Lock()
	status.StartedAt = m.startedAt
	m.mu.Unlock()
	if m.store != nil {
		status.JournalPath = m.store.Path()
	}
	return status
}

func (m *Monitor) onWatchdogExpired(worker string, silence time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if m.store != nil {
		if err := m.store.RecordEvent(ctx, journal.Event{
			Kind:   journal.EventWatchdogExpired,
			Worker: worker,
			Detail: fmt.Sprintf("silent for %s", silence.Round(time.Millisecond)),
		}); err != nil {
			m.logger.Warn("journal event write failed", logging.Error(err))
		}
	}
	if err := m.notifier.Publish(ctx, notifications.EventWatchdogExpired, notifications.Payload{
		"worker":  worker,
		"silence": silence.Round(time.Second).String(),
	}); err != nil {
		m.logger.Warn("notification failed", logging.Error(err))
	}
	if m.fatal != nil {
		m.fatal(worker, silence)
	}
}
