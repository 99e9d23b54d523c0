package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"wifiguard/internal/config"
	"wifiguard/internal/journal"
	"wifiguard/internal/logging"
	"wifiguard/internal/monitor"
	"wifiguard/internal/notifications"
	"wifiguard/internal/preflight"
	"wifiguard/internal/scanner"
	"wifiguard/internal/watchdog"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Source replaces the simulated scanner source. Tests use it.
	Source scanner.Source
	// Console receives console log output. Defaults to stdout.
	Console string
}

// Run starts the wifiguard monitor and blocks until a signal arrives, the
// parent context ends, or the watchdog escalates. A watchdog escalation is
// returned as an error wrapping watchdog.ErrWatchdogExpired so the process
// exits non-zero.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	runCtx, abort := context.WithCancelCause(signalCtx)
	defer abort(nil)

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("wifiguard-%s.log", runID))
	logger, err := newRunLogger(cfg, opts, runID, logPath)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update wifiguard.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "wifiguard-*.log", Exclude: []string{logPath}},
	)

	for _, result := range preflight.RunAll(runCtx, cfg) {
		if result.Passed {
			logger.Debug("preflight passed", logging.String("check", result.Name), logging.String("detail", result.Detail))
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run wifiguard check for a full report"),
		)
	}

	store, err := journal.Open(cfg)
	if err != nil {
		logger.Error("open journal", logging.Error(err))
		return err
	}
	defer store.Close()
	pruneJournal(runCtx, logger, store, cfg.Logging.RetentionDays)

	notifier := notifications.NewService(cfg)
	mon, err := monitor.New(cfg, logger, store, notifier, monitor.Options{
		Source: opts.Source,
		Fatal: func(worker string, silence time.Duration) {
			abort(fmt.Errorf("%w: %s silent for %s", watchdog.ErrWatchdogExpired, worker, silence.Round(time.Millisecond)))
		},
	})
	if err != nil {
		logging.ErrorWithContext(logger, "monitor allocation failed", "allocation_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "wifiguard cannot start"),
		)
		return fmt.Errorf("create monitor: %w", err)
	}
	if err := mon.Start(runCtx); err != nil {
		return err
	}
	defer mon.Close()

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	statusPath := cfg.StatusPath()
	defer os.Remove(statusPath)
	writer := &statusWriter{path: statusPath, runID: runID, logPath: logPath, monitor: mon, logger: logger}
	writer.write()
	ticker := time.NewTicker(cfg.SupervisorPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			cause := context.Cause(runCtx)
			if errors.Is(cause, watchdog.ErrWatchdogExpired) {
				logging.ErrorWithContext(logger, "watchdog expired, shutting down", "watchdog_shutdown",
					logging.Error(cause),
					logging.String(logging.FieldErrorHint, "inspect wifiguard events --kind watchdog_expired"),
				)
				return cause
			}
			logger.Info("wifiguard shutting down")
			return nil
		case <-ticker.C:
			writer.write()
		}
	}
}

func newRunLogger(cfg *config.Config, opts Options, runID, logPath string) (*slog.Logger, error) {
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	handlerLevel := logging.MostVerbose(level, cfg.Logging.WorkerLevels)
	console := opts.Console
	if console == "" {
		console = "stdout"
	}

	consoleLogger, err := logging.New(logging.Options{
		Level:       handlerLevel,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{console},
		Development: opts.Development,
		Color:       cfg.Logging.Color,
	})
	if err != nil {
		return nil, err
	}
	fileHandler, err := logging.NewHandler(logging.Options{
		Level:       handlerLevel,
		Format:      "json",
		OutputPaths: []string{logPath},
		Development: opts.Development,
		RunID:       runID,
	})
	if err != nil {
		return nil, err
	}
	logger := logging.TeeLogger(consoleLogger, fileHandler)
	return logging.WithLevelOverride(logger, logging.ParseLevel(level)), nil
}

func pruneJournal(ctx context.Context, logger *slog.Logger, store *journal.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	removed, err := store.Prune(ctx, time.Now().AddDate(0, 0, -retentionDays))
	if err != nil {
		logger.Warn("journal prune failed", logging.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("journal pruned", logging.Int64("removed", removed), logging.Int("retention_days", retentionDays))
	}
}

type statusWriter struct {
	path    string
	runID   string
	logPath string
	monitor *monitor.Monitor
	logger  *slog.Logger
	failed  bool
}

func (w *statusWriter) write() {
	err := monitor.WriteSnapshot(w.path, monitor.Snapshot{
		PID:       os.Getpid(),
		RunID:     w.runID,
		LogPath:   w.logPath,
		WrittenAt: time.Now(),
		Status:    w.monitor.Status(),
	})
	switch {
	case err != nil && !w.failed:
		w.failed = true
		w.logger.Warn("status snapshot write failed", logging.Error(err), logging.String("path", w.path))
	case err == nil:
		w.failed = false
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "wifiguard.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
