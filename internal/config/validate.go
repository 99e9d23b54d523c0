package config

import (
	"errors"
	"fmt"
	"time"
)

var knownWorkers = map[string]struct{}{
	WorkerScan:       {},
	WorkerAlert:      {},
	WorkerSupervisor: {},
}

var knownLevels = map[string]struct{}{
	"debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAllowList(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateAlerts(); err != nil {
		return err
	}
	if err := c.validateTiming(); err != nil {
		return err
	}
	if err := c.validateWatchdog(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateAllowList() error {
	if len(c.AllowList.Networks) == 0 {
		return errors.New("allowlist.networks must include at least one network")
	}
	return nil
}

func (c *Config) validateScan() error {
	if err := ensurePositiveMap(map[string]int{
		"scan.period_ms":       c.Scan.PeriodMs,
		"scan.lock_timeout_ms": c.Scan.LockTimeoutMs,
		"scan.send_timeout_ms": c.Scan.SendTimeoutMs,
		"scan.untrusted_range": c.Scan.UntrustedRange,
	}); err != nil {
		return err
	}
	if c.Scan.TrustedRatio < 0 || c.Scan.TrustedRatio > 1 {
		return errors.New("scan.trusted_ratio must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateAlerts() error {
	return ensurePositiveMap(map[string]int{
		"alerts.capacity":           c.Alerts.Capacity,
		"alerts.receive_timeout_ms": c.Alerts.ReceiveTimeoutMs,
	})
}

// validateTiming checks that a healthy worker can never look stuck: its
// heartbeat gap is bounded by its waits, its journal write bound and the
// scan period.
func (c *Config) validateTiming() error {
	if c.Supervisor.PeriodMs < 0 {
		return errors.New("supervisor.period_ms must be >= 0")
	}
	if c.Supervisor.StuckThresholdMs <= 0 {
		return errors.New("supervisor.stuck_threshold_ms must be positive")
	}
	scanGap := c.Scan.PeriodMs + c.Scan.LockTimeoutMs + c.Scan.SendTimeoutMs + int(c.JournalWriteTimeout()/time.Millisecond)
	if c.Supervisor.StuckThresholdMs <= scanGap {
		return fmt.Errorf("supervisor.stuck_threshold_ms (%d) must exceed the scan iteration bound (%d)", c.Supervisor.StuckThresholdMs, scanGap)
	}
	if c.Supervisor.StuckThresholdMs <= c.Alerts.ReceiveTimeoutMs {
		return errors.New("supervisor.stuck_threshold_ms must exceed alerts.receive_timeout_ms")
	}
	if c.Supervisor.MaxRestarts < 0 {
		return errors.New("supervisor.max_restarts must be >= 0")
	}
	if c.Supervisor.MaxRestarts > 0 && c.Supervisor.RestartWindowSeconds <= 0 {
		return errors.New("supervisor.restart_window_seconds must be positive when supervisor.max_restarts is set")
	}
	return nil
}

func (c *Config) validateWatchdog() error {
	if c.Watchdog.TimeoutSeconds <= 0 {
		return errors.New("watchdog.timeout_seconds must be positive")
	}
	if c.WatchdogTimeout() <= c.StuckThreshold()+c.SupervisorPeriod() {
		return fmt.Errorf("watchdog.timeout_seconds (%s) must exceed supervisor.stuck_threshold_ms plus the supervisor period (%s)",
			c.WatchdogTimeout(), c.StuckThreshold()+c.SupervisorPeriod())
	}
	for _, name := range c.Watchdog.Monitored {
		if _, ok := knownWorkers[name]; !ok || name == WorkerSupervisor {
			return fmt.Errorf("watchdog.monitored: unknown worker %q", name)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("logging.color: unsupported value %q", c.Logging.Color)
	}
	if _, ok := knownLevels[c.Logging.Level]; !ok {
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	for worker, level := range c.Logging.WorkerLevels {
		if _, ok := knownWorkers[worker]; !ok {
			return fmt.Errorf("logging.worker_levels: unknown worker %q", worker)
		}
		if _, ok := knownLevels[level]; !ok {
			return fmt.Errorf("logging.worker_levels.%s: unsupported level %q", worker, level)
		}
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
