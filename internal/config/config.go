package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// AllowList holds the trusted network names. It is read once at startup.
type AllowList struct {
	Networks []string `toml:"networks"`
}

// Scan configures the producer loop and the network simulator.
type Scan struct {
	PeriodMs        int     `toml:"period_ms"`
	LockTimeoutMs   int     `toml:"lock_timeout_ms"`
	SendTimeoutMs   int     `toml:"send_timeout_ms"`
	TrustedRatio    float64 `toml:"trusted_ratio"`
	UntrustedPrefix string  `toml:"untrusted_prefix"`
	UntrustedRange  int     `toml:"untrusted_range"`
	Seed            uint64  `toml:"seed"` // 0 seeds from the clock
	Priority        int     `toml:"priority"`
}

// Alerts configures the alert queue and the consumer loop.
type Alerts struct {
	Capacity         int  `toml:"capacity"`
	ReceiveTimeoutMs int  `toml:"receive_timeout_ms"`
	Journal          bool `toml:"journal"`
	Priority         int  `toml:"priority"`
}

// Supervisor configures stuck detection and recovery.
type Supervisor struct {
	// PeriodMs of 0 derives the period from the watchdog timeout (seconds * 500).
	PeriodMs             int `toml:"period_ms"`
	StuckThresholdMs     int `toml:"stuck_threshold_ms"`
	MaxRestarts          int `toml:"max_restarts"` // 0 disables the restart guard
	RestartWindowSeconds int `toml:"restart_window_seconds"`
	Priority             int `toml:"priority"`
}

// Watchdog configures the hard liveness escalation.
type Watchdog struct {
	TimeoutSeconds int      `toml:"timeout_seconds"`
	TriggerPanic   bool     `toml:"trigger_panic"`
	Monitored      []string `toml:"monitored"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	Untrusted          bool   `toml:"untrusted"`
	Restarts           bool   `toml:"restarts"`
	Watchdog           bool   `toml:"watchdog"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string            `toml:"format"`
	Level         string            `toml:"level"`
	Color         string            `toml:"color"`
	RetentionDays int               `toml:"retention_days"`
	WorkerLevels  map[string]string `toml:"worker_levels"`
}

// Config encapsulates all configuration values for wifiguard.
//
// Configuration sections by subsystem:
//   - Paths: state (journal, lock, pid) and log directories
//   - AllowList: trusted network names
//   - Scan: producer period, bounded waits, simulator shape
//   - Alerts: queue capacity and consumer receive bound
//   - Supervisor: stuck threshold, period, restart guard
//   - Watchdog: hard liveness timeout and escalation
//   - Notifications: ntfy push settings
//   - Logging: format, level, retention, per-worker levels
type Config struct {
	Paths         Paths         `toml:"paths"`
	AllowList     AllowList     `toml:"allowlist"`
	Scan          Scan          `toml:"scan"`
	Alerts        Alerts        `toml:"alerts"`
	Supervisor    Supervisor    `toml:"supervisor"`
	Watchdog      Watchdog      `toml:"watchdog"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/wifiguard/config.toml")
}

// Load locates, parses, normalizes, and validates a configuration file. A
// missing file is not an error: the defaults are returned with exists=false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("wifiguard.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JournalPath returns the SQLite alert journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "wifiguard.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "wifiguard.pid")
}

// StatusPath returns the daemon status snapshot location.
func (c *Config) StatusPath() string {
	return filepath.Join(c.Paths.StateDir, "status.json")
}

// ScanPeriod returns the producer sleep between iterations.
func (c *Config) ScanPeriod() time.Duration { return millis(c.Scan.PeriodMs) }

// LockTimeout returns the allow-list lock bound.
func (c *Config) LockTimeout() time.Duration { return millis(c.Scan.LockTimeoutMs) }

// SendTimeout returns the alert queue send bound.
func (c *Config) SendTimeout() time.Duration { return millis(c.Scan.SendTimeoutMs) }

// ReceiveTimeout returns the alert queue receive bound.
func (c *Config) ReceiveTimeout() time.Duration { return millis(c.Alerts.ReceiveTimeoutMs) }

// WatchdogTimeout returns the hard liveness timeout.
func (c *Config) WatchdogTimeout() time.Duration {
	return time.Duration(c.Watchdog.TimeoutSeconds) * time.Second
}

// SupervisorPeriod returns the supervisor poll period. When unset it is the
// watchdog timeout in seconds times 500ms, half the watchdog timeout.
func (c *Config) SupervisorPeriod() time.Duration {
	if c.Supervisor.PeriodMs > 0 {
		return millis(c.Supervisor.PeriodMs)
	}
	return time.Duration(c.Watchdog.TimeoutSeconds) * 500 * time.Millisecond
}

// StuckThreshold returns the heartbeat age that marks a worker stuck.
func (c *Config) StuckThreshold() time.Duration { return millis(c.Supervisor.StuckThresholdMs) }

// JournalWriteTimeout bounds a journal write made from inside a worker loop:
// the send bound or a quarter of the stuck threshold, whichever is shorter.
func (c *Config) JournalWriteTimeout() time.Duration {
	return min(c.SendTimeout(), c.StuckThreshold()/4)
}

// DeliverTimeout bounds one alert hand-off to every reporter. Together with
// the receive bound it stays under the stuck threshold.
func (c *Config) DeliverTimeout() time.Duration {
	return (c.StuckThreshold() - c.ReceiveTimeout()) / 2
}

// RestartWindow returns the window the restart guard counts over.
func (c *Config) RestartWindow() time.Duration {
	return time.Duration(c.Supervisor.RestartWindowSeconds) * time.Second
}

func millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders c as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
