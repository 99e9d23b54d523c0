package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAllowList()
	c.normalizeScan()
	c.normalizeWatchdog()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

// normalizeAllowList trims whitespace around names but keeps case: matching
// is exact and case-sensitive.
func (c *Config) normalizeAllowList() {
	networks := make([]string, 0, len(c.AllowList.Networks))
	seen := make(map[string]struct{}, len(c.AllowList.Networks))
	for _, name := range c.AllowList.Networks {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		networks = append(networks, trimmed)
	}
	c.AllowList.Networks = networks
}

func (c *Config) normalizeScan() {
	if strings.TrimSpace(c.Scan.UntrustedPrefix) == "" {
		c.Scan.UntrustedPrefix = defaultUntrustedPrefix
	}
}

func (c *Config) normalizeWatchdog() {
	monitored := make([]string, 0, len(c.Watchdog.Monitored))
	for _, name := range c.Watchdog.Monitored {
		if normalized := strings.ToLower(strings.TrimSpace(name)); normalized != "" {
			monitored = append(monitored, normalized)
		}
	}
	c.Watchdog.Monitored = monitored
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("WIFIGUARD_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Color = strings.ToLower(strings.TrimSpace(c.Logging.Color))
	if c.Logging.Color == "" {
		c.Logging.Color = defaultLogColor
	}
	if len(c.Logging.WorkerLevels) > 0 {
		levels := make(map[string]string, len(c.Logging.WorkerLevels))
		for worker, level := range c.Logging.WorkerLevels {
			key := strings.ToLower(strings.TrimSpace(worker))
			value := strings.ToLower(strings.TrimSpace(level))
			if key == "" || value == "" {
				continue
			}
			levels[key] = value
		}
		c.Logging.WorkerLevels = levels
	}
}
