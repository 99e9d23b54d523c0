package testsupport

import (
	"path/filepath"
	"testing"

	"wifiguard/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Timings are shortened so loops iterate quickly while still satisfying
// validation.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Scan.PeriodMs = 10
	cfgVal.Scan.LockTimeoutMs = 20
	cfgVal.Scan.SendTimeoutMs = 20
	cfgVal.Scan.Seed = 1
	cfgVal.Alerts.ReceiveTimeoutMs = 20
	cfgVal.Supervisor.PeriodMs = 25
	cfgVal.Supervisor.StuckThresholdMs = 200
	cfgVal.Watchdog.TimeoutSeconds = 5
	cfgVal.Watchdog.TriggerPanic = false
	cfgVal.Notifications.NtfyTopic = ""
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithNetworks replaces the allow-list on the test config.
func WithNetworks(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.AllowList.Networks = append([]string(nil), names...)
	}
}

// WithNtfyTopic points notifications at the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithRestartGuard enables the supervisor restart guard.
func WithRestartGuard(limit, windowSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Supervisor.MaxRestarts = limit
		b.cfg.Supervisor.RestartWindowSeconds = windowSeconds
	}
}

// WithTrustedRatio sets the simulator's probability of picking a trusted name.
func WithTrustedRatio(ratio float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scan.TrustedRatio = ratio
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
