package config

const (
	defaultStateDir             = "~/.local/share/wifiguard"
	defaultLogDir               = "~/.local/share/wifiguard/logs"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogColor             = "auto"
	defaultLogRetentionDays     = 30
	defaultScanPeriodMs         = 2000
	defaultScanLockTimeoutMs    = 100
	defaultScanSendTimeoutMs    = 100
	defaultScanTrustedRatio     = 0.5
	defaultUntrustedPrefix      = "Rede_Insegura_"
	defaultUntrustedRange       = 100
	defaultAlertCapacity        = 5
	defaultAlertReceiveMs       = 1000
	defaultStuckThresholdMs     = 4000
	defaultRestartWindowSeconds = 60
	defaultWatchdogTimeoutSecs  = 10
	defaultNotifyRequestTimeout = 10
	defaultNotifyDedupWindow    = 300
	defaultScanPriority         = 5
	defaultAlertPriority        = 4
	defaultSupervisorPriority   = 3
)

// Worker names shared by the monitor, watchdog, and log overrides.
const (
	WorkerScan       = "scan"
	WorkerAlert      = "alert"
	WorkerSupervisor = "supervisor"
)

// DefaultNetworks is the reference allow-list.
var DefaultNetworks = []string{
	"WiFi_Casa",
	"WiFi_Trabalho",
	"WiFi_ESP32",
	"Rede_Segura_1",
	"Rede_Segura_2",
	"Rede_Segura_3",
	"Rede_Segura_4",
}

// Default returns a Config populated with the reference configuration.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		AllowList: AllowList{
			Networks: append([]string(nil), DefaultNetworks...),
		},
		Scan: Scan{
			PeriodMs:        defaultScanPeriodMs,
			LockTimeoutMs:   defaultScanLockTimeoutMs,
			SendTimeoutMs:   defaultScanSendTimeoutMs,
			TrustedRatio:    defaultScanTrustedRatio,
			UntrustedPrefix: defaultUntrustedPrefix,
			UntrustedRange:  defaultUntrustedRange,
			Priority:        defaultScanPriority,
		},
		Alerts: Alerts{
			Capacity:         defaultAlertCapacity,
			ReceiveTimeoutMs: defaultAlertReceiveMs,
			Journal:          true,
			Priority:         defaultAlertPriority,
		},
		Supervisor: Supervisor{
			StuckThresholdMs:     defaultStuckThresholdMs,
			RestartWindowSeconds: defaultRestartWindowSeconds,
			Priority:             defaultSupervisorPriority,
		},
		Watchdog: Watchdog{
			TimeoutSeconds: defaultWatchdogTimeoutSecs,
			TriggerPanic:   true,
			Monitored:      []string{WorkerScan, WorkerAlert},
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			Untrusted:          true,
			Restarts:           true,
			Watchdog:           true,
			DedupWindowSeconds: defaultNotifyDedupWindow,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			Color:         defaultLogColor,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
