// Package config loads, normalizes, and validates wifiguard configuration.
//
// It supplies the reference defaults (seven trusted networks, a five-slot
// alert queue, 2s scan period, 10s watchdog), expands user paths including
// tilde shortcuts, reads TOML files, and honours the WIFIGUARD_NTFY_TOPIC
// environment fallback. Validation enforces the timing relationships the
// supervisor relies on: the stuck threshold must exceed every bounded wait
// and the watchdog timeout must exceed the stuck threshold.
//
// Always obtain settings through this package so the daemon and CLI see the
// same sanitized values.
package config
