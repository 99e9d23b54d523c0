// Package alerting implements the consumer side of the monitor: it drains
// the alert queue and fans each alert out to the configured reporters.
package alerting
