// Package monitor assembles the running system: allow-list, alert queue,
// scanner, alert consumer, watchdog, and supervisor. It enforces
// single-instance execution with a file lock and exposes a status snapshot.
//
// Allocation failures surface from New as errors; the daemon treats them as
// fatal and exits before any worker starts.
package monitor
