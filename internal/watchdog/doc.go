// Package watchdog provides the hard liveness escalation that sits behind the
// supervisor's soft recovery.
//
// Workers register by name when they start, reset their registration once
// per iteration, and unregister when they exit. A monitor loop checks every
// registration at a quarter of the timeout; a registration that has been
// silent for longer than the timeout is reported once and, when escalation
// is enabled, handed to the configured FatalFunc. Only the worker names the
// watchdog was built to monitor receive real registrations; every other name
// gets an inert one so callers never need to special-case it.
package watchdog
