// Package allowlist holds the trusted network identifiers and classifies
// observed networks against them.
//
// The list is written once by New and never mutated. Reads still go through a
// timed lock so a caller can never stall behind another reader for longer
// than the configured bound: when the lock cannot be taken in time,
// Classify reports VerdictUnavailable together with ErrLockTimeout, which
// callers log separately from a genuine untrusted detection.
package allowlist
