// Package journal persists untrusted-network alerts and monitor events in a
// SQLite database under the state directory.
//
// The alert task appends one row per delivered alert; the scanner and the
// supervisor append event rows for dropped alerts, unavailable
// classifications, worker restarts, and watchdog expiry. The CLI reads the
// same database to render history without talking to the daemon.
//
// The schema is versioned. A database created by an incompatible build is
// rejected with ErrSchemaMismatch rather than migrated in place.
package journal
