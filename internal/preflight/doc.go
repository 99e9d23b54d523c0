// Package preflight provides readiness checks for the paths and services
// wifiguard depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before launching workers and logs any failure.
//   - The CLI "wifiguard check" command renders every result as a table.
//
// The ntfy check is skipped when no topic is configured.
package preflight
