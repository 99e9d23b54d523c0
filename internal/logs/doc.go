// Package logs reads the JSON run logs the daemon writes to the log
// directory.
//
// Tail returns the last N lines of a log, or the lines appended since an
// offset, optionally waiting for new output in follow mode. A Filter narrows
// lines by level, component, or worker so `wifiguard logs` can show a single
// worker's history across restarts. ParseEntry decodes one line for display.
package logs
