// Package main hosts the wifiguard CLI entrypoint and command graph.
//
// The Cobra command tree runs the monitor in the foreground, classifies
// single network names against the configured allow-list, reads the alert
// journal, renders daemon status from the snapshot a running instance keeps
// in the state directory, and scaffolds configuration.
//
// Commands stay thin: behavior lives in the internal packages and is only
// surfaced here.
package main
