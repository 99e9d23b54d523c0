// Package scanner implements the producer side of the monitor.
//
// A Scanner pulls observed network identifiers from a Source, classifies
// each against the allow-list, and hands untrusted ones to the alert queue
// with a bounded send. A full queue drops the alert; an allow-list that
// cannot be read in time yields an unavailable classification that is
// logged and journaled but never alerted on. Real radio scanning is out of
// scope: the only Source shipped is a seeded Simulator.
package scanner
