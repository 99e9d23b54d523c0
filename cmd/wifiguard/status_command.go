package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"wifiguard/internal/config"
	"wifiguard/internal/daemonctl"
	"wifiguard/internal/journal"
	"wifiguard/internal/monitor"
	"wifiguard/internal/preflight"
	"wifiguard/internal/telemetry"
)

type statusReport struct {
	Running  bool               `json:"running"`
	PID      int                `json:"pid,omitempty"`
	Snapshot *monitor.Snapshot  `json:"snapshot,omitempty"`
	Stale    bool               `json:"stale,omitempty"`
	Journal  journal.Summary    `json:"journal"`
	Checks   []preflight.Result `json:"checks,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var runChecks bool
	var top int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show monitor status and journal summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJournal(func(cfg *config.Config, store *journal.Store) error {
				report, err := collectStatus(cfg, store, cmd, top)
				if err != nil {
					return err
				}
				if runChecks {
					report.Checks = preflight.RunAll(cmd.Context(), cfg)
				}
				if jsonOutput {
					return writeJSON(cmd, report)
				}
				out := cmd.OutOrStdout()
				writeStatus(out, report, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&runChecks, "checks", false, "Also run environment checks")
	cmd.Flags().IntVar(&top, "top", 5, "Number of most frequent networks to list")
	return cmd
}

func collectStatus(cfg *config.Config, store *journal.Store, cmd *cobra.Command, top int) (statusReport, error) {
	var report statusReport

	running, err := daemonctl.Running(cfg)
	if err != nil {
		return report, err
	}
	report.Running = running
	if running {
		report.PID = daemonctl.ReadPID(cfg.PIDPath())
		snap, err := monitor.ReadSnapshot(cfg.StatusPath())
		switch {
		case err == nil:
			report.Snapshot = &snap
			report.Stale = snap.Stale(time.Now(), 3*cfg.SupervisorPeriod())
		case !errors.Is(err, fs.ErrNotExist):
			return report, err
		}
	}

	summary, err := store.Summary(cmd.Context(), top)
	if err != nil {
		return report, err
	}
	report.Journal = summary
	return report, nil
}

func writeStatus(out io.Writer, report statusReport, colorize bool) {
	lines := renderSectionHeader("Monitor", colorize)
	switch {
	case !report.Running:
		lines = append(lines, renderStatusLine("Monitor", statusInfo, "Not running", colorize))
	case report.PID > 0:
		lines = append(lines, renderStatusLine("Monitor", statusOK, fmt.Sprintf("Running (pid %d)", report.PID), colorize))
	default:
		lines = append(lines, renderStatusLine("Monitor", statusOK, "Running", colorize))
	}
	if snap := report.Snapshot; snap != nil {
		if report.Stale {
			lines = append(lines, renderStatusLine("Snapshot", statusWarn, "Stale, written "+humanize.Time(snap.WrittenAt), colorize))
		}
		if !snap.Status.StartedAt.IsZero() {
			lines = append(lines, renderValueLine("Started", humanize.Time(snap.Status.StartedAt)))
		}
		if snap.LogPath != "" {
			lines = append(lines, renderValueLine("Log", snap.LogPath))
		}
	}
	fmt.Fprintln(out, strings.Join(lines, "\n"))

	if snap := report.Snapshot; snap != nil {
		writeRuntime(out, snap.Status, colorize)
	}
	writeJournalSummary(out, report.Journal, colorize)

	if len(report.Checks) > 0 {
		lines = append([]string{""}, renderSectionHeader("Checks", colorize)...)
		for _, check := range report.Checks {
			kind := statusOK
			if !check.Passed {
				kind = statusError
			}
			lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
		}
		fmt.Fprintln(out, strings.Join(lines, "\n"))
	}
}

func writeRuntime(out io.Writer, status monitor.Status, colorize bool) {
	lines := append([]string{""}, renderSectionHeader("Workers", colorize)...)
	fmt.Fprintln(out, strings.Join(lines, "\n"))

	now := time.Now()
	rows := make([][]string, 0, len(status.Workers))
	for _, w := range status.Workers {
		lastBeat := "-"
		if !w.LastBeat.IsZero() {
			lastBeat = now.Sub(w.LastBeat).Round(time.Millisecond).String() + " ago"
		}
		state := string(w.State)
		if w.Suppressed {
			state += " (restart suppressed)"
		}
		rows = append(rows, []string{
			w.Name,
			state,
			shortID(w.Generation),
			telemetry.FormatCount(w.Beats),
			lastBeat,
			strconv.Itoa(w.Restarts),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Worker", "State", "Generation", "Beats", "Last Beat", "Restarts"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))

	lines = append([]string{""}, renderSectionHeader("Pipeline", colorize)...)
	lines = append(lines,
		renderValueLine("Scanned", fmt.Sprintf("%s (trusted %s, untrusted %s)",
			telemetry.FormatCount(status.Scanner.Scanned),
			telemetry.FormatCount(status.Scanner.Trusted),
			telemetry.FormatCount(status.Scanner.Untrusted))),
		renderValueLine("Queue", fmt.Sprintf("%d/%d pending", status.Queue.Pending, status.Queue.Capacity)),
		renderValueLine("Delivered", telemetry.FormatCount(status.Alerts.Delivered)),
	)
	if status.Scanner.Dropped > 0 {
		lines = append(lines, renderStatusLine("Dropped", statusWarn, telemetry.FormatCount(status.Scanner.Dropped), colorize))
	}
	if status.Scanner.Unavailable > 0 {
		lines = append(lines, renderStatusLine("Unavailable", statusWarn, telemetry.FormatCount(status.Scanner.Unavailable), colorize))
	}
	for _, slot := range status.Watchdog {
		if slot.Expired {
			lines = append(lines, renderStatusLine("Watchdog", statusError, slot.Worker+" expired", colorize))
		}
	}
	if status.Memory.TotalBytes > 0 {
		lines = append(lines, renderValueLine("Memory", fmt.Sprintf("%s free of %s (%s)",
			telemetry.FormatBytes(status.Memory.FreeBytes),
			telemetry.FormatBytes(status.Memory.TotalBytes),
			status.Memory.Source)))
	}
	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

func writeJournalSummary(out io.Writer, summary journal.Summary, colorize bool) {
	lines := append([]string{""}, renderSectionHeader("Journal", colorize)...)
	if summary.Alerts == 0 {
		lines = append(lines, renderStatusLine("Alerts", statusOK, "None recorded", colorize))
	} else {
		lines = append(lines,
			renderStatusLine("Alerts", statusWarn, fmt.Sprintf("%d across %d networks", summary.Alerts, summary.DistinctSSIDs), colorize),
			renderValueLine("Last alert", humanize.Time(summary.LastAlert)),
		)
	}
	for _, kind := range journal.Kinds() {
		if count := summary.EventsByKind[kind]; count > 0 {
			lines = append(lines, renderValueLine(string(kind), strconv.Itoa(count)))
		}
	}
	fmt.Fprintln(out, strings.Join(lines, "\n"))

	if len(summary.TopNetworks) == 0 {
		return
	}
	rows := make([][]string, 0, len(summary.TopNetworks))
	for _, nc := range summary.TopNetworks {
		rows = append(rows, []string{nc.SSID, strconv.Itoa(nc.Count), humanize.Time(nc.LastSeen)})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Network", "Alerts", "Last Seen"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft},
	))
}
