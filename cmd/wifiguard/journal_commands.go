package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"wifiguard/internal/config"
	"wifiguard/internal/journal"
)

const journalTimeLayout = "2006-01-02 15:04:05"

func newAlertsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var ssidFilter string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show recent untrusted-network alerts from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJournal(func(_ *config.Config, store *journal.Store) error {
				records, err := store.RecentAlerts(cmd.Context(), limit, strings.TrimSpace(ssidFilter))
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, records)
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No alerts recorded")
					return nil
				}
				now := time.Now()
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						strconv.FormatInt(rec.ID, 10),
						rec.SSID,
						rec.ObservedAt.Local().Format(journalTimeLayout),
						humanize.RelTime(rec.ObservedAt, now, "ago", "from now"),
						shortID(rec.AlertID),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Network", "Observed", "Age", "Alert"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum alerts to show")
	cmd.Flags().StringVar(&ssidFilter, "ssid", "", "Only show alerts for this network")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	cmd.AddCommand(newAlertsClearCommand(ctx))
	cmd.AddCommand(newAlertsPruneCommand(ctx))
	return cmd
}

func newAlertsClearCommand(ctx *commandContext) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every alert and event from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to clear the journal without --yes")
			}
			return ctx.withJournal(func(_ *config.Config, store *journal.Store) error {
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d journal rows\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&confirm, "yes", "y", false, "Confirm removal")
	return cmd
}

func newAlertsPruneCommand(ctx *commandContext) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove journal rows older than a number of days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJournal(func(cfg *config.Config, store *journal.Store) error {
				keep := days
				if keep <= 0 {
					keep = cfg.Logging.RetentionDays
				}
				if keep <= 0 {
					return fmt.Errorf("no retention configured; pass --days")
				}
				removed, err := store.Prune(cmd.Context(), time.Now().AddDate(0, 0, -keep))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d journal rows older than %d days\n", removed, keep)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Age in days (defaults to logging.retention_days)")
	return cmd
}

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var kindNames []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent monitor events from the journal",
		Long:  "Show dropped alerts, unavailable classifications, worker restarts, and watchdog expiries.",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := parseKinds(kindNames)
			if err != nil {
				return err
			}
			return ctx.withJournal(func(_ *config.Config, store *journal.Store) error {
				events, err := store.RecentEvents(cmd.Context(), limit, kinds...)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, events)
				}
				out := cmd.OutOrStdout()
				if len(events) == 0 {
					fmt.Fprintln(out, "No events recorded")
					return nil
				}
				rows := make([][]string, 0, len(events))
				for _, ev := range events {
					rows = append(rows, []string{
						strconv.FormatInt(ev.ID, 10),
						string(ev.Kind),
						dashIfEmpty(ev.Worker),
						dashIfEmpty(ev.SSID),
						ev.OccurredAt.Local().Format(journalTimeLayout),
						dashIfEmpty(ev.Detail),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Kind", "Worker", "Network", "When", "Detail"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum events to show")
	cmd.Flags().StringSliceVar(&kindNames, "kind", nil, "Filter by kind (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func parseKinds(names []string) ([]journal.EventKind, error) {
	kinds := make([]journal.EventKind, 0, len(names))
	for _, name := range names {
		kind, ok := journal.ParseKind(strings.ToLower(strings.TrimSpace(name)))
		if !ok {
			valid := make([]string, 0, len(journal.Kinds()))
			for _, k := range journal.Kinds() {
				valid = append(valid, string(k))
			}
			return nil, fmt.Errorf("unknown event kind %q (valid: %s)", name, strings.Join(valid, ", "))
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dashIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
