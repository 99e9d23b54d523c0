package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"wifiguard/internal/allowlist"
	"wifiguard/internal/ssid"
)

type checkResult struct {
	SSID      string `json:"ssid"`
	Verdict   string `json:"verdict"`
	Truncated bool   `json:"truncated,omitempty"`
}

var errNotTrusted = errors.New("network is not trusted")

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var quiet bool

	cmd := &cobra.Command{
		Use:   "check <ssid>",
		Short: "Classify one network name against the allow-list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := ctx.allowList()
			if err != nil {
				return err
			}
			id, truncated := ssid.Truncate(args[0])
			if quiet {
				if !list.IsTrusted(cmd.Context(), id) {
					return fmt.Errorf("%q: %w", id.String(), errNotTrusted)
				}
				return nil
			}
			verdict, err := list.Classify(cmd.Context(), id)
			if err != nil && !errors.Is(err, allowlist.ErrLockTimeout) {
				return err
			}
			result := checkResult{SSID: id.String(), Verdict: verdict.String(), Truncated: truncated}
			if jsonOutput {
				return writeJSON(cmd, result)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			kind := statusOK
			switch verdict {
			case allowlist.VerdictUntrusted:
				kind = statusWarn
			case allowlist.VerdictUnavailable:
				kind = statusError
			}
			fmt.Fprintln(out, renderStatusLine(result.SSID, kind, result.Verdict, colorize))
			if truncated {
				fmt.Fprintf(out, "%sname truncated to %d bytes\n", statusIndent, ssid.MaxLen)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print nothing; exit non-zero unless the network is trusted")
	return cmd
}

func newAllowListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "allowlist",
		Aliases: []string{"allow"},
		Short:   "Show the trusted networks",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := ctx.allowList()
			if err != nil {
				return err
			}
			entries := list.Entries()
			if jsonOutput {
				names := make([]string, len(entries))
				for i, entry := range entries {
					names[i] = entry.String()
				}
				return writeJSON(cmd, names)
			}

			rows := make([][]string, 0, len(entries))
			for i, entry := range entries {
				rows = append(rows, []string{strconv.Itoa(i + 1), entry.String(), strconv.Itoa(len(entry))})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Network", "Bytes"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func (c *commandContext) allowList() (*allowlist.List, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	list, err := allowlist.New(cfg.AllowList.Networks, allowlist.WithLockTimeout(cfg.LockTimeout()))
	if err != nil {
		return nil, fmt.Errorf("load allow-list: %w", err)
	}
	return list, nil
}
