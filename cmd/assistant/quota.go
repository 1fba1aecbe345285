package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"assistant/internal/quota"
	"assistant/internal/widget"
)

// simulatedMessageBytes is the filler size of one synthetic message.
const simulatedMessageBytes = 100_000

func newQuotaCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Run the storage quota monitor once",
	}

	var simulate int
	check := &cobra.Command{
		Use:   "check",
		Short: "Check usage against the warning thresholds, evicting when over a limit",
		Args:  cobra.NoArgs,
		RunE: clientAction(opts, func(cmd *cobra.Command, ctrl *widget.Controller, _ []string) error {
			out := cmd.OutOrStdout()
			ctrl.SetOnNotice(func(n widget.Notice) { writeNotice(out, n) })
			defer ctrl.SetOnNotice(nil)

			var report quota.Report
			if simulate > 0 {
				r, err := ctrl.SimulateLoad(simulate, simulatedMessageBytes)
				if err != nil {
					return errors.New(ctrl.ErrorText(err))
				}
				report = r
			} else {
				report = ctrl.Monitor().Tick()
			}
			writeReport(out, report)
			fmt.Fprintln(out, ctrl.UsageLine(ctrl.Quota()))
			return nil
		}),
	}
	check.Flags().IntVar(&simulate, "simulate", 0, "Append N large synthetic messages to a new session first")

	evict := &cobra.Command{
		Use:   "evict",
		Short: "Evict the oldest sessions until usage is back under the limits",
		Args:  cobra.NoArgs,
		RunE: clientAction(opts, func(cmd *cobra.Command, ctrl *widget.Controller, _ []string) error {
			rem, err := ctrl.Monitor().Remediate()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "removed %d session(s) in %d round(s)\n", rem.Removed, rem.Rounds)
			fmt.Fprintln(out, ctrl.UsageLine(ctrl.Quota()))
			if errors.Is(err, quota.ErrQuotaUnresolvable) {
				return errors.New(ctrl.NoticeFor(quota.Notification{Kind: quota.NotifyUnresolvable}).Title)
			}
			return err
		}),
	}

	cmd.AddCommand(check, evict)
	return cmd
}

func writeReport(w io.Writer, r quota.Report) {
	fired := "none"
	if len(r.Fired) > 0 {
		fired = strings.Join(lo.Map(r.Fired, func(l quota.Level, _ int) string { return string(l) }), ", ")
	}
	fmt.Fprintf(w, "usage %.1f%% (%s, %d session(s)); thresholds fired: %s\n",
		r.Percentage, humanize.IBytes(uint64(r.Usage.PersistedSizeBytes)), r.Usage.SessionsCount, fired)
	if r.Evicted > 0 {
		fmt.Fprintf(w, "evicted %d session(s)\n", r.Evicted)
	}
}

func writeNotice(w io.Writer, n widget.Notice) {
	fmt.Fprintf(w, "! %s\n", n.Title)
	if n.Detail != "" {
		fmt.Fprintf(w, "  %s\n", n.Detail)
	}
}
