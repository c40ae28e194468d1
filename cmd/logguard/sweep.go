package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SteelMorgan/cluster-log-guard/internal/domain"
	"github.com/SteelMorgan/cluster-log-guard/internal/service"
)

// newSweepCommand constructs the `sweep` command
func newSweepCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Report unexpected error lines written since the previous sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			summary, _ := cmd.Flags().GetBool("summary")

			lines, sweepErr := a.guard.Sweep(cmd.Context())
			reportErr := a.guard.Report(lines)
			if reportErr == nil {
				return sweepErr
			}

			out := cmd.OutOrStdout()
			if !summary {
				_, _ = fmt.Fprintln(out, reportErr.Error())
			} else {
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "COUNT\tFILES\tSIGNATURE")
				for _, g := range a.guard.Summarize(lines) {
					_, _ = fmt.Fprintf(w, "%d\t%d\t%s\n", g.Occurrences, len(g.Files), g.Signature)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}
			if sweepErr != nil {
				return sweepErr
			}
			return errFound
		},
	}
	cmd.Flags().Bool("summary", false, "Group lines by normalized signature")
	return cmd
}

// newWatchCommand constructs the `watch` command
func newWatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sweep periodically until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interval := a.cfg.WatchInterval
			if v, _ := cmd.Flags().GetDuration("interval"); v > 0 {
				interval = v
			}

			out := cmd.OutOrStdout()
			worker := service.NewSweepWorker(a.guard, interval, func(lines []domain.OffendingLine) {
				for _, l := range lines {
					_, _ = fmt.Fprintf(out, "%s: %s\n", l.File, l.Line)
				}
			})
			worker.Start(cmd.Context())

			stats := worker.Stats()
			log.Info().
				Int("sweeps", stats.Sweeps).
				Int("failures", stats.Failures).
				Int("offending", stats.Offending).
				Msg("Watch finished")

			if stats.Offending > 0 {
				return errFound
			}
			return nil
		},
	}
	cmd.Flags().Duration("interval", 0, "Interval between sweeps (LOGGUARD_WATCH_INTERVAL)")
	return cmd
}
