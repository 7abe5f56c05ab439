package app

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newBaselinesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "baselines",
		Short: "List learned token baselines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			baselines, err := e.store.ListBaselines(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(baselines) == 0 {
				fmt.Fprintln(w, "No learned baselines yet.")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROMPT\tBASELINE\tADJUSTED\tCORRELATION ID\tREASON")
			for _, b := range baselines {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
					b.PromptName, b.Baseline, b.LastAdjustedAt.In(e.cfg.Location).Format("2006-01-02 15:04"), b.LastCorrelationID, b.LastReason)
			}
			return tw.Flush()
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent escalation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			runs, err := e.store.ListRecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(w, "No runs recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tPROMPT\tOUTCOME\tATTEMPTS\tBUDGET\tTOKENS OUT\tDURATION\tCORRELATION ID")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d->%d\t%d\t%s\t%s\n",
					r.StartedAt.In(e.cfg.Location).Format("2006-01-02 15:04"), r.PromptName, r.Outcome, r.Attempts,
					r.BaselineTokens, r.FinalTokens, r.OutputTokens, r.Duration().Round(time.Millisecond), r.CorrelationID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
