package app

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"tokenladder/internal/digest"
)

func newDigestCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Post the baseline digest to Slack on digest_schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			notifier := e.notifier()
			if notifier == nil {
				return fmt.Errorf("digest requires slack_bot_token and alert_channel_id")
			}
			if once {
				text, err := digest.Build(cmd.Context(), e.store, time.Now().In(e.cfg.Location))
				if err != nil {
					return err
				}
				return notifier.PostDigest(text)
			}

			if e.cfg.DigestSchedule == "" {
				return fmt.Errorf("digest_schedule is not set")
			}
			sched, err := digest.ParseSchedule(e.cfg.DigestSchedule)
			if err != nil {
				return err
			}
			log.Printf("Baseline digest scheduled (cron: %s) to channel %s", e.cfg.DigestSchedule, e.cfg.AlertChannelID)
			if err := digest.Run(cmd.Context(), sched, e.cfg.Location, e.store, notifier); err != nil && cmd.Context().Err() == nil {
				return err
			}
			log.Println("Baseline digest stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "post one digest now and exit")
	return cmd
}
