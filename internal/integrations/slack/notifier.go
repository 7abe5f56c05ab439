package slackbot

import (
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"

	"tokenladder/internal/domain"
)

type poster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier posts escalation alerts and digests to one channel.
type Notifier struct {
	api       poster
	channelID string
}

func NewNotifier(api *slack.Client, channelID string) *Notifier {
	return &Notifier{api: api, channelID: channelID}
}

func newNotifier(api poster, channelID string) *Notifier {
	return &Notifier{api: api, channelID: channelID}
}

// NotifyRun alerts on runs that ended exhausted or above the cap. Other
// outcomes are ignored.
func (n *Notifier) NotifyRun(run domain.EscalationRun) error {
	if run.Outcome != domain.RunExhausted && run.Outcome != domain.RunCapExceeded {
		return nil
	}
	return n.post(FormatRunAlert(run))
}

func (n *Notifier) PostDigest(text string) error {
	return n.post(text)
}

func (n *Notifier) post(text string) error {
	if n == nil || n.api == nil || n.channelID == "" {
		return nil
	}
	_, ts, err := n.api.PostMessage(n.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack post to %s: %w", n.channelID, err)
	}
	log.Printf("slack posted channel=%s ts=%s size=%d", n.channelID, ts, len(text))
	return nil
}

func FormatRunAlert(run domain.EscalationRun) string {
	var b strings.Builder
	switch run.Outcome {
	case domain.RunExhausted:
		fmt.Fprintf(&b, ":warning: Prompt `%s` was still truncated after %d attempts (final budget %d tokens).",
			run.PromptName, run.Attempts, run.FinalTokens)
	case domain.RunCapExceeded:
		if run.Attempts == 0 {
			fmt.Fprintf(&b, ":no_entry: Prompt `%s` was not run: its baseline is above the escalation cap.", run.PromptName)
			break
		}
		fmt.Fprintf(&b, ":no_entry: Prompt `%s` needs more than the escalation cap (last budget %d tokens after %d attempts).",
			run.PromptName, run.FinalTokens, run.Attempts)
	default:
		fmt.Fprintf(&b, "Prompt `%s` finished with outcome %s.", run.PromptName, run.Outcome)
	}
	fmt.Fprintf(&b, "\nBaseline: %d tokens | Correlation ID: `%s`", run.BaselineTokens, run.CorrelationID)
	if msg := strings.TrimSpace(run.ErrorText); msg != "" {
		if len(msg) > 300 {
			msg = msg[:300] + "..."
		}
		fmt.Fprintf(&b, "\n> %s", msg)
	}
	return b.String()
}
