package slackbot

import (
	"errors"
	"strings"
	"testing"

	"github.com/slack-go/slack"

	"tokenladder/internal/domain"
)

type fakePoster struct {
	channels []string
	err      error
}

func (f *fakePoster) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	f.channels = append(f.channels, channelID)
	if f.err != nil {
		return "", "", f.err
	}
	return channelID, "1700000000.000100", nil
}

func TestNotifyRunOnlyAlertsOnBudgetFailures(t *testing.T) {
	api := &fakePoster{}
	n := newNotifier(api, "C123")

	outcomes := []domain.RunOutcome{domain.RunSuccess, domain.RunFailed, domain.RunExhausted, domain.RunCapExceeded}
	for _, outcome := range outcomes {
		if err := n.NotifyRun(domain.EscalationRun{PromptName: "p", Outcome: outcome}); err != nil {
			t.Fatalf("NotifyRun(%s) failed: %v", outcome, err)
		}
	}
	if len(api.channels) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(api.channels))
	}
	if api.channels[0] != "C123" {
		t.Fatalf("posted to %q, want C123", api.channels[0])
	}
}

func TestNotifierPostError(t *testing.T) {
	n := newNotifier(&fakePoster{err: errors.New("channel_not_found")}, "C404")
	err := n.PostDigest("hello")
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("expected wrapped post error, got %v", err)
	}
}

func TestNotifierWithoutChannelIsNoop(t *testing.T) {
	api := &fakePoster{}
	if err := newNotifier(api, "").PostDigest("hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var nilNotifier *Notifier
	if err := nilNotifier.PostDigest("hello"); err != nil {
		t.Fatalf("nil notifier should be a no-op: %v", err)
	}
	if len(api.channels) != 0 {
		t.Fatal("expected no posts")
	}
}

func TestFormatRunAlert(t *testing.T) {
	got := FormatRunAlert(domain.EscalationRun{
		PromptName:     "weekly-summary",
		CorrelationID:  "corr-9",
		BaselineTokens: 1000,
		FinalTokens:    3000,
		Attempts:       4,
		Outcome:        domain.RunExhausted,
		ErrorText:      strings.Repeat("x", 400),
	})
	for _, want := range []string{"`weekly-summary`", "4 attempts", "3000 tokens", "`corr-9`", "Baseline: 1000"} {
		if !strings.Contains(got, want) {
			t.Fatalf("alert missing %q:\n%s", want, got)
		}
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected long error text to be truncated:\n%s", got)
	}

	capAlert := FormatRunAlert(domain.EscalationRun{PromptName: "p", Outcome: domain.RunCapExceeded, FinalTokens: 9800, Attempts: 1})
	if !strings.Contains(capAlert, "escalation cap") || !strings.Contains(capAlert, "9800") {
		t.Fatalf("unexpected cap alert:\n%s", capAlert)
	}
}

func TestFormatRunAlertBaselineAboveCap(t *testing.T) {
	got := FormatRunAlert(domain.EscalationRun{PromptName: "huge", Outcome: domain.RunCapExceeded, BaselineTokens: 50000})
	if !strings.Contains(got, "was not run") || !strings.Contains(got, "Baseline: 50000") {
		t.Fatalf("unexpected alert:\n%s", got)
	}
}
