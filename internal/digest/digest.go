package digest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"tokenladder/internal/domain"
	"tokenladder/internal/storage/sqlite"
)

// Window is how far back run statistics reach.
const Window = 7 * 24 * time.Hour

type Source interface {
	ListBaselines(ctx context.Context) ([]domain.PromptTokenBaseline, error)
	RunStatsSince(ctx context.Context, since time.Time) (sqlite.RunStats, error)
}

type Poster interface {
	PostDigest(text string) error
}

// Build collects baselines and the run stats of the last Window before now.
func Build(ctx context.Context, src Source, now time.Time) (string, error) {
	baselines, err := src.ListBaselines(ctx)
	if err != nil {
		return "", fmt.Errorf("list baselines: %w", err)
	}
	since := now.Add(-Window)
	stats, err := src.RunStatsSince(ctx, since)
	if err != nil {
		return "", fmt.Errorf("run stats since %s: %w", since.Format(time.RFC3339), err)
	}
	return Format(baselines, stats, since, now.Location()), nil
}

func Format(baselines []domain.PromptTokenBaseline, stats sqlite.RunStats, since time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Token baseline digest* (runs since %s)\n", since.In(loc).Format("Mon Jan 2 15:04"))

	if stats.Total == 0 {
		b.WriteString("No runs recorded.\n")
	} else {
		fmt.Fprintf(&b, "Runs: %d | success %d | exhausted %d | cap exceeded %d | failed %d\n",
			stats.Total,
			stats.ByOutcome[domain.RunSuccess],
			stats.ByOutcome[domain.RunExhausted],
			stats.ByOutcome[domain.RunCapExceeded],
			stats.ByOutcome[domain.RunFailed],
		)
		fmt.Fprintf(&b, "Escalations: %d | Output tokens: %d\n", stats.Escalations, stats.OutputTokens)
	}

	if len(baselines) == 0 {
		b.WriteString("No learned baselines yet.")
		return b.String()
	}
	b.WriteString("Learned baselines:")
	for _, bl := range baselines {
		fmt.Fprintf(&b, "\n• `%s`: %d tokens (raised %s)", bl.PromptName, bl.Baseline, bl.LastAdjustedAt.In(loc).Format("2006-01-02"))
	}
	return b.String()
}

// ParseSchedule accepts a standard 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid digest_schedule '%s': %w", expr, err)
	}
	return sched, nil
}

// Run posts a digest at every tick of sched until ctx is done. Failures of a
// single digest are logged and the loop continues.
func Run(ctx context.Context, sched cron.Schedule, loc *time.Location, src Source, poster Poster) error {
	if loc == nil {
		loc = time.Local
	}
	for {
		now := time.Now().In(loc)
		next := sched.Next(now)
		wait := next.Sub(now)
		log.Printf("Next baseline digest at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := postOnce(ctx, src, poster, time.Now().In(loc)); err != nil {
			log.Printf("digest error: %v", err)
		}
	}
}

func postOnce(ctx context.Context, src Source, poster Poster, now time.Time) error {
	text, err := Build(ctx, src, now)
	if err != nil {
		return err
	}
	if err := poster.PostDigest(text); err != nil {
		return err
	}
	log.Printf("digest posted size=%d", len(text))
	return nil
}
