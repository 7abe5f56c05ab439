package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tokenladder/internal/domain"
	"tokenladder/internal/storage/sqlite"
)

type fakeSource struct {
	baselines []domain.PromptTokenBaseline
	stats     sqlite.RunStats
	since     time.Time
	err       error
}

func (f *fakeSource) ListBaselines(ctx context.Context) ([]domain.PromptTokenBaseline, error) {
	return f.baselines, f.err
}

func (f *fakeSource) RunStatsSince(ctx context.Context, since time.Time) (sqlite.RunStats, error) {
	f.since = since
	return f.stats, nil
}

type fakePoster struct {
	texts []string
}

func (f *fakePoster) PostDigest(text string) error {
	f.texts = append(f.texts, text)
	return nil
}

func TestBuildDigest(t *testing.T) {
	now := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	src := &fakeSource{
		baselines: []domain.PromptTokenBaseline{
			{PromptName: "release-notes", Baseline: 2000, LastAdjustedAt: now.Add(-48 * time.Hour)},
		},
		stats: sqlite.RunStats{
			Total:        5,
			ByOutcome:    map[domain.RunOutcome]int{domain.RunSuccess: 4, domain.RunExhausted: 1},
			Escalations:  3,
			OutputTokens: 8200,
		},
	}

	text, err := Build(context.Background(), src, now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !src.since.Equal(now.Add(-Window)) {
		t.Fatalf("stats window start = %s, want %s", src.since, now.Add(-Window))
	}
	for _, want := range []string{
		"Runs: 5 | success 4 | exhausted 1 | cap exceeded 0 | failed 0",
		"Escalations: 3 | Output tokens: 8200",
		"`release-notes`: 2000 tokens (raised 2026-03-07)",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("digest missing %q:\n%s", want, text)
		}
	}
}

func TestFormatEmpty(t *testing.T) {
	text := Format(nil, sqlite.RunStats{}, time.Now(), nil)
	if !strings.Contains(text, "No runs recorded.") || !strings.Contains(text, "No learned baselines yet.") {
		t.Fatalf("unexpected empty digest:\n%s", text)
	}
}

func TestBuildPropagatesSourceError(t *testing.T) {
	_, err := Build(context.Background(), &fakeSource{err: errors.New("db closed")}, time.Now())
	if err == nil || !strings.Contains(err.Error(), "db closed") {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestParseSchedule(t *testing.T) {
	sched, err := ParseSchedule("0 9 * * 1")
	if err != nil {
		t.Fatalf("ParseSchedule failed: %v", err)
	}
	from := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) // Wednesday
	next := sched.Next(from)
	want := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %s, want %s", next, want)
	}

	if _, err := ParseSchedule("every monday"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if _, err := ParseSchedule("0 0 9 * * 1"); err == nil {
		t.Fatal("expected error for 6-field schedule")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	sched, err := ParseSchedule("0 9 * * 1")
	if err != nil {
		t.Fatalf("ParseSchedule failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	poster := &fakePoster{}
	err = Run(ctx, sched, time.UTC, &fakeSource{}, poster)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(poster.texts) != 0 {
		t.Fatal("expected no digest after cancel")
	}
}

func TestPostOnce(t *testing.T) {
	poster := &fakePoster{}
	if err := postOnce(context.Background(), &fakeSource{}, poster, time.Now()); err != nil {
		t.Fatalf("postOnce failed: %v", err)
	}
	if len(poster.texts) != 1 {
		t.Fatalf("expected one digest, got %d", len(poster.texts))
	}
}
