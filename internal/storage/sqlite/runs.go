package sqlite

import (
	"context"
	"fmt"
	"time"

	"tokenladder/internal/domain"
)

func (s *Store) InsertEscalationRun(ctx context.Context, run domain.EscalationRun) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO escalation_runs
		 (correlation_id, prompt_name, baseline_tokens, final_tokens, attempts, escalations, outcome,
		  finish_reason, input_tokens, output_tokens, error_text, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.CorrelationID, run.PromptName, run.BaselineTokens, run.FinalTokens, run.Attempts, run.Escalations,
		string(run.Outcome), string(run.Finish), run.InputTokens, run.OutputTokens, run.ErrorText,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert escalation run %s: %w", run.CorrelationID, err)
	}
	return res.LastInsertId()
}

// ListRecentRuns returns the newest runs first.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]domain.EscalationRun, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, correlation_id, prompt_name, baseline_tokens, final_tokens, attempts, escalations, outcome,
		        finish_reason, input_tokens, output_tokens, error_text, started_at, finished_at
		 FROM escalation_runs ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.EscalationRun
	for rows.Next() {
		var run domain.EscalationRun
		var outcome, finish string
		err := rows.Scan(
			&run.ID, &run.CorrelationID, &run.PromptName, &run.BaselineTokens, &run.FinalTokens,
			&run.Attempts, &run.Escalations, &outcome, &finish, &run.InputTokens, &run.OutputTokens,
			&run.ErrorText, &run.StartedAt, &run.FinishedAt,
		)
		if err != nil {
			return nil, err
		}
		run.Outcome = domain.RunOutcome(outcome)
		run.Finish = domain.FinishReason(finish)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type RunStats struct {
	Total        int
	ByOutcome    map[domain.RunOutcome]int
	Escalations  int
	OutputTokens int64
}

// RunStatsSince aggregates runs started at or after since.
func (s *Store) RunStatsSince(ctx context.Context, since time.Time) (RunStats, error) {
	stats := RunStats{ByOutcome: make(map[domain.RunOutcome]int)}
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*), COALESCE(SUM(escalations), 0), COALESCE(SUM(output_tokens), 0)
		 FROM escalation_runs WHERE started_at >= ? GROUP BY outcome`,
		since.UTC(),
	)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var outcome string
		var count, escalations int
		var outputTokens int64
		if err := rows.Scan(&outcome, &count, &escalations, &outputTokens); err != nil {
			return stats, err
		}
		stats.ByOutcome[domain.RunOutcome(outcome)] = count
		stats.Total += count
		stats.Escalations += escalations
		stats.OutputTokens += outputTokens
	}
	return stats, rows.Err()
}
