package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tokenladder/internal/domain"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// RaiseBaseline stores newBudget for promptName only when it is strictly
// higher than the current value. The comparison happens inside the upsert,
// so concurrent raises cannot overwrite a higher value with a lower one.
func (s *Store) RaiseBaseline(ctx context.Context, promptName string, newBudget int, reason, correlationID string) (bool, error) {
	promptName = strings.TrimSpace(promptName)
	if promptName == "" {
		return false, fmt.Errorf("raise baseline: prompt name is required")
	}
	if newBudget < 1 {
		return false, fmt.Errorf("raise baseline %q: budget must be >= 1, got %d", promptName, newBudget)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO prompt_token_baselines (prompt_name, baseline, last_adjusted_at, last_reason, last_correlation_id)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(prompt_name) DO UPDATE SET
			baseline = excluded.baseline,
			last_adjusted_at = excluded.last_adjusted_at,
			last_reason = excluded.last_reason,
			last_correlation_id = excluded.last_correlation_id
		 WHERE excluded.baseline > prompt_token_baselines.baseline`,
		promptName, newBudget, s.now().UTC(), reason, correlationID,
	)
	if err != nil {
		return false, fmt.Errorf("raise baseline %q: %w", promptName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("raise baseline %q: %w", promptName, err)
	}
	return n > 0, nil
}

// UpdateBaseline is RaiseBaseline without the raised flag.
func (s *Store) UpdateBaseline(ctx context.Context, promptName string, newBudget int, reason, correlationID string) error {
	raised, err := s.RaiseBaseline(ctx, promptName, newBudget, reason, correlationID)
	if err != nil {
		return err
	}
	if !raised {
		log.Printf("baseline unchanged prompt=%s budget=%d correlation_id=%s", promptName, newBudget, correlationID)
	}
	return nil
}

// GetBaseline returns the learned baseline, or defaultBudget when none exists.
func (s *Store) GetBaseline(ctx context.Context, promptName string, defaultBudget int) (int, error) {
	var baseline int
	err := s.db.QueryRowContext(ctx,
		`SELECT baseline FROM prompt_token_baselines WHERE prompt_name = ?`,
		strings.TrimSpace(promptName),
	).Scan(&baseline)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultBudget, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get baseline %q: %w", promptName, err)
	}
	return baseline, nil
}

func (s *Store) GetBaselineRecord(ctx context.Context, promptName string) (domain.PromptTokenBaseline, bool, error) {
	var rec domain.PromptTokenBaseline
	err := s.db.QueryRowContext(ctx,
		`SELECT prompt_name, baseline, last_adjusted_at, last_reason, last_correlation_id
		 FROM prompt_token_baselines WHERE prompt_name = ?`,
		strings.TrimSpace(promptName),
	).Scan(&rec.PromptName, &rec.Baseline, &rec.LastAdjustedAt, &rec.LastReason, &rec.LastCorrelationID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PromptTokenBaseline{}, false, nil
	}
	if err != nil {
		return domain.PromptTokenBaseline{}, false, fmt.Errorf("get baseline %q: %w", promptName, err)
	}
	return rec, true, nil
}

func (s *Store) ListBaselines(ctx context.Context) ([]domain.PromptTokenBaseline, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT prompt_name, baseline, last_adjusted_at, last_reason, last_correlation_id
		 FROM prompt_token_baselines ORDER BY prompt_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PromptTokenBaseline
	for rows.Next() {
		var rec domain.PromptTokenBaseline
		if err := rows.Scan(&rec.PromptName, &rec.Baseline, &rec.LastAdjustedAt, &rec.LastReason, &rec.LastCorrelationID); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
