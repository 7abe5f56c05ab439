package domain

import "time"

// EscalationContext is supplied by the caller and stays fixed for one run.
type EscalationContext struct {
	PromptName          string
	BaselineTokenBudget int
	CorrelationID       string
}

type EscalationOutcome[T any] struct {
	Result           T
	FinalTokenBudget int
	EscalationsUsed  int
	Attempts         int
	Finish           FinishReason
}

// PromptTokenBaseline is the learned starting budget for a named prompt.
type PromptTokenBaseline struct {
	PromptName        string
	Baseline          int
	LastAdjustedAt    time.Time
	LastReason        string
	LastCorrelationID string
}

type RunOutcome string

const (
	RunSuccess     RunOutcome = "success"
	RunExhausted   RunOutcome = "exhausted"
	RunCapExceeded RunOutcome = "cap_exceeded"
	RunFailed      RunOutcome = "failed"
)

// EscalationRun is one row of run history.
type EscalationRun struct {
	ID             int64
	CorrelationID  string
	PromptName     string
	BaselineTokens int
	FinalTokens    int
	Attempts       int
	Escalations    int
	Outcome        RunOutcome
	Finish         FinishReason
	InputTokens    int64
	OutputTokens   int64
	ErrorText      string
	StartedAt      time.Time
	FinishedAt     time.Time
}

func (r EscalationRun) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
