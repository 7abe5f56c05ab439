package escalation

import (
	"context"
	"errors"
	"fmt"

	"tokenladder/internal/integrations/llm"
)

var (
	ErrExhausted   = errors.New("token escalation exhausted")
	ErrCapExceeded = errors.New("token escalation cap exceeded")
)

// Error is returned for every terminal failure of a run. For StateFailed,
// Err is the operation's own error and stays reachable with errors.Is/As.
type Error struct {
	State         StateKind
	Kind          llm.ErrorKind
	PromptName    string
	CorrelationID string
	Attempts      int
	LastBudget    int
	NextBudget    int
	Cap           int
	Err           error
}

func (e *Error) Error() string {
	switch e.State {
	case StateExhausted:
		return fmt.Sprintf("prompt %q still truncated after %d attempts (final budget %d tokens, correlation_id=%s)",
			e.PromptName, e.Attempts, e.LastBudget, e.CorrelationID)
	case StateCapExceeded:
		return fmt.Sprintf("prompt %q needs %d tokens, above escalation cap %d (attempts=%d last_budget=%d correlation_id=%s)",
			e.PromptName, e.NextBudget, e.Cap, e.Attempts, e.LastBudget, e.CorrelationID)
	default:
		return fmt.Sprintf("%v (prompt=%q kind=%s attempts=%d last_budget=%d correlation_id=%s)",
			e.Err, e.PromptName, e.Kind, e.Attempts, e.LastBudget, e.CorrelationID)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrExhausted:
		return e.State == StateExhausted
	case ErrCapExceeded:
		return e.State == StateCapExceeded
	}
	return false
}

func isContextDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
