package escalation

import "fmt"

type StateKind int

const (
	StateAttempting StateKind = iota
	StateSuccess
	StateExhausted
	StateFailed
	StateCapExceeded
)

func (k StateKind) String() string {
	switch k {
	case StateAttempting:
		return "attempting"
	case StateSuccess:
		return "success"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	case StateCapExceeded:
		return "cap_exceeded"
	default:
		return fmt.Sprintf("state(%d)", int(k))
	}
}

// State is one node of a run: Attempting(N) at Budget tokens, or a
// terminal state reached from attempt N.
type State struct {
	Kind   StateKind
	N      int
	Budget int
	// NextBudget is set on StateCapExceeded to the rejected budget.
	NextBudget int
}

func (s State) Terminal() bool {
	return s.Kind != StateAttempting
}

func (s State) String() string {
	if s.Kind == StateAttempting {
		return fmt.Sprintf("attempting(%d)@%d", s.N, s.Budget)
	}
	return fmt.Sprintf("%s(%d)@%d", s.Kind, s.N, s.Budget)
}

// Policy bounds a run: at most MaxEscalations retries, never above Cap.
type Policy struct {
	Cap            int
	MaxEscalations int
	Ladder         Ladder
}

func (p Policy) validate() error {
	if p.Cap < 1 {
		return fmt.Errorf("escalation cap must be >= 1, got %d", p.Cap)
	}
	if p.MaxEscalations < 0 {
		return fmt.Errorf("max escalations must be >= 0, got %d", p.MaxEscalations)
	}
	if p.MaxEscalations > 0 && len(p.Ladder.Deltas) == 0 {
		return fmt.Errorf("escalation ladder needs at least one delta when max escalations is %d", p.MaxEscalations)
	}
	return p.Ladder.validate()
}

// Start is the initial state of a run.
func (p Policy) Start(baseline int) State {
	return State{Kind: StateAttempting, N: 0, Budget: baseline}
}

// Step applies a verdict to an Attempting state. Terminal states are
// returned unchanged.
func (p Policy) Step(s State, v Verdict, baseline int) State {
	if s.Terminal() {
		return s
	}
	switch v {
	case VerdictSuccess:
		return State{Kind: StateSuccess, N: s.N, Budget: s.Budget}
	case VerdictRetryableTruncation:
		if s.N >= p.MaxEscalations {
			return State{Kind: StateExhausted, N: s.N, Budget: s.Budget}
		}
		next := p.Ladder.Budget(baseline, s.N+1)
		if next > p.Cap {
			return State{Kind: StateCapExceeded, N: s.N, Budget: s.Budget, NextBudget: next}
		}
		return State{Kind: StateAttempting, N: s.N + 1, Budget: next}
	default:
		return State{Kind: StateFailed, N: s.N, Budget: s.Budget}
	}
}
