package escalation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"tokenladder/internal/domain"
)

// Operation performs one attempt at the given token budget.
type Operation[T any] func(ctx context.Context, tokenBudget int) (T, domain.FinishReason, error)

// BaselineStore receives the budget that finally succeeded for a prompt.
type BaselineStore interface {
	UpdateBaseline(ctx context.Context, promptName string, newBudget int, reason, correlationID string) error
}

type AttemptRecord struct {
	PromptName    string
	CorrelationID string
	Attempt       int // 1-based
	TokenBudget   int
	Finish        domain.FinishReason
	Verdict       Verdict
	Next          State
	Err           error
}

type Config struct {
	Policy     Policy
	Classifier Classifier
}

type Controller struct {
	policy     Policy
	classifier Classifier
	store      BaselineStore
	observers  []func(AttemptRecord)

	pending sync.WaitGroup
}

type Option func(*Controller)

// WithObserver registers fn to be called synchronously after every attempt.
func WithObserver(fn func(AttemptRecord)) Option {
	return func(c *Controller) {
		c.observers = append(c.observers, fn)
	}
}

// NewController validates cfg. store may be nil, in which case nothing is
// learned.
func NewController(cfg Config, store BaselineStore, opts ...Option) (*Controller, error) {
	if err := cfg.Policy.validate(); err != nil {
		return nil, err
	}
	if cfg.Classifier.MinFragmentChars < 0 {
		return nil, fmt.Errorf("min fragment chars must be >= 0, got %d", cfg.Classifier.MinFragmentChars)
	}
	c := &Controller{
		policy:     cfg.Policy,
		classifier: cfg.Classifier,
		store:      store,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Controller) Policy() Policy {
	return c.policy
}

// Wait blocks until pending baseline writes finish. Escalate never calls it.
func (c *Controller) Wait() {
	c.pending.Wait()
}

// Escalate runs op at increasing budgets until it completes, fails for a
// reason more tokens cannot fix, or runs out of attempts or headroom. A
// baseline above the cap fails before any attempt.
func Escalate[T any](ctx context.Context, c *Controller, op Operation[T], ec domain.EscalationContext) (domain.EscalationOutcome[T], error) {
	var outcome domain.EscalationOutcome[T]
	if ec.BaselineTokenBudget < 1 {
		return outcome, fmt.Errorf("prompt %q: baseline token budget must be >= 1, got %d (correlation_id=%s)",
			ec.PromptName, ec.BaselineTokenBudget, ec.CorrelationID)
	}

	baseline := ec.BaselineTokenBudget
	if baseline > c.policy.Cap {
		log.Printf("escalation cap exceeded prompt=%s correlation_id=%s attempts=0 baseline=%d cap=%d",
			ec.PromptName, ec.CorrelationID, baseline, c.policy.Cap)
		return outcome, &Error{
			State:         StateCapExceeded,
			PromptName:    ec.PromptName,
			CorrelationID: ec.CorrelationID,
			NextBudget:    baseline,
			Cap:           c.policy.Cap,
		}
	}
	state := c.policy.Start(baseline)
	for {
		budget := state.Budget
		result, finish, err := op(ctx, budget)
		verdict := c.classifier.Classify(finish, err)
		next := c.policy.Step(state, verdict, baseline)

		outcome.Attempts = state.N + 1
		outcome.EscalationsUsed = state.N
		outcome.FinalTokenBudget = budget
		outcome.Finish = finish
		c.observe(AttemptRecord{
			PromptName:    ec.PromptName,
			CorrelationID: ec.CorrelationID,
			Attempt:       state.N + 1,
			TokenBudget:   budget,
			Finish:        finish,
			Verdict:       verdict,
			Next:          next,
			Err:           err,
		})

		switch next.Kind {
		case StateAttempting:
			log.Printf("escalation truncated prompt=%s correlation_id=%s attempt=%d budget=%d next_budget=%d finish=%s",
				ec.PromptName, ec.CorrelationID, state.N+1, budget, next.Budget, finish)
			state = next
			continue

		case StateSuccess:
			if finish == domain.FinishContentFilter {
				var empty T
				result = empty
				log.Printf("escalation withheld prompt=%s correlation_id=%s attempt=%d budget=%d",
					ec.PromptName, ec.CorrelationID, state.N+1, budget)
			}
			outcome.Result = result
			if state.N > 0 {
				log.Printf("escalation recovered prompt=%s correlation_id=%s escalations=%d baseline=%d final_budget=%d",
					ec.PromptName, ec.CorrelationID, state.N, baseline, budget)
				c.learn(ctx, ec, budget, state.N)
			}
			return outcome, nil

		case StateExhausted:
			log.Printf("escalation exhausted prompt=%s correlation_id=%s attempts=%d final_budget=%d",
				ec.PromptName, ec.CorrelationID, state.N+1, budget)
			return outcome, &Error{
				State:         StateExhausted,
				PromptName:    ec.PromptName,
				CorrelationID: ec.CorrelationID,
				Attempts:      state.N + 1,
				LastBudget:    budget,
				Cap:           c.policy.Cap,
				Err:           err,
			}

		case StateCapExceeded:
			log.Printf("escalation cap exceeded prompt=%s correlation_id=%s attempts=%d budget=%d next_budget=%d cap=%d",
				ec.PromptName, ec.CorrelationID, state.N+1, budget, next.NextBudget, c.policy.Cap)
			return outcome, &Error{
				State:         StateCapExceeded,
				PromptName:    ec.PromptName,
				CorrelationID: ec.CorrelationID,
				Attempts:      state.N + 1,
				LastBudget:    budget,
				NextBudget:    next.NextBudget,
				Cap:           c.policy.Cap,
				Err:           err,
			}

		default:
			if err == nil {
				err = errors.New("completion failed without an error")
			}
			log.Printf("escalation failed prompt=%s correlation_id=%s attempts=%d budget=%d err=%v",
				ec.PromptName, ec.CorrelationID, state.N+1, budget, err)
			return outcome, &Error{
				State:         StateFailed,
				Kind:          FailureKind(err),
				PromptName:    ec.PromptName,
				CorrelationID: ec.CorrelationID,
				Attempts:      state.N + 1,
				LastBudget:    budget,
				Cap:           c.policy.Cap,
				Err:           err,
			}
		}
	}
}

func (c *Controller) observe(rec AttemptRecord) {
	for _, fn := range c.observers {
		fn(rec)
	}
}

// learn records the successful budget in the background. The caller's
// result never waits on it and never sees its error.
func (c *Controller) learn(ctx context.Context, ec domain.EscalationContext, budget, escalations int) {
	if c.store == nil || ec.PromptName == "" {
		return
	}
	reason := fmt.Sprintf("completed after %d escalation(s) from baseline %d", escalations, ec.BaselineTokenBudget)
	storeCtx := context.WithoutCancel(ctx)

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("escalation baseline update panic prompt=%s correlation_id=%s panic=%v", ec.PromptName, ec.CorrelationID, r)
			}
		}()
		if err := c.store.UpdateBaseline(storeCtx, ec.PromptName, budget, reason, ec.CorrelationID); err != nil {
			log.Printf("escalation baseline update failed prompt=%s correlation_id=%s budget=%d err=%v", ec.PromptName, ec.CorrelationID, budget, err)
			return
		}
		log.Printf("escalation baseline updated prompt=%s correlation_id=%s budget=%d", ec.PromptName, ec.CorrelationID, budget)
	}()
}
