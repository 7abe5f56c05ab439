package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tokenladder/internal/config"
	"tokenladder/internal/domain"
	"tokenladder/internal/escalation"
	"tokenladder/internal/integrations/llm"
	"tokenladder/internal/prompts"
)

// Store is the persistence the runner needs: learned baselines and history.
type Store interface {
	escalation.BaselineStore
	GetBaseline(ctx context.Context, promptName string, defaultBudget int) (int, error)
	InsertEscalationRun(ctx context.Context, run domain.EscalationRun) (int64, error)
}

type Alerter interface {
	NotifyRun(run domain.EscalationRun) error
}

type Result struct {
	Run    domain.EscalationRun
	Output string
	Err    error
}

type Runner struct {
	cfg     config.Config
	client  llm.Client
	ctrl    *escalation.Controller
	store   Store
	catalog *prompts.Catalog
	alerts  Alerter

	now   func() time.Time
	newID func() string
}

// NewController builds the escalation controller from configuration.
func NewController(cfg config.Config, store escalation.BaselineStore, opts ...escalation.Option) (*escalation.Controller, error) {
	return escalation.NewController(escalation.Config{
		Policy: escalation.Policy{
			Cap:            cfg.EscalationTokenCap,
			MaxEscalations: cfg.Escalations(),
			Ladder:         escalation.Ladder{Deltas: cfg.EscalationDeltas},
		},
		Classifier: escalation.Classifier{
			MinFragmentChars:  cfg.MinFragmentChars(),
			RequireUnbalanced: cfg.RequireUnbalanced(),
		},
	}, store, opts...)
}

// New wires a runner. alerts may be nil.
func New(cfg config.Config, client llm.Client, ctrl *escalation.Controller, store Store, catalog *prompts.Catalog, alerts Alerter) *Runner {
	return &Runner{
		cfg:     cfg,
		client:  client,
		ctrl:    ctrl,
		store:   store,
		catalog: catalog,
		alerts:  alerts,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Run executes one catalog prompt through the escalation ladder, records the
// run in history and alerts when the ladder ran out. The returned error is
// the escalation error, if any.
func (r *Runner) Run(ctx context.Context, promptName, input string) (Result, error) {
	p, ok := r.catalog.Get(promptName)
	if !ok {
		return Result{}, fmt.Errorf("unknown prompt %q", promptName)
	}

	// A learned baseline only ever raises the configured starting budget.
	fallback := p.Baseline(r.cfg.DefaultBaselineTokens)
	learned, err := r.store.GetBaseline(ctx, p.Name, fallback)
	if err != nil {
		log.Printf("runner baseline lookup failed prompt=%s default=%d err=%v", p.Name, fallback, err)
		learned = fallback
	}
	baseline := max(learned, fallback)

	ec := domain.EscalationContext{
		PromptName:          p.Name,
		BaselineTokenBudget: baseline,
		CorrelationID:       r.newID(),
	}
	log.Printf("runner start prompt=%s correlation_id=%s baseline=%d format=%s", p.Name, ec.CorrelationID, baseline, p.Format)

	runCtx := ctx
	if timeout := r.cfg.RunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var usage domain.LLMUsage
	started := r.now()
	outcome, runErr := escalation.Escalate(runCtx, r.ctrl, r.operation(p, p.Render(input), &usage), ec)
	finished := r.now()

	run := domain.EscalationRun{
		CorrelationID:  ec.CorrelationID,
		PromptName:     p.Name,
		BaselineTokens: baseline,
		FinalTokens:    outcome.FinalTokenBudget,
		Attempts:       outcome.Attempts,
		Escalations:    outcome.EscalationsUsed,
		Outcome:        outcomeOf(runErr),
		Finish:         outcome.Finish,
		InputTokens:    usage.InputTokens,
		OutputTokens:   usage.OutputTokens,
		StartedAt:      started,
		FinishedAt:     finished,
	}
	if runErr != nil {
		run.ErrorText = runErr.Error()
	}

	// History and alerts outlive a cancelled run context.
	histCtx := context.WithoutCancel(ctx)
	if id, err := r.store.InsertEscalationRun(histCtx, run); err != nil {
		log.Printf("runner history insert failed prompt=%s correlation_id=%s err=%v", p.Name, ec.CorrelationID, err)
	} else {
		run.ID = id
	}
	if r.alerts != nil {
		if err := r.alerts.NotifyRun(run); err != nil {
			log.Printf("runner alert failed prompt=%s correlation_id=%s err=%v", p.Name, ec.CorrelationID, err)
		}
	}

	log.Printf("runner done prompt=%s correlation_id=%s outcome=%s attempts=%d final_budget=%d tokens_out=%d duration=%s",
		p.Name, ec.CorrelationID, run.Outcome, run.Attempts, run.FinalTokens, run.OutputTokens, run.Duration().Round(time.Millisecond))

	return Result{Run: run, Output: outcome.Result, Err: runErr}, runErr
}

// RunAll runs every named prompt with at most run_concurrency in flight.
// Results keep the order of names; the error joins every failed run.
func (r *Runner) RunAll(ctx context.Context, names []string, input string) ([]Result, error) {
	results := make([]Result, len(names))
	var g errgroup.Group
	g.SetLimit(r.cfg.RunConcurrency)
	for i, name := range names {
		g.Go(func() error {
			res, err := r.Run(ctx, name, input)
			if res.Run.PromptName == "" {
				res.Run.PromptName = name
			}
			res.Err = err
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Run.PromptName, res.Err))
		}
	}
	return results, errors.Join(errs...)
}

// Wait joins baseline writes started by finished runs.
func (r *Runner) Wait() {
	r.ctrl.Wait()
}

func (r *Runner) operation(p prompts.Prompt, rendered string, usage *domain.LLMUsage) escalation.Operation[string] {
	return func(ctx context.Context, tokenBudget int) (string, domain.FinishReason, error) {
		res, err := r.client.Complete(ctx, domain.CompletionRequest{
			System:      p.System,
			Prompt:      rendered,
			TokenBudget: tokenBudget,
			Model:       r.cfg.LLMModel,
			Temperature: r.cfg.Temperature(),
		})
		usage.Add(res.Usage)
		if err != nil {
			return "", res.Finish, err
		}
		if p.Format != prompts.FormatJSON || res.Finish == domain.FinishLength || res.Finish == domain.FinishContentFilter {
			return res.Content, res.Finish, nil
		}
		var raw json.RawMessage
		if err := llm.ParseJSON(res.Content, &raw); err != nil {
			return "", res.Finish, err
		}
		return string(raw), res.Finish, nil
	}
}

func outcomeOf(err error) domain.RunOutcome {
	if err == nil {
		return domain.RunSuccess
	}
	var escErr *escalation.Error
	if errors.As(err, &escErr) {
		switch escErr.State {
		case escalation.StateExhausted:
			return domain.RunExhausted
		case escalation.StateCapExceeded:
			return domain.RunCapExceeded
		}
	}
	return domain.RunFailed
}
