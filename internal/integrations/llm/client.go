package llm

import (
	"context"
	"fmt"
	"log"
	"time"

	"tokenladder/internal/config"
)

// Client issues one bounded completion request per call.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// NewClient returns the client for the configured provider.
func NewClient(cfg config.Config) (Client, error) {
	switch cfg.LLMProvider {
	case "openai":
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	case "anthropic":
		return NewAnthropicClient(cfg.AnthropicAPIKey, ""), nil
	default:
		return nil, fmt.Errorf("unsupported llm_provider %q", cfg.LLMProvider)
	}
}

func logCompletion(provider string, req CompletionRequest, res CompletionResult) {
	log.Printf("llm %s response model=%s budget=%d size=%d finish=%s raw_finish=%s tokens_in=%d tokens_out=%d latency=%s",
		provider, req.Model, req.TokenBudget, len(res.Content), res.Finish, res.RawFinish,
		res.Usage.InputTokens, res.Usage.OutputTokens, res.Latency.Round(time.Millisecond))
}

func logCompletionError(provider string, req CompletionRequest, err error, latency time.Duration) {
	log.Printf("llm %s error model=%s budget=%d latency=%s err=%v",
		provider, req.Model, req.TokenBudget, latency.Round(time.Millisecond), err)
}
