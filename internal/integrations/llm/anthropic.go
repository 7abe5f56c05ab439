package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"tokenladder/internal/domain"
)

const providerAnthropic = "anthropic"

type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient builds a client with SDK retries disabled; failures
// must reach the escalation classifier untouched. An empty baseURL uses
// the SDK default.
func NewAnthropicClient(apiKey, baseURL string) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(externalHTTPClient),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...)}
}

func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.TokenBudget),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		}
	}

	start := time.Now()
	message, err := c.client.Messages.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		cerr := classifyAnthropicError(err)
		logCompletionError(providerAnthropic, req, cerr, latency)
		return CompletionResult{}, cerr
	}

	res := CompletionResult{
		Usage: LLMUsage{
			InputTokens:              message.Usage.InputTokens,
			OutputTokens:             message.Usage.OutputTokens,
			CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
		},
		RawFinish: string(message.StopReason),
		Finish:    anthropicFinish(string(message.StopReason)),
		Model:     string(message.Model),
		Latency:   latency,
	}
	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	res.Content = text.String()
	logCompletion(providerAnthropic, req, res)
	return res, nil
}

// anthropicFinish translates Anthropic stop reasons into the shared finish
// vocabulary.
func anthropicFinish(stopReason string) FinishReason {
	switch stopReason {
	case "end_turn", "stop_sequence", "tool_use", "pause_turn":
		return domain.FinishStop
	case "max_tokens":
		return domain.FinishLength
	case "refusal":
		return domain.FinishContentFilter
	default:
		return domain.FinishUnknown
	}
}

func classifyAnthropicError(err error) *CompletionError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &CompletionError{
			Kind:       kindForStatus(apiErr.StatusCode),
			Provider:   providerAnthropic,
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	return transportError(providerAnthropic, err)
}
