package domain

import "time"

// FinishReason is the provider-reported reason a completion ended.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishUnknown       FinishReason = "unknown"
)

// ParseFinishReason maps a raw string onto the finish taxonomy. Anything
// outside it is FinishUnknown.
func ParseFinishReason(s string) FinishReason {
	switch FinishReason(s) {
	case FinishStop, FinishLength, FinishContentFilter:
		return FinishReason(s)
	default:
		return FinishUnknown
	}
}

type CompletionRequest struct {
	System      string
	Prompt      string
	TokenBudget int
	Model       string
	Temperature float64
}

type CompletionResult struct {
	Content   string
	Usage     LLMUsage
	Finish    FinishReason
	RawFinish string // verbatim provider value, e.g. "max_tokens"
	Model     string
	Latency   time.Duration
}

type LLMUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u LLMUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *LLMUsage) Add(other LLMUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}
