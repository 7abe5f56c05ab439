package llm

import (
	"tokenladder/internal/domain"
	"tokenladder/internal/httpx"
)

type CompletionRequest = domain.CompletionRequest
type CompletionResult = domain.CompletionResult
type FinishReason = domain.FinishReason
type LLMUsage = domain.LLMUsage

var externalHTTPClient = httpx.ExternalHTTPClient()
