package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tokenladder/internal/domain"
)

const providerOpenAI = "openai"

type OpenAIClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    externalHTTPClient,
	}
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *openAIError `json:"error"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	start := time.Now()
	res, err := c.complete(ctx, req)
	res.Latency = time.Since(start)
	if err != nil {
		logCompletionError(providerOpenAI, req, err, res.Latency)
		return CompletionResult{}, err
	}
	logCompletion(providerOpenAI, req, res)
	return res, nil
}

func (c *OpenAIClient) complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	reqBody := openAIRequest{
		Model:       req.Model,
		MaxTokens:   req.TokenBudget,
		Temperature: req.Temperature,
	}
	if strings.TrimSpace(req.System) != "" {
		reqBody.Messages = append(reqBody.Messages, openAIMessage{Role: "system", Content: req.System})
	}
	reqBody.Messages = append(reqBody.Messages, openAIMessage{Role: "user", Content: req.Prompt})

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return CompletionResult{}, &CompletionError{Kind: ErrorUnknown, Provider: providerOpenAI, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return CompletionResult{}, &CompletionError{Kind: ErrorUnknown, Provider: providerOpenAI, Err: fmt.Errorf("creating request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return CompletionResult{}, transportError(providerOpenAI, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResult{}, transportError(providerOpenAI, fmt.Errorf("reading response: %w", err))
	}

	var parsed openAIResponse
	decodeErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(respBody))
		kind := kindForStatus(resp.StatusCode)
		if decodeErr == nil && parsed.Error != nil {
			msg = parsed.Error.Message
			if isOpenAIPolicyError(parsed.Error) {
				kind = ErrorPolicyFilter
			}
		}
		return CompletionResult{}, &CompletionError{
			Kind:       kind,
			Provider:   providerOpenAI,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("OpenAI API error: %s", msg),
		}
	}
	if decodeErr != nil {
		return CompletionResult{}, &CompletionError{Kind: ErrorUnknown, Provider: providerOpenAI, StatusCode: resp.StatusCode, Err: fmt.Errorf("parsing OpenAI response: %w", decodeErr)}
	}
	if parsed.Error != nil {
		return CompletionResult{}, &CompletionError{Kind: ErrorUnknown, Provider: providerOpenAI, StatusCode: resp.StatusCode, Err: fmt.Errorf("OpenAI API error: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return CompletionResult{}, &CompletionError{Kind: ErrorUnknown, Provider: providerOpenAI, StatusCode: resp.StatusCode, Err: fmt.Errorf("no choices in OpenAI response")}
	}

	choice := parsed.Choices[0]
	res := CompletionResult{
		Content:   choice.Message.Content,
		RawFinish: choice.FinishReason,
		Finish:    domain.ParseFinishReason(choice.FinishReason),
		Model:     parsed.Model,
	}
	if parsed.Usage != nil {
		res.Usage.InputTokens = parsed.Usage.PromptTokens
		res.Usage.OutputTokens = parsed.Usage.CompletionTokens
	}
	return res, nil
}

func isOpenAIPolicyError(e *openAIError) bool {
	return e.Code == "content_policy_violation" || e.Code == "content_filter"
}
