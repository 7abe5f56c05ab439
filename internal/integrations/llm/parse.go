package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MalformedOutputError reports content that could not be decoded as the
// expected structured output. Raw holds the content exactly as received.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	truncated := e.Raw
	if len(truncated) > 512 {
		truncated = truncated[:512] + fmt.Sprintf("... [truncated, total_length=%d]", len(e.Raw))
	}
	return fmt.Sprintf("parsing LLM response: %v (truncated response: %s)", e.Err, truncated)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}

// ParseJSON decodes a model response into dst, tolerating a surrounding
// markdown code fence.
func ParseJSON(content string, dst any) error {
	text := StripCodeFence(content)
	if text == "" {
		return &MalformedOutputError{Raw: content, Err: fmt.Errorf("empty response")}
	}
	if err := json.Unmarshal([]byte(text), dst); err != nil {
		return &MalformedOutputError{Raw: content, Err: err}
	}
	return nil
}

func StripCodeFence(content string) string {
	text := strings.TrimSpace(content)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
