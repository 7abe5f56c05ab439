package escalation

import (
	"errors"

	"tokenladder/internal/domain"
	"tokenladder/internal/integrations/llm"
)

type Verdict int

const (
	VerdictSuccess Verdict = iota
	VerdictRetryableTruncation
	VerdictNonRetryable
)

func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictRetryableTruncation:
		return "retryable_truncation"
	case VerdictNonRetryable:
		return "non_retryable"
	default:
		return "unknown"
	}
}

type Classifier struct {
	// MinFragmentChars is the shortest malformed output still treated as a
	// cut-off fragment rather than an empty or garbage response.
	MinFragmentChars int
	// RequireUnbalanced additionally requires a malformed fragment to end
	// inside an open string, object or array.
	RequireUnbalanced bool
}

// Classify decides the fate of one attempt from its finish reason and error.
func (c Classifier) Classify(finish domain.FinishReason, err error) Verdict {
	var malformed *llm.MalformedOutputError
	isMalformed := errors.As(err, &malformed)

	switch {
	case err != nil && !isMalformed:
		return VerdictNonRetryable
	case finish == domain.FinishLength:
		return VerdictRetryableTruncation
	case finish == domain.FinishContentFilter:
		// Withheld by policy; more tokens will not change that.
		return VerdictSuccess
	case isMalformed:
		if c.isTruncatedFragment(malformed.Raw) {
			return VerdictRetryableTruncation
		}
		return VerdictNonRetryable
	default:
		return VerdictSuccess
	}
}

func (c Classifier) isTruncatedFragment(raw string) bool {
	text := llm.StripCodeFence(raw)
	if text == "" || len(text) < c.MinFragmentChars {
		return false
	}
	if c.RequireUnbalanced {
		return endsUnbalanced(text)
	}
	return true
}

// endsUnbalanced reports whether JSON-ish text stops inside a string or
// with unclosed brackets.
func endsUnbalanced(text string) bool {
	depth := 0
	inString := false
	escaped := false
	for _, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
	}
	return inString || depth > 0
}

// FailureKind names the non-retryable failure class of err.
func FailureKind(err error) llm.ErrorKind {
	if err == nil {
		return ""
	}
	if kind := llm.KindOf(err); kind != "" {
		return kind
	}
	var malformed *llm.MalformedOutputError
	if errors.As(err, &malformed) {
		return llm.ErrorUnknown
	}
	if isContextDone(err) {
		return llm.ErrorTransport
	}
	return llm.ErrorUnknown
}
