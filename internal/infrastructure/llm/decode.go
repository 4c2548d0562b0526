package llm

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
)

// DecodeJSON decodes an AI response into dest. Models sometimes wrap JSON in
// markdown fences or surround it with prose, so both are stripped before giving up.
// Every failure wraps domain.ErrMalformedResponse.
func DecodeJSON(text string, dest interface{}) error {
	cleaned := stripCodeFence(text)
	if cleaned == "" {
		return fmt.Errorf("%w: empty response", domain.ErrMalformedResponse)
	}

	err := json.Unmarshal([]byte(cleaned), dest)
	if err == nil {
		return nil
	}

	span, ok := jsonSpan(cleaned)
	if !ok {
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if err := json.Unmarshal([]byte(span), dest); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// jsonSpan returns the text from the first opening bracket to the last matching closing one
func jsonSpan(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}
