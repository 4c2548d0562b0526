package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
)

// IsRotatable reports whether err means the current credential is unusable right now:
// quota exhausted, rejected key, or the credential's circuit breaker is open.
func IsRotatable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}

	switch statusCode(err) {
	case http.StatusTooManyRequests, http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "API key")
}

// IsRetryable reports whether a non-rotatable error is worth another attempt.
// Missing credentials and cancellation are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrMissingAPIKey) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
