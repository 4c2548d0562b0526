package domain

import "errors"

var (
	// ErrMissingAPIKey is returned when no usable AI credential remains after rotation.
	// Callers surface it as a prompt to configure credentials.
	ErrMissingAPIKey = errors.New("MISSING_API_KEY: no usable AI credential available")

	// ErrMalformedResponse is returned when the AI service answers with text that is not the requested JSON
	ErrMalformedResponse = errors.New("malformed AI response")

	// ErrExtractionFailed is returned when extraction gives up after its retry budget
	ErrExtractionFailed = errors.New("product extraction failed")

	// ErrClassificationFailed is returned when an AI classification batch gives up after retries
	ErrClassificationFailed = errors.New("AI classification failed")

	// ErrStoreSearchTimeout is returned when a store-search call exceeds its wall-clock budget
	ErrStoreSearchTimeout = errors.New("store search timed out")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrSourceOutOfRange is returned when a source index does not refer to a configured source
	ErrSourceOutOfRange = errors.New("source index out of range")

	// ErrRunInProgress is returned when a pipeline run is started while another one is active
	ErrRunInProgress = errors.New("a pipeline run is already in progress")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")

	// ErrStateNotFound is returned when a persisted state key has never been written
	ErrStateNotFound = errors.New("persisted state not found")

	// ErrUnsupportedSchema is returned when persisted state was written by a newer schema version
	ErrUnsupportedSchema = errors.New("unsupported persisted state schema version")
)
