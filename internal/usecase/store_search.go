package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
	"github.com/SIRP996/cao-du-lieu-sub000/internal/infrastructure/llm"
)

const storeSearchSystemPrompt = `You find physical retail stores that sell a given cosmetics product in Vietnam.
Search the web and maps for the location given. Return {"stores":[{"name","address","phone","mapsUrl"}]}.
Only include stores with a concrete street address. Return {"stores":[]} when nothing is found.`

// StoreSearchConfig holds configuration for the store search service
type StoreSearchConfig struct {
	Models     []string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// StoreSearchService looks up physical stores region by region.
// Retries move to the next model in the list rather than the next credential.
type StoreSearchService struct {
	keys       llm.Rotator
	models     []string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewStoreSearchService creates a new store search service
func NewStoreSearchService(keys llm.Rotator, config StoreSearchConfig, log zerolog.Logger) *StoreSearchService {
	models := make([]string, 0, len(config.Models))
	for _, m := range config.Models {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	if len(models) == 0 {
		models = []string{""} // client default model
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	maxRetries := config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &StoreSearchService{
		keys:       keys,
		models:     models,
		timeout:    timeout,
		maxRetries: maxRetries,
		retryDelay: config.RetryDelay,
		log:        log.With().Str("component", "store_search").Logger(),
	}
}

// Search runs SearchRegion for each region in order, checking stop before each one.
// Failed regions are skipped; credential exhaustion ends the loop and is returned
// together with the stores found so far.
func (s *StoreSearchService) Search(ctx context.Context, product string, regions []string, stop StopSignal) ([]domain.StoreRecord, error) {
	product = strings.TrimSpace(product)
	if product == "" {
		return nil, fmt.Errorf("%w: product name is required", domain.ErrInvalidRequest)
	}

	seen := make(map[string]bool)
	stores := make([]domain.StoreRecord, 0)

	for _, region := range regions {
		region = strings.TrimSpace(region)
		if region == "" {
			continue
		}
		if stop != nil && stop() {
			s.log.Info().Str("product", product).Msg("store search stopped")
			break
		}

		found, err := s.SearchRegion(ctx, product, region)
		if err != nil {
			if errors.Is(err, domain.ErrMissingAPIKey) || errors.Is(err, context.Canceled) {
				return stores, err
			}
			s.log.Warn().Err(err).Str("region", region).Msg("region search failed, skipping")
			continue
		}

		for _, st := range found {
			key := Normalize(st.Name) + "|" + Normalize(st.Address)
			if seen[key] {
				continue
			}
			seen[key] = true
			stores = append(stores, st)
		}
	}

	return stores, nil
}

// SearchRegion asks the AI service for stores in one region. Each attempt races a
// wall-clock timeout; attempts cycle through the configured models.
func (s *StoreSearchService) SearchRegion(ctx context.Context, product, region string) ([]domain.StoreRecord, error) {
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 && s.retryDelay > 0 {
			if err := sleepContext(ctx, s.retryDelay); err != nil {
				return nil, err
			}
		}

		client, err := s.keys.CurrentClient()
		if err != nil {
			return nil, err
		}

		model := s.models[attempt%len(s.models)]
		text, err := s.completeWithTimeout(ctx, client, llm.Request{
			Model:  model,
			System: storeSearchSystemPrompt,
			Prompt: fmt.Sprintf("Product: %s\nLocation: %s, Việt Nam", product, region),
		})
		if err == nil {
			var stores []domain.StoreRecord
			stores, err = parseStores(text, region)
			if err == nil {
				s.log.Debug().Str("region", region).Str("model", model).Int("stores", len(stores)).Msg("region searched")
				return stores, nil
			}
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}

		lastErr = err
		s.log.Warn().Err(err).Str("region", region).Str("model", model).Int("attempt", attempt+1).Msg("store search attempt failed")
	}

	return nil, lastErr
}

// completeWithTimeout returns domain.ErrStoreSearchTimeout if the call outlives s.timeout,
// whether or not the client honors context cancellation
func (s *StoreSearchService) completeWithTimeout(ctx context.Context, client llm.Completer, req llm.Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := client.Complete(callCtx, req)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%w after %s", domain.ErrStoreSearchTimeout, s.timeout)
		}
		return r.text, r.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w after %s", domain.ErrStoreSearchTimeout, s.timeout)
	}
}

// parseStores accepts {"stores":[...]} or a bare array and stamps the region on each record
func parseStores(text, region string) ([]domain.StoreRecord, error) {
	var stores []domain.StoreRecord

	cleaned := strings.TrimSpace(text)
	if start := strings.IndexAny(cleaned, "{["); start >= 0 && cleaned[start] == '[' {
		if err := llm.DecodeJSON(cleaned, &stores); err != nil {
			return nil, err
		}
	} else {
		var payload struct {
			Stores []domain.StoreRecord `json:"stores"`
		}
		if err := llm.DecodeJSON(cleaned, &payload); err != nil {
			return nil, err
		}
		stores = payload.Stores
	}

	out := make([]domain.StoreRecord, 0, len(stores))
	for _, st := range stores {
		st.Name = strings.TrimSpace(st.Name)
		st.Address = strings.TrimSpace(st.Address)
		if st.Name == "" || st.Address == "" {
			continue
		}
		st.Region = region
		out = append(out, st)
	}
	return out, nil
}
