package usecase

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/catalog"
	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
	"github.com/SIRP996/cao-du-lieu-sub000/internal/infrastructure/llm"
)

const classificationSystemPrompt = `You map noisy Vietnamese e-commerce product titles to an official product catalog.
For every input title return an entry keyed by the exact input title:
{"<title>": {"canonicalName": "...", "bundleLabel": "...", "categoryTop": "...", "categorySub": "..."}}
Rules:
- canonicalName is the catalog name the title refers to. Keep the title unchanged when nothing in the catalog matches.
- bundleLabel is "Lẻ" for a single unit, "Combo N" for N units of one product, "Combo N" with N distinct products for mixed sets.
- For bundles prefix canonicalName with "Combo N " and use categoryTop "Combo", categorySub "Bộ sản phẩm".
- For mixed sets join the catalog names, sorted alphabetically, with " + ".
- Use "Khác" for unknown categories.`

// StopSignal reports whether the user asked the current run to stop
type StopSignal func() bool

// AIClassifierConfig holds configuration for the AI classifier
type AIClassifierConfig struct {
	Model       string
	BatchSize   int
	BatchDelay  time.Duration
	MaxAttempts int
	RetryDelay  time.Duration // base backoff and rotation pause; zero keeps the defaults
	CacheTTL    time.Duration
}

// AIClassifier classifies raw names with the AI service, in sequential batches,
// falling back to the MatchingService for anything the service does not answer.
type AIClassifier struct {
	keys        llm.Rotator
	cache       domain.CacheRepository
	fallback    *MatchingService
	catalogText string
	catalogTag  string
	model       string
	batchSize   int
	batchDelay  time.Duration
	cacheTTL    time.Duration
	policy      llm.Policy
	log         zerolog.Logger
}

// NewAIClassifier creates a new AI classifier. cache may be nil.
func NewAIClassifier(
	keys llm.Rotator,
	cache domain.CacheRepository,
	fallback *MatchingService,
	cat *catalog.Catalog,
	config AIClassifierConfig,
	log zerolog.Logger,
) *AIClassifier {
	if cat == nil {
		cat = catalog.Default()
	}

	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	cacheTTL := config.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 7 * 24 * time.Hour
	}

	policy := llm.DefaultPolicy()
	policy.MaxAttempts = 3
	if config.MaxAttempts > 0 {
		policy.MaxAttempts = config.MaxAttempts
	}
	if config.RetryDelay > 0 {
		policy.BaseBackoff = config.RetryDelay
		policy.RotateDelay = config.RetryDelay
	}

	logger := log.With().Str("component", "classifier").Logger()
	policy.OnRetry = func(attempt int, err error, rotated bool) {
		logger.Warn().Err(err).Int("attempt", attempt).Bool("rotated", rotated).Msg("classification attempt failed, retrying")
	}

	entries := cat.Entries()
	catalogText := "- " + strings.Join(entries, "\n- ")

	return &AIClassifier{
		keys:        keys,
		cache:       cache,
		fallback:    fallback,
		catalogText: catalogText,
		catalogTag:  fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(catalogText))),
		model:       config.Model,
		batchSize:   batchSize,
		batchDelay:  config.BatchDelay,
		cacheTTL:    cacheTTL,
		policy:      policy,
		log:         logger,
	}
}

// ClassifyBatch returns a classification for every distinct name in rawNames.
//
// Names are sent in sequential batches with a fixed delay between AI calls. A batch
// that fails after its retries, names missing from a reply, and every batch left when
// stop reports true are classified by the fallback matcher instead. When credentials
// run out the remaining names are still classified by the fallback and
// domain.ErrMissingAPIKey is returned together with the complete result.
func (c *AIClassifier) ClassifyBatch(ctx context.Context, rawNames []string, stop StopSignal) (map[string]domain.ClassificationResult, error) {
	names := uniqueNames(rawNames)
	results := make(map[string]domain.ClassificationResult, len(names))

	var runErr error
	aiEnabled := true
	calledAI := false

	for start := 0; start < len(names); start += c.batchSize {
		end := start + c.batchSize
		if end > len(names) {
			end = len(names)
		}
		batch := names[start:end]

		if aiEnabled && stop != nil && stop() {
			c.log.Info().Int("remaining", len(names)-start).Msg("stop requested, classifying the rest locally")
			aiEnabled = false
		}
		if aiEnabled && ctx.Err() != nil {
			runErr = ctx.Err()
			aiEnabled = false
		}
		if !aiEnabled {
			c.classifyLocally(batch, results)
			continue
		}

		pending := c.fromCache(ctx, batch, results)
		if len(pending) == 0 {
			continue
		}

		if calledAI && c.batchDelay > 0 {
			if err := sleepContext(ctx, c.batchDelay); err != nil {
				runErr = err
				aiEnabled = false
				c.classifyLocally(pending, results)
				continue
			}
		}

		calledAI = true
		answered, err := c.requestBatch(ctx, pending)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrMissingAPIKey):
				c.log.Error().Err(err).Msg("credentials exhausted, classifying the rest locally")
				runErr = err
				aiEnabled = false
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				runErr = err
				aiEnabled = false
			default:
				c.log.Warn().Err(err).Int("batch_size", len(pending)).Msg("batch failed, using local classifier")
			}
			c.classifyLocally(pending, results)
			continue
		}

		for _, name := range pending {
			res, ok := lookupAnswer(answered, name)
			if !ok {
				results[name] = c.fallback.Classify(name)
				continue
			}
			results[name] = res
			c.toCache(ctx, name, res)
		}
	}

	return results, runErr
}

// Forget evicts cached answers for rawNames so the next ClassifyBatch asks the AI again.
// It returns how many cached answers were removed.
func (c *AIClassifier) Forget(ctx context.Context, rawNames []string) int {
	if c.cache == nil {
		return 0
	}

	evicted := 0
	for _, name := range uniqueNames(rawNames) {
		key := c.cacheKey(name)
		exists, err := c.cache.Exists(ctx, key)
		if err != nil || !exists {
			continue
		}
		if err := c.cache.Delete(ctx, key); err != nil {
			c.log.Debug().Err(err).Msg("classification cache delete failed")
			continue
		}
		evicted++
	}
	return evicted
}

func (c *AIClassifier) requestBatch(ctx context.Context, names []string) (map[string]domain.ClassificationResult, error) {
	list, err := json.Marshal(names)
	if err != nil {
		return nil, err
	}

	req := llm.Request{
		Model:  c.model,
		System: classificationSystemPrompt,
		Prompt: "Catalog:\n" + c.catalogText + "\n\nTitles (JSON array):\n" + string(list),
	}

	var answered map[string]domain.ClassificationResult
	err = llm.WithRetry(ctx, c.keys, c.policy, func(ctx context.Context, client llm.Completer) error {
		text, err := client.Complete(ctx, req)
		if err != nil {
			return err
		}
		parsed, err := llm.ParseClassification(text)
		if err != nil {
			return err
		}
		answered = parsed
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrMissingAPIKey) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrClassificationFailed, err)
	}
	return answered, nil
}

func (c *AIClassifier) classifyLocally(names []string, results map[string]domain.ClassificationResult) {
	for _, name := range names {
		results[name] = c.fallback.Classify(name)
	}
}

// fromCache fills results from the cache and returns the names still unanswered
func (c *AIClassifier) fromCache(ctx context.Context, names []string, results map[string]domain.ClassificationResult) []string {
	if c.cache == nil {
		return names
	}

	pending := make([]string, 0, len(names))
	for _, name := range names {
		var res domain.ClassificationResult
		err := c.cache.Get(ctx, c.cacheKey(name), &res)
		if err == nil && res.CanonicalName != "" {
			results[name] = res
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrCacheMiss) {
			c.log.Debug().Err(err).Msg("classification cache read failed")
		}
		pending = append(pending, name)
	}
	return pending
}

func (c *AIClassifier) toCache(ctx context.Context, name string, res domain.ClassificationResult) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, c.cacheKey(name), res, c.cacheTTL); err != nil {
		c.log.Debug().Err(err).Msg("classification cache write failed")
	}
}

// cacheKey is scoped to the catalog so editing the catalog invalidates old answers.
// Format: "classify:{catalog_crc}:{normalized_name}"
func (c *AIClassifier) cacheKey(name string) string {
	return "classify:" + c.catalogTag + ":" + Normalize(name)
}

// lookupAnswer finds the reply for name, tolerating models that echo the title
// with different casing, spacing or diacritics
func lookupAnswer(answered map[string]domain.ClassificationResult, name string) (domain.ClassificationResult, bool) {
	if res, ok := answered[name]; ok && res.CanonicalName != "" {
		return res, true
	}
	want := Normalize(name)
	for key, res := range answered {
		if res.CanonicalName != "" && Normalize(key) == want {
			return res, true
		}
	}
	return domain.ClassificationResult{}, false
}

// uniqueNames trims names and drops blanks and duplicates, keeping first-seen order
func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
