package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
	"github.com/SIRP996/cao-du-lieu-sub000/internal/infrastructure/htmlclean"
	"github.com/SIRP996/cao-du-lieu-sub000/internal/infrastructure/llm"
)

const extractionSystemPrompt = `You extract product listings from e-commerce HTML.
Return every distinct product that is offered for sale on the page as {"products":[{"name","price","productUrl"}]}.
- name: the product title exactly as shown, without shop names or promotional prefixes in brackets.
- price: the current selling price in VND as a plain number (150.000đ -> 150000). Use 0 when no price is shown.
- productUrl: the link to the product detail page, copied from href as-is. Use "" when there is none.
Ignore navigation, recommendations, vouchers and shipping banners.`

// extractionSchema is the structured-output constraint sent with every extraction request
var extractionSchema = &jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"products": {
			Type: jsonschema.Array,
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"name":       {Type: jsonschema.String},
					"price":      {Type: jsonschema.Number},
					"productUrl": {Type: jsonschema.String},
				},
				Required:             []string{"name", "price", "productUrl"},
				AdditionalProperties: false,
			},
		},
	},
	Required:             []string{"products"},
	AdditionalProperties: false,
}

// ExtractionConfig holds configuration for the extraction service
type ExtractionConfig struct {
	Model             string
	MaxAttempts       int
	MaxHTMLChars      int
	MinHTMLLength     int
	RotateDelay       time.Duration
	BaseBackoff       time.Duration
	BackoffMultiplier float64
}

// ExtractionService turns a listing page (pasted HTML or a URL) into pending product records
type ExtractionService struct {
	keys          llm.Rotator
	model         string
	maxHTMLChars  int
	minHTMLLength int
	policy        llm.Policy
	now           func() time.Time
	log           zerolog.Logger
}

// NewExtractionService creates a new extraction service
func NewExtractionService(keys llm.Rotator, config ExtractionConfig, log zerolog.Logger) *ExtractionService {
	policy := llm.DefaultPolicy()
	if config.MaxAttempts > 0 {
		policy.MaxAttempts = config.MaxAttempts
	}
	if config.RotateDelay > 0 {
		policy.RotateDelay = config.RotateDelay
	}
	if config.BaseBackoff > 0 {
		policy.BaseBackoff = config.BaseBackoff
	}
	if config.BackoffMultiplier > 0 {
		policy.Multiplier = config.BackoffMultiplier
	}

	maxChars := config.MaxHTMLChars
	if maxChars <= 0 {
		maxChars = 100000
	}
	minLen := config.MinHTMLLength
	if minLen <= 0 {
		minLen = 50
	}

	logger := log.With().Str("component", "extraction").Logger()
	policy.OnRetry = func(attempt int, err error, rotated bool) {
		logger.Warn().Err(err).Int("attempt", attempt).Bool("rotated", rotated).Msg("extraction attempt failed, retrying")
	}

	return &ExtractionService{
		keys:          keys,
		model:         config.Model,
		maxHTMLChars:  maxChars,
		minHTMLLength: minLen,
		policy:        policy,
		now:           time.Now,
		log:           logger,
	}
}

// Extract sends the cleaned page to the AI service and returns one pending record per product.
//
// urlOrMarker is the page URL, or a free-text marker for pasted HTML. An input with no
// usable HTML and no http(s) URL yields an empty result without error. Credential
// exhaustion is returned as domain.ErrMissingAPIKey; any other failure after the retry
// budget wraps domain.ErrExtractionFailed.
func (s *ExtractionService) Extract(ctx context.Context, urlOrMarker, htmlHint string, sourceIndex int) ([]domain.RawProductRecord, error) {
	if sourceIndex < 1 || sourceIndex > domain.MaxSources {
		return nil, fmt.Errorf("%w: %d", domain.ErrSourceOutOfRange, sourceIndex)
	}

	pageURL := ""
	if isHTTPURL(urlOrMarker) {
		pageURL = strings.TrimSpace(urlOrMarker)
	}

	content := s.prepareHTML(htmlHint)
	if utf8.RuneCountInString(content) < s.minHTMLLength {
		content = ""
	}
	if content == "" && pageURL == "" {
		s.log.Debug().Str("input", urlOrMarker).Int("source", sourceIndex).Msg("input too short, nothing to extract")
		return []domain.RawProductRecord{}, nil
	}

	req := llm.Request{
		Model:      s.model,
		System:     extractionSystemPrompt,
		Prompt:     buildExtractionPrompt(pageURL, content),
		Schema:     extractionSchema,
		SchemaName: "product_listing",
	}

	var items []domain.ExtractedItem
	err := llm.WithRetry(ctx, s.keys, s.policy, func(ctx context.Context, client llm.Completer) error {
		text, err := client.Complete(ctx, req)
		if err != nil {
			return err
		}
		parsed, err := llm.ParseExtraction(text)
		if err != nil {
			return err
		}
		items = parsed
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrMissingAPIKey) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}

	records := make([]domain.RawProductRecord, 0, len(items))
	extractedAt := s.now()
	for _, item := range items {
		records = append(records, newPendingRecord(item, pageURL, sourceIndex, extractedAt))
	}

	s.log.Info().Str("page", pageURL).Int("source", sourceIndex).Int("products", len(records)).Msg("extraction completed")
	return records, nil
}

// prepareHTML cleans and truncates pasted HTML; a parse failure falls back to the raw text
func (s *ExtractionService) prepareHTML(htmlHint string) string {
	htmlHint = strings.TrimSpace(htmlHint)
	if htmlHint == "" {
		return ""
	}

	cleaned, err := htmlclean.Clean(htmlHint)
	if err != nil {
		s.log.Warn().Err(err).Msg("html clean failed, sending raw input")
		cleaned = htmlHint
	}
	return htmlclean.Truncate(cleaned, s.maxHTMLChars)
}

func buildExtractionPrompt(pageURL, content string) string {
	var sb strings.Builder
	if pageURL != "" {
		sb.WriteString("Page URL: ")
		sb.WriteString(pageURL)
		sb.WriteString("\n")
	}
	if content == "" {
		sb.WriteString("No HTML was captured. Extract the product(s) sold at the page URL above.\n")
		return sb.String()
	}
	sb.WriteString("HTML:\n")
	sb.WriteString(content)
	return sb.String()
}

// newPendingRecord creates an unclassified record; the classifier replaces the placeholders
func newPendingRecord(item domain.ExtractedItem, pageURL string, sourceIndex int, extractedAt time.Time) domain.RawProductRecord {
	return domain.RawProductRecord{
		ID:          uuid.NewString(),
		RawName:     item.Name,
		Price:       item.Price,
		SourceIndex: sourceIndex,
		ProductURL:  htmlclean.ResolveURL(pageURL, item.ProductURL),
		Status:      domain.StatusPending,
		ExtractedAt: extractedAt,
		ClassificationResult: domain.ClassificationResult{
			CanonicalName: item.Name,
			BundleLabel:   domain.BundleRaw,
			CategoryTop:   domain.CategoryUnprocessed,
			CategorySub:   domain.CategoryUnprocessed,
		},
	}
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
