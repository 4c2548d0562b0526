package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
)

// Request is a single chat completion asking for JSON output
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float32

	// Schema constrains the response with structured output when set.
	// Without a schema the request still asks for a JSON object.
	Schema     *jsonschema.Definition
	SchemaName string
}

// Completer sends a request to the AI service and returns the raw response text
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientConfig holds the per-credential client settings
type ClientConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	RequestsPerMinute int
	Timeout           time.Duration
}

// Client talks to an OpenAI-compatible chat completions endpoint with one credential
type Client struct {
	api          *openai.Client
	defaultModel string
	rateLimiter  *rate.Limiter
	breaker      *gobreaker.CircuitBreaker
	log          zerolog.Logger
}

// NewClient creates a client bound to cfg.APIKey
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	apiCfg.HTTPClient = &http.Client{Timeout: timeout}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	limiter := rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 3)

	logger = logger.With().Str("credential", MaskKey(cfg.APIKey)).Logger()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ai-" + MaskKey(cfg.APIKey),
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// quota and auth failures belong to the credential, not the endpoint
		IsSuccessful: func(err error) bool {
			return err == nil || IsRotatable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return &Client{
		api:          openai.NewClientWithConfig(apiCfg),
		defaultModel: cfg.Model,
		rateLimiter:  limiter,
		breaker:      breaker,
		log:          logger,
	}
}

// Complete sends the request and returns the first choice's content
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: req.Temperature,
		Messages:    buildMessages(req),
	}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "response"
		}
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: req.Schema,
				Strict: true,
			},
		}
	} else {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.api.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		c.log.Debug().Err(err).Str("model", model).Dur("elapsed", time.Since(start)).Msg("chat completion failed")
		return "", err
	}

	resp := result.(openai.ChatCompletionResponse)
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", domain.ErrMalformedResponse)
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: empty content", domain.ErrMalformedResponse)
	}

	c.log.Debug().Str("model", model).Int("tokens", resp.Usage.TotalTokens).
		Dur("elapsed", time.Since(start)).Msg("chat completion ok")
	return content, nil
}

func buildMessages(req Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})
	return messages
}

// MaskKey keeps the last four characters of a credential for logs
func MaskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// statusCode extracts the HTTP status carried by a go-openai error, or 0
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
