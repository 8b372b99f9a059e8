// Package llm calls an OpenAI-compatible chat completion API for article
// extraction and relevance judgement.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
	"github.com/dealfanatics/rss-pipeline/internal/platform/observability"
)

const (
	circuitBreakerThreshold = 5
	circuitBreakerTimeout   = 1 * time.Minute
	rateLimiterBurst        = 2
	defaultRPS              = 1
	defaultTimeout          = 2 * time.Minute

	taskExtract = "extract"
	taskJudge   = "judge"

	errRateLimiter = "rate limiter: %w"
)

// Config configures the client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	RPS     float64
	Timeout time.Duration
}

// Client wraps go-openai with a rate limiter and a circuit breaker.
type Client struct {
	client      *openai.Client
	model       string
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter

	// Circuit breaker state
	consecutiveFailures int
	circuitOpenUntil    time.Time
	mu                  sync.Mutex
	now                 func() time.Time
}

// New creates a Client. A missing API key is a configuration error.
func New(cfg Config, logger *zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: LLM_API_KEY is not set", errors.ErrMissingCredentials)
	}

	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}

	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RPS), rateLimiterBurst),
		now:         time.Now,
	}, nil
}

// Model returns the model name recorded with extraction output.
func (c *Client) Model() string {
	return c.model
}

func (c *Client) checkCircuit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.now().Before(c.circuitOpenUntil) {
		return fmt.Errorf("%w until %v", errors.ErrCircuitBreakerOpen, c.circuitOpenUntil)
	}

	return nil
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures = 0
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures++
	if c.consecutiveFailures >= circuitBreakerThreshold {
		c.circuitOpenUntil = c.now().Add(circuitBreakerTimeout)
		c.logger.Warn().
			Int("consecutive_failures", c.consecutiveFailures).
			Time("open_until", c.circuitOpenUntil).
			Msg("Circuit breaker opened")
	}
}

// complete sends one JSON-mode chat completion and returns the raw content.
func (c *Client) complete(ctx context.Context, task, system, user string, temperature float32) (string, error) {
	if err := c.checkCircuit(); err != nil {
		return "", err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf(errRateLimiter, err)
	}

	start := c.now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})

	observability.LLMRequestDuration.WithLabelValues(c.model, task).Observe(c.now().Sub(start).Seconds())

	if err != nil {
		mapped := mapAPIError(err)
		if errors.Classify(mapped) == errors.KindTransient {
			c.recordFailure()
		}

		return "", fmt.Errorf("chat completion: %w", mapped)
	}

	c.recordSuccess()

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices", errors.ErrUnexpectedResponse)
	}

	return resp.Choices[0].Message.Content, nil
}

// mapAPIError attaches a failure class to go-openai errors by HTTP status.
func mapAPIError(err error) error {
	status := 0

	var apiErr *openai.APIError
	var reqErr *openai.RequestError

	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", errors.ErrRateLimited, err)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", errors.ErrAccessDenied, err)
	case status == http.StatusBadRequest, status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %w", errors.ErrUnexpectedResponse, err)
	default:
		return fmt.Errorf("%w: %w", errors.ErrTransient, err)
	}
}
