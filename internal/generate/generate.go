// Package generate wraps the Gemini generation API with bounded retries,
// per-attempt rate limiting, and error classification.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// DefaultModel is the default generation model.
const DefaultModel = "gemini-2.0-flash"

// defaultTimeout bounds a single generation attempt.
const defaultTimeout = 60 * time.Second

// ErrUnavailable indicates the generation service kept failing with
// transient errors until the retry budget ran out. The caller may try again
// later.
var ErrUnavailable = errors.New("generation service unavailable")

// ErrFatal indicates a non-retryable generation failure, such as an invalid
// request or a blocked prompt. Retrying will not help.
var ErrFatal = errors.New("generation request failed")

// Config configures the Gemini-backed generator.
type Config struct {
	Model           string        // Generation model name (default: DefaultModel)
	Temperature     float32       // Sampling temperature
	MaxOutputTokens int32         // Response cap; zero leaves the model default
	Timeout         time.Duration // Per-attempt timeout (default: 60s)
	Retry           RetryConfig   // Retry behavior; zero value uses DefaultRetryConfig
	RequestsPerMin  int           // Rate limit across attempts; zero disables limiting
}

// Google calls the Gemini generation API.
type Google struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	timeout     time.Duration
	retry       RetryConfig
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewGoogle creates a Gemini-backed generator on an existing genai client.
func NewGoogle(client *genai.Client, cfg Config, logger *slog.Logger) (*Google, error) {
	if client == nil {
		return nil, fmt.Errorf("genai client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMin)/60), 1)
	}

	return &Google{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxOutputTokens,
		timeout:     cfg.Timeout,
		retry:       cfg.Retry,
		limiter:     limiter,
		logger:      logger,
	}, nil
}

// Generate produces a completion for the prompt. Transient provider errors
// are retried with exponential backoff; exhaustion surfaces as
// ErrUnavailable and anything non-retryable as ErrFatal.
func (g *Google) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: empty prompt", ErrFatal)
	}
	return g.generateWithRetry(ctx, prompt, g.callModel)
}

// callModel performs one generation attempt against the API.
func (g *Google) callModel(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if g.maxTokens > 0 {
		config.MaxOutputTokens = g.maxTokens
	}

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{genai.NewPartFromText(prompt)},
	}}

	resp, err := g.client.Models.GenerateContent(callCtx, g.model, contents, config)
	if err != nil {
		return "", err
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model %s returned an empty response", g.model)
	}
	return text, nil
}
