package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for generation calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts after the first call
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Backoff ceiling
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups error substrings by category, matched
// case-insensitively against err.Error().
//
// String matching is used because the provider SDK does not expose typed
// errors for transient failures.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "resource_exhausted", "429"},   // rate limiting
	{"500", "502", "503", "504", "unavailable", "empty response"},   // transient server errors
	{"connection reset", "timeout", "deadline exceeded", "temporary"}, // network errors
}

// retryableError reports whether err is transient and worth retrying.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, pattern := range group {
			if strings.Contains(msg, pattern) {
				return true
			}
		}
	}
	return false
}

// generateFunc is one generation attempt. Indirection exists so retry
// behavior is testable without a live client.
type generateFunc func(ctx context.Context, prompt string) (string, error)

// generateWithRetry runs call with exponential backoff. Each attempt passes
// through the rate limiter, including retries, so backoff never lets the
// generator burst past its quota.
func (g *Google) generateWithRetry(ctx context.Context, prompt string, call generateFunc) (string, error) {
	var lastErr error
	delay := g.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= g.retry.MaxRetries; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("%w: rate limit wait: %w", ErrUnavailable, err)
			}
		}

		text, err := call(ctx, prompt)
		if err == nil {
			g.logger.Debug("generation succeeded",
				"model", g.model,
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return text, nil
		}

		lastErr = err

		// A canceled caller is not a bad request; surface it the same way
		// as cancellation during backoff.
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: canceled: %w", ErrUnavailable, ctx.Err())
		}
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("%w: canceled: %w", ErrUnavailable, err)
		}

		if !retryableError(err) {
			return "", fmt.Errorf("%w: %w", ErrFatal, err)
		}

		if attempt == g.retry.MaxRetries {
			break
		}

		g.logger.Debug("retrying generation",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: canceled during retry: %w", ErrUnavailable, ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, g.retry.MaxInterval)
		}
	}

	return "", fmt.Errorf("%w: after %d retries (elapsed %v): %w",
		ErrUnavailable, g.retry.MaxRetries, time.Since(start), lastErr)
}
