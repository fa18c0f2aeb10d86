// Package ports holds the contracts between the pipeline and the adapters
// that talk to providers, caches and metric sinks, plus the error taxonomy
// those adapters report through.
package ports

import (
	"context"
	"time"
)

// LLMClient is a chat-completion endpoint as the pipeline stages see it.
//
// Recognized options:
//   - "system": string, sent as a separate system message where supported
//   - "temperature": float64
//   - "max_tokens": int
//   - "model": string, overriding the configured model for one call
type LLMClient interface {
	// Complete returns the reply text for prompt.
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// CompleteWithUsage is Complete plus the input and output token counts.
	CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error)

	// EstimateTokens approximates the token count of text.
	EstimateTokens(text string) (int, error)

	// GetModel names the model requests are sent to.
	GetModel() string
}

// CacheStore holds values for one run so an identical request is sent
// once. Nothing is persisted.
type CacheStore interface {
	// Get reports whether key is present and returns its value.
	Get(ctx context.Context, key string) (any, bool, error)

	// Set stores value under key. Zero expiration keeps it for the run.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error

	// Clear empties the store.
	Clear(ctx context.Context) error
}

// MetricsCollector receives request and run measurements. Labels are
// free-form; implementations decide which names they export.
type MetricsCollector interface {
	RecordLatency(operation string, duration time.Duration, labels map[string]string)
	RecordCounter(metric string, value float64, labels map[string]string)
	RecordGauge(metric string, value float64, labels map[string]string)
	RecordHistogram(metric string, value float64, labels map[string]string)
}
