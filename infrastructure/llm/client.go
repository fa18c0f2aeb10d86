// Package llm provides a unified client for the chat-completion providers the
// harness talks to, with cross-cutting concerns layered on as middleware.
//
// Providers (OpenAI, Perplexity, Anthropic, Google) sit behind the CoreLLM
// interface. A middleware chain wraps the provider to add timeouts, rate
// limiting, optional retries, in-run request deduplication, metrics and
// tracing without the callers knowing.
//
// Basic usage:
//
//	client, err := llm.NewClient("perplexity", llm.ClientConfig{
//	    APIKey: cfg.AnswerAPIKey,
//	    Model:  "sonar",
//	})
//	answer, err := client.Complete(ctx, "What is a CPU?", map[string]any{
//	    "system": "You are a helpful AI assistant.",
//	})
//
// With middleware:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: cfg.JudgeAPIKey,
//	    Model:  "gpt-4.1",
//	    Middleware: []llm.Middleware{
//	        llm.TracingMiddleware("judge"),
//	        llm.MetricsMiddleware(collector, "openai"),
//	        llm.TimeoutMiddleware(30 * time.Second),
//	    },
//	})
package llm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ahrav/hallucheck/internal/ports"
)

// CoreLLM is what a provider adapter implements and what every middleware
// both wraps and exposes.
type CoreLLM interface {
	// DoRequest sends prompt with opts ("system", "temperature",
	// "max_tokens", "model") and returns the reply plus input and output
	// token counts.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	GetModel() string
	SetModel(model string)
}

// TokenEstimator approximates token counts when a provider omits usage.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// ClientConfig is the per-role provider setup.
type ClientConfig struct {
	APIKey string
	// Model falls back to the provider default when empty.
	Model string
	// BaseURL replaces the provider endpoint; tests point it at httptest.
	BaseURL string
	// Timeout is the HTTP client timeout; zero keeps the SDK default.
	Timeout time.Duration
	// TokenEstimator defaults to TokenCounter.
	TokenEstimator TokenEstimator
	// Middleware is applied first-outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM implementation to add cross-cutting functionality.
type Middleware func(CoreLLM) CoreLLM

var _ ports.LLMClient = (*Client)(nil)

// Client implements the ports.LLMClient interface on top of a provider and
// its middleware chain.
type Client struct {
	provider  string
	core      CoreLLM
	estimator TokenEstimator
}

// NewClient builds the named provider and wraps it in config.Middleware.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", providerType, err)
	}

	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	estimator := config.TokenEstimator
	if estimator == nil {
		estimator = NewTokenCounter()
	}

	return &Client{
		provider:  providerType,
		core:      core,
		estimator: estimator,
	}, nil
}

// Complete returns the reply text only.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage runs the request through the middleware chain.
func (c *Client) CompleteWithUsage(
	ctx context.Context,
	prompt string,
	options map[string]any,
) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel reports the provider's model.
func (c *Client) GetModel() string { return c.core.GetModel() }

// Provider returns the provider name the client was built with.
func (c *Client) Provider() string { return c.provider }

// ProviderFactory creates a CoreLLM implementation from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

// providerFactories is populated by provider init functions.
var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory registers a provider under the given name.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}

// Providers returns the registered provider names in sorted order.
func Providers() []string {
	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasProvider reports whether a provider with the given name is registered.
func HasProvider(name string) bool {
	_, ok := providerFactories[name]
	return ok
}
