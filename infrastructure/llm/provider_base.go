package llm

import (
	"sync"
)

// DefaultMaxTokens is used when a request does not set max_tokens.
const DefaultMaxTokens = 1024

// BaseProvider provides common, thread-safe functionality for all LLM providers,
// primarily for managing the model name.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the name of the model currently configured for the provider.
// It is safe for concurrent use.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel updates the model name for the provider.
// It is safe for concurrent use.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// RequestOptions is the provider-neutral view of a request's option map.
type RequestOptions struct {
	// MaxTokens specifies the maximum number of tokens to generate.
	MaxTokens int
	// Model is the identifier of the language model to use for the request.
	Model string
	// Temperature is nil when the provider's default should be used.
	Temperature *float64
	// TopP is nil when the provider's default should be used.
	TopP *float64
	// System is the system instruction, sent as a separate message where the
	// provider supports it.
	System string
	// Extra holds any provider-specific options that are not part of the standardized set.
	Extra map[string]any
}

// ParseRequestOptions extracts and validates LLM request parameters from a map.
// Missing or invalid entries fall back to defaults; unrecognized keys are
// collected into Extra.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens: extractInt(opts, "max_tokens", DefaultMaxTokens, IsPositiveInt),
		Model:     extractString(opts, "model", defaultModel, IsNonEmptyString),
		System:    extractString(opts, "system", "", nil),
		Extra:     make(map[string]any),
	}

	if temp, ok := extractFloat(opts, "temperature", IsValidTemperature); ok {
		options.Temperature = &temp
	}

	if topP, ok := extractFloat(opts, "top_p", IsValidTopP); ok {
		options.TopP = &topP
	}

	for k, v := range opts {
		switch k {
		case "max_tokens", "model", "system", "temperature", "top_p":
		default:
			options.Extra[k] = v
		}
	}

	return options
}

func extractInt(opts map[string]any, key string, defaultVal int, valid func(int) bool) int {
	v, ok := SafeInt(opts[key])
	if !ok || (valid != nil && !valid(v)) {
		return defaultVal
	}
	return v
}

func extractString(opts map[string]any, key, defaultVal string, valid func(string) bool) string {
	v, ok := opts[key].(string)
	if !ok || (valid != nil && !valid(v)) {
		return defaultVal
	}
	return v
}

// extractFloat accepts float64, float32 and int values.
func extractFloat(opts map[string]any, key string, valid func(float64) bool) (float64, bool) {
	var f float64
	switch v := opts[key].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	default:
		return 0, false
	}
	if valid != nil && !valid(f) {
		return 0, false
	}
	return f, true
}

// TokenCounter provides a utility for estimating token counts from text.
// This is useful when an exact tokenizer is not available for a given model.
type TokenCounter struct {
	// CharactersPerToken represents the average number of characters per token.
	CharactersPerToken float64
}

// NewTokenCounter creates a new TokenCounter with a default character-per-token ratio.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{
		CharactersPerToken: 4.0,
	}
}

// EstimateTokens calculates an estimated token count for a given string of text.
func (tc *TokenCounter) EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := int(float64(len(text)) / tc.CharactersPerToken)
	if n == 0 {
		return 1
	}
	return n
}

// GetTokenCount returns the actual token count if it is available and positive.
// Otherwise, it falls back to estimating the count based on the provided text.
func (tc *TokenCounter) GetTokenCount(actualCount int, text string) int {
	if actualCount > 0 {
		return actualCount
	}
	return tc.EstimateTokens(text)
}
