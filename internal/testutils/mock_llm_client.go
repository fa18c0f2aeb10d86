// Package testutils holds test doubles shared across packages.
package testutils

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ahrav/hallucheck/internal/ports"
)

var _ ports.LLMClient = (*MockLLMClient)(nil)

// MockResponse is a scripted reply. The first rule whose Pattern is a
// substring of the prompt wins; an empty Pattern matches everything.
type MockResponse struct {
	Pattern   string
	Response  string
	Err       error
	TokensIn  int
	TokensOut int
}

// MockCall records one request received by the mock.
type MockCall struct {
	Prompt  string
	Options map[string]any
}

// MockLLMClient is a deterministic ports.LLMClient for pipeline tests. It is
// safe for concurrent use.
type MockLLMClient struct {
	mu       sync.Mutex
	model    string
	rules    []MockResponse
	fallback MockResponse
	calls    []MockCall
}

// NewMockLLMClient returns a mock that answers every prompt with a generic
// response until rules are added.
func NewMockLLMClient(model string) *MockLLMClient {
	return &MockLLMClient{
		model: model,
		fallback: MockResponse{
			Response:  "This is a standard response for testing purposes.",
			TokensIn:  10,
			TokensOut: 8,
		},
	}
}

// AddResponse appends a rule. Rules are matched in insertion order.
func (m *MockLLMClient) AddResponse(r MockResponse) *MockLLMClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Pattern == "" {
		m.fallback = r
		return m
	}
	m.rules = append(m.rules, r)
	return m
}

// Complete implements ports.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	text, _, _, err := m.CompleteWithUsage(ctx, prompt, options)
	return text, err
}

// CompleteWithUsage implements ports.LLMClient.
func (m *MockLLMClient) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, 0, err
	}
	if prompt == "" {
		return "", 0, 0, errors.New("prompt cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{Prompt: prompt, Options: options})

	r := m.fallback
	for _, rule := range m.rules {
		if strings.Contains(prompt, rule.Pattern) {
			r = rule
			break
		}
	}
	if r.Err != nil {
		return "", 0, 0, r.Err
	}
	return r.Response, r.TokensIn, r.TokensOut, nil
}

// EstimateTokens approximates four characters per token.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return max(len(text)/4, 1), nil
}

// GetModel returns the mock model identifier.
func (m *MockLLMClient) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// Calls returns a copy of every request received so far.
func (m *MockLLMClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of requests received.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
