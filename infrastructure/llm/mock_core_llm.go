package llm

import (
	"context"
	"sync"
	"time"
)

// MockCoreLLM is a scripted CoreLLM for middleware and client tests.
// Responses are served in order when set; otherwise Response is returned on
// every call.
type MockCoreLLM struct {
	mu sync.Mutex

	Response      string
	Responses     []string
	TokensIn      int
	TokensOut     int
	Error         error
	Model         string
	ResponseDelay time.Duration

	// FailUntilAttempt makes the first N calls return Error (or a generic
	// failure when Error is nil) before succeeding.
	FailUntilAttempt int

	CallCount      int
	Prompts        []string
	LastOpts       map[string]any
	CallTimestamps []time.Time
}

// NewMockCoreLLM creates a mock that succeeds with a fixed answer.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Response:  "Paris. Paris.",
		TokensIn:  12,
		TokensOut: 4,
		Model:     "mock-model",
	}
}

// DoRequest implements CoreLLM.
func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.CallCount++
	call := m.CallCount
	m.Prompts = append(m.Prompts, prompt)
	m.LastOpts = opts
	m.CallTimestamps = append(m.CallTimestamps, time.Now())
	delay := m.ResponseDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUntilAttempt > 0 && call <= m.FailUntilAttempt {
		if m.Error != nil {
			return "", 0, 0, m.Error
		}
		return "", 0, 0, &mockFailure{message: "simulated failure"}
	}
	if m.FailUntilAttempt == 0 && m.Error != nil {
		return "", 0, 0, m.Error
	}

	if len(m.Responses) > 0 {
		idx := min(call-1, len(m.Responses)-1)
		return m.Responses[idx], m.TokensIn, m.TokensOut, nil
	}
	return m.Response, m.TokensIn, m.TokensOut, nil
}

// GetModel returns the configured model name.
func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

// SetModel updates the model name.
func (m *MockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Model = model
}

// GetCallCount returns the number of times DoRequest was called.
func (m *MockCoreLLM) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// GetTimeBetweenCalls returns the gap between two recorded calls, or nil if
// either index is out of range.
func (m *MockCoreLLM) GetTimeBetweenCalls(call1, call2 int) *time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if call1 < 0 || call2 < 0 || call1 >= len(m.CallTimestamps) || call2 >= len(m.CallTimestamps) {
		return nil
	}

	d := m.CallTimestamps[call2].Sub(m.CallTimestamps[call1])
	return &d
}

type mockFailure struct{ message string }

func (e *mockFailure) Error() string { return e.message }
