package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/hallucheck/internal/ports"
)

// metricsLLM records latency, request counts and token usage per request.
type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
	provider  string
}

// MetricsMiddleware creates middleware that reports to collector. A nil
// collector disables the middleware.
func MetricsMiddleware(collector ports.MetricsCollector, provider string) Middleware {
	return func(next CoreLLM) CoreLLM {
		if collector == nil {
			return next
		}
		return &metricsLLM{
			next:      next,
			collector: collector,
			provider:  provider,
		}
	}
}

// DoRequest executes the request while collecting metrics.
func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	labels := map[string]string{
		"provider": m.provider,
		"model":    m.next.GetModel(),
		"status":   requestStatus(err),
	}

	m.collector.RecordHistogram("llm_latency_seconds", time.Since(start).Seconds(), labels)
	m.collector.RecordCounter("llm_requests_total", 1, labels)

	if err == nil {
		tokenLabels := map[string]string{"provider": m.provider, "model": labels["model"], "token_type": "input"}
		m.collector.RecordCounter("llm_tokens_total", float64(tokensIn), tokenLabels)

		tokenLabels = map[string]string{"provider": m.provider, "model": labels["model"], "token_type": "output"}
		m.collector.RecordCounter("llm_tokens_total", float64(tokensOut), tokenLabels)
	}

	return response, tokensIn, tokensOut, err
}

func requestStatus(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) && provErr.Type == ErrorTypeTimeout {
		return "timeout"
	}
	if errors.Is(err, ErrNoResponseChoice) || errors.Is(err, ErrEmptyResponse) {
		return "malformed"
	}
	return "error"
}

// GetModel returns the model name from the wrapped implementation.
func (m *metricsLLM) GetModel() string { return m.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }
