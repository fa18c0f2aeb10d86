// Package middleware provides the metrics collector shared by the LLM
// middleware chain and the pipeline runner.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/hallucheck/internal/ports"
)

const namespace = "hallucheck"

// Metric names understood by PrometheusMetrics. Anything else is recorded
// under the generic event counter or state gauge.
const (
	MetricLLMLatency        = "llm_latency_seconds"
	MetricLLMRequests       = "llm_requests_total"
	MetricLLMTokens         = "llm_tokens_total"
	MetricOutcomes          = "outcomes_total"
	MetricHallucinationRate = "hallucination_rate"
)

// PrometheusMetrics implements ports.MetricsCollector on a private registry,
// so a run's metrics can be exported without touching global state.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	llmLatency    *prometheus.HistogramVec
	llmRequests   *prometheus.CounterVec
	llmTokens     *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	rate          *prometheus.GaugeVec
	events        *prometheus.CounterVec
	gauges        *prometheus.GaugeVec
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a collector with its own registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      MetricLLMLatency,
				Help:      "Latency of chat-completion requests.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"provider", "model", "status"},
		),
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricLLMRequests,
				Help:      "Chat-completion requests by outcome status.",
			},
			[]string{"provider", "model", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricLLMTokens,
				Help:      "Tokens reported by providers.",
			},
			[]string{"provider", "model", "token_type"},
		),
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricOutcomes,
				Help:      "Per-question outcomes.",
			},
			[]string{"mode", "outcome"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Wall time of pipeline stages.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		rate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      MetricHallucinationRate,
				Help:      "Hallucinated over judged answers for the last run.",
			},
			[]string{"mode"},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Counters without a dedicated metric.",
			},
			[]string{"metric"},
		),
		gauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state",
				Help:      "Gauges without a dedicated metric.",
			},
			[]string{"metric"},
		),
	}
}

// Registry exposes the underlying registry for gathering.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry { return pm.registry }

// RecordLatency records a stage duration. The stage label falls back to the
// operation name.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	stage := labels["stage"]
	if stage == "" {
		stage = operation
	}
	pm.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordCounter adds value to the counter named by metric.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case MetricLLMRequests:
		pm.llmRequests.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).Add(value)
	case MetricLLMTokens:
		pm.llmTokens.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "token_type")).Add(value)
	case MetricOutcomes:
		pm.outcomes.WithLabelValues(label(labels, "mode"), label(labels, "outcome")).Add(value)
	default:
		pm.events.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge sets the gauge named by metric.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	switch metric {
	case MetricHallucinationRate:
		pm.rate.WithLabelValues(label(labels, "mode")).Set(value)
	default:
		pm.gauges.WithLabelValues(metric).Set(value)
	}
}

// RecordHistogram observes value in the histogram named by metric. Unknown
// names are treated as stage durations in seconds.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case MetricLLMLatency:
		pm.llmLatency.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).Observe(value)
	default:
		pm.stageDuration.WithLabelValues(metric).Observe(value)
	}
}

// WriteTextfile writes every metric in the text exposition format.
func (pm *PrometheusMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, pm.registry); err != nil {
		return ports.NewMetricsError(path, "write_textfile", err)
	}
	return nil
}

func label(labels map[string]string, key string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return "unknown"
}
