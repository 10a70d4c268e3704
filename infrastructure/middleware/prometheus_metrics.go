// Package middleware provides cross-cutting concerns shared by the services.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomtat/tomtat/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// Known metric names map to dedicated vectors; anything else lands in the
// generic operation counter, gauge or histogram keyed by name.
type PrometheusMetrics struct {
	summaries        *prometheus.CounterVec
	inferenceLatency *prometheus.HistogramVec
	evaluations      *prometheus.CounterVec
	evalLatency      *prometheus.HistogramVec
	evalScores       *prometheus.HistogramVec
	batchRows        *prometheus.CounterVec
	llmRequests      *prometheus.CounterVec
	llmTokens        *prometheus.CounterVec
	llmLatency       *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec

	executionLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
// A nil reg uses the default registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	scoreBuckets := prometheus.LinearBuckets(0, 0.1, 11)

	return &PrometheusMetrics{
		summaries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "summaries_total",
				Help: "Summaries produced, by model and outcome.",
			},
			[]string{"model", "status", "unit"},
		),
		inferenceLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inference_latency_seconds",
				Help:    "Inference server time per summary as reported by the server.",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120},
			},
			[]string{"model", "unit"},
		),
		evaluations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evaluations_total",
				Help: "Evaluation requests, by kind.",
			},
			[]string{"kind", "unit"},
		),
		evalLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "evaluation_latency_seconds",
				Help:    "Time spent computing evaluation metrics.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "unit"},
		),
		evalScores: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "evaluation_score",
				Help:    "Distribution of computed metric scores.",
				Buckets: scoreBuckets,
			},
			[]string{"metric", "kind", "unit"},
		),
		batchRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_rows_total",
				Help: "Rows processed by batch runs, by outcome.",
			},
			[]string{"status", "unit"},
		),
		llmRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Requests sent to judge LLM providers.",
			},
			[]string{"provider", "model", "status"},
		),
		llmTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Tokens exchanged with judge LLM providers.",
			},
			[]string{"provider", "model", "token_type"},
		),
		llmLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_latency_seconds",
				Help:    "Judge LLM request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model", "status"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests served, by route and status code.",
			},
			[]string{"method", "route", "code"},
		),

		executionLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "operation_duration_seconds",
				Help:    "Duration of named operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "unit"},
		),
		operationCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "operations_total",
				Help: "Named operations without a dedicated counter.",
			},
			[]string{"operation", "status", "unit"},
		),
		systemGauges: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "system_state",
				Help: "Current values of named gauges.",
			},
			[]string{"metric", "unit"},
		),
	}
}

func unitOf(labels map[string]string) string {
	if unit := labels["unit"]; unit != "" {
		return unit
	}
	return "unknown"
}

func statusOf(labels map[string]string) string {
	if status := labels["status"]; status != "" {
		return status
	}
	return "success"
}

// RecordLatency records duration in the operation histogram. HTTP request
// timings (operation "http_request") also count the request by route and code.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	if operation == "http_request" {
		pm.httpRequests.WithLabelValues(labels["method"], labels["route"], labels["code"]).Inc()
	}
	pm.executionLatency.WithLabelValues(operation, unitOf(labels)).Observe(duration.Seconds())
}

// RecordCounter increments the counter named by metric.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	unit := unitOf(labels)

	switch metric {
	case "summaries_total":
		pm.summaries.WithLabelValues(labels["model"], statusOf(labels), unit).Add(value)
	case "evaluations_total":
		pm.evaluations.WithLabelValues(labels["kind"], unit).Add(value)
	case "batch_rows_total":
		pm.batchRows.WithLabelValues(statusOf(labels), unit).Add(value)
	case "llm_requests_total":
		pm.llmRequests.WithLabelValues(labels["provider"], labels["model"], statusOf(labels)).Add(value)
	case "llm_tokens_total":
		pm.llmTokens.WithLabelValues(labels["provider"], labels["model"], labels["token_type"]).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, statusOf(labels), unit).Add(value)
	}
}

// RecordGauge sets the gauge named by metric.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	pm.systemGauges.WithLabelValues(metric, unitOf(labels)).Set(value)
}

// RecordHistogram observes value in the histogram named by metric. Score
// histograms share one vector labelled by metric name.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	unit := unitOf(labels)

	switch metric {
	case "inference_latency_seconds":
		pm.inferenceLatency.WithLabelValues(labels["model"], unit).Observe(value)
	case "evaluation_latency_seconds":
		pm.evalLatency.WithLabelValues(labels["kind"], unit).Observe(value)
	case "evaluation_rouge1", "evaluation_bleu", "evaluation_bertscore":
		pm.evalScores.WithLabelValues(metric, labels["kind"], unit).Observe(value)
	case "llm_latency_seconds":
		pm.llmLatency.WithLabelValues(labels["provider"], labels["model"], statusOf(labels)).Observe(value)
	default:
		pm.executionLatency.WithLabelValues(metric, unit).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
