package llm

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomtat/tomtat/internal/ports"
)

type metricsLLM struct {
	passthrough
	collector ports.MetricsCollector
}

// MetricsMiddleware records llm_requests_total, llm_latency_seconds and, on
// success, llm_tokens_total for every call.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{passthrough: passthrough{next}, collector: collector}
	}
}

func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, in, out, err := m.next.DoRequest(ctx, prompt, opts)

	labels := map[string]string{
		"provider": m.Provider(),
		"model":    parseOptions(opts, m.GetModel()).Model,
		"status":   outcome(err),
		"unit":     "llm",
	}
	m.collector.RecordHistogram("llm_latency_seconds", time.Since(start).Seconds(), labels)
	m.collector.RecordCounter("llm_requests_total", 1, labels)
	if err == nil {
		labels["token_type"] = "input"
		m.collector.RecordCounter("llm_tokens_total", float64(in), labels)
		labels["token_type"] = "output"
		m.collector.RecordCounter("llm_tokens_total", float64(out), labels)
	}
	return response, in, out, err
}

func outcome(err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &pe):
		return pe.Type.String()
	default:
		return "error"
	}
}

type tracedLLM struct {
	passthrough
	tracer trace.Tracer
}

// TracingMiddleware wraps each call in an "llm.request" span.
func TracingMiddleware() Middleware {
	tracer := otel.Tracer("github.com/tomtat/tomtat/infrastructure/llm")
	return func(next CoreLLM) CoreLLM {
		return &tracedLLM{passthrough: passthrough{next}, tracer: tracer}
	}
}

func (t *tracedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ctx, span := t.tracer.Start(ctx, "llm.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", t.Provider()),
			attribute.String("llm.model", parseOptions(opts, t.GetModel()).Model),
			attribute.Int("llm.prompt.runes", len([]rune(prompt))),
		),
	)
	defer span.End()

	response, in, out, err := t.next.DoRequest(ctx, prompt, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
		return response, in, out, err
	}
	span.SetAttributes(
		attribute.Int("llm.tokens.input", in),
		attribute.Int("llm.tokens.output", out),
	)
	return response, in, out, nil
}
