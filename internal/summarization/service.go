// Package summarization runs the preprocess, inference and postprocess
// pipeline for one text and layers caching, model comparison and
// evaluation on top of it.
package summarization

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/pipeline"
	"github.com/tomtat/tomtat/internal/ports"
	"github.com/tomtat/tomtat/internal/textproc"
)

// cacheKeyPrefix namespaces summary entries in a shared cache.
const cacheKeyPrefix = "summary:"

// Evaluator scores a summary against a reference.
type Evaluator interface {
	EvaluateSingle(ctx context.Context, prediction, reference string, computeBERT bool) (domain.EvaluationMetrics, error)
}

// PreprocessMeta is the preprocessing metadata echoed to callers.
type PreprocessMeta struct {
	NumSentences    int     `json:"num_sentences,omitempty"`
	TopKRatio       float64 `json:"top_k_ratio,omitempty"`
	OriginalLength  int     `json:"original_length"`
	ProcessedLength int     `json:"processed_length"`
	WasTruncated    bool    `json:"was_truncated"`
}

// PostprocessMeta is the postprocessing metadata echoed to callers.
type PostprocessMeta struct {
	OriginalLength       int  `json:"original_length"`
	ProcessedLength      int  `json:"processed_length"`
	NumSelectedSentences *int `json:"num_selected_sentences,omitempty"`
}

// Metadata describes how a summary was produced.
type Metadata struct {
	Preprocess     PreprocessMeta  `json:"preprocess"`
	Postprocess    PostprocessMeta `json:"postprocess"`
	InferenceModel string          `json:"inference_model"`
}

// Result is the outcome of one summarization.
type Result struct {
	OriginalText      string              `json:"original_text"`
	PreprocessedText  string              `json:"preprocessed_text"`
	Summary           string              `json:"summary"`
	ModelUsed         domain.ModelVariant `json:"model_used"`
	InferenceMs       float64             `json:"inference_ms"`
	InferenceS        float64             `json:"inference_s"`
	TotalProcessingMs float64             `json:"total_processing_ms"`
	TotalProcessingS  float64             `json:"total_processing_s"`
	Metadata          Metadata            `json:"metadata"`
	Cached            bool                `json:"cached"`
}

// ModelResult is one model's entry in a comparison.
type ModelResult struct {
	Model           string  `json:"model"`
	Summary         string  `json:"summary"`
	InferenceTimeMs float64 `json:"inference_time_ms"`
	InferenceTimeS  float64 `json:"inference_time_s"`
	Error           *string `json:"error"`
}

// CompareResult collects the summaries of several models for one text.
type CompareResult struct {
	OriginalText     string        `json:"original_text"`
	PreprocessedText string        `json:"preprocessed_text"`
	Results          []ModelResult `json:"results"`
	TotalTimeMs      float64       `json:"total_time_ms"`
	TotalTimeS       float64       `json:"total_time_s"`
	ModelsCount      int           `json:"models_count"`
}

// EvaluatedResult is a summary together with its quality metrics.
type EvaluatedResult struct {
	Summary          string                   `json:"summary"`
	ModelUsed        domain.ModelVariant      `json:"model_used"`
	InferenceTimeMs  float64                  `json:"inference_time_ms"`
	Metrics          domain.EvaluationMetrics `json:"metrics"`
	EvaluationTimeMs int64                    `json:"evaluation_time_ms"`
	TotalTimeMs      float64                  `json:"total_time_ms"`
}

// Service orchestrates summarization requests.
type Service struct {
	summarizer ports.Summarizer
	evaluator  Evaluator
	cache      ports.CacheStore
	cacheTTL   time.Duration
	logger     *slog.Logger
	metrics    ports.MetricsCollector
	tracer     trace.Tracer
}

// Option customizes a Service.
type Option func(*Service)

// WithCache enables result caching. A nil store disables it.
func WithCache(store ports.CacheStore, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = store
		s.cacheTTL = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.MetricsCollector) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service. evaluator may be nil when
// SummarizeAndEvaluate is not used.
func NewService(summarizer ports.Summarizer, evaluator Evaluator, opts ...Option) *Service {
	s := &Service{
		summarizer: summarizer,
		evaluator:  evaluator,
		logger:     slog.Default(),
		tracer:     otel.Tracer("summarization-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "summarization"))
	return s
}

// Summarize preprocesses text for model, runs inference and cleans the
// output. Unknown models fail with *domain.UnsupportedModelError before any
// remote call.
func (s *Service) Summarize(ctx context.Context, text, model string, maxLength int) (Result, error) {
	strategy, err := pipeline.Lookup(model)
	if err != nil {
		return Result{}, err
	}

	ctx, span := s.tracer.Start(ctx, "Service.Summarize",
		trace.WithAttributes(
			attribute.String("summarization.model", model),
			attribute.Int("summarization.max_length", maxLength),
			attribute.Int("summarization.input_chars", textproc.Len(text)),
		))
	defer span.End()

	start := time.Now()
	key := cacheKey(model, maxLength, text)
	if res, ok := s.fromCache(ctx, key); ok {
		elapsed := msSince(start)
		res.TotalProcessingMs = elapsed
		res.TotalProcessingS = domain.Round(elapsed/1000, 2)
		span.SetAttributes(attribute.Bool("summarization.cached", true))
		s.count("summaries_total", model, "cached")
		return res, nil
	}

	pre := strategy.Preprocess(text, maxLength)
	req := ports.SummarizeRequest{
		Text:      pre.ProcessedText,
		Model:     model,
		MaxLength: maxLength,
	}
	if strategy.Variant.IsHybrid() {
		req.PreprocessedSentences = pre.Sentences
	}

	raw, err := s.summarizer.Summarize(ctx, req)
	if err != nil {
		span.RecordError(err)
		s.count("summaries_total", model, "error")
		return Result{}, fmt.Errorf("summarizing with %s: %w", model, err)
	}

	post := strategy.Postprocess(raw.Summary, domain.PostprocessContext{Sentences: pre.Sentences})

	inferenceModel := raw.ModelUsed
	if inferenceModel == "" {
		inferenceModel = model
	}
	elapsed := msSince(start)
	res := Result{
		OriginalText:      text,
		PreprocessedText:  pre.ProcessedText,
		Summary:           post.Summary,
		ModelUsed:         strategy.Variant,
		InferenceMs:       raw.InferenceTimeMs,
		InferenceS:        domain.Round(raw.InferenceTimeMs/1000, 2),
		TotalProcessingMs: elapsed,
		TotalProcessingS:  domain.Round(elapsed/1000, 2),
		Metadata: Metadata{
			Preprocess: PreprocessMeta{
				NumSentences:    pre.NumSentences,
				TopKRatio:       pre.TopKRatio,
				OriginalLength:  pre.OriginalLength,
				ProcessedLength: pre.ProcessedLength,
				WasTruncated:    pre.WasTruncated,
			},
			Postprocess: PostprocessMeta{
				OriginalLength:       post.OriginalLength,
				ProcessedLength:      post.ProcessedLength,
				NumSelectedSentences: post.NumSelectedSentences,
			},
			InferenceModel: inferenceModel,
		},
	}

	s.toCache(ctx, key, res)
	s.count("summaries_total", model, "success")
	if s.metrics != nil {
		s.metrics.RecordHistogram("inference_latency_seconds", raw.InferenceTimeMs/1000,
			map[string]string{"unit": "summarization", "model": model})
	}
	s.logger.Info("summary generated",
		slog.String("model", model),
		slog.Int("input_chars", pre.OriginalLength),
		slog.Int("summary_chars", post.ProcessedLength),
		slog.Float64("inference_ms", raw.InferenceTimeMs))
	return res, nil
}

// Compare summarizes text with each model in turn. A failing model is
// reported in its entry and does not stop the others.
func (s *Service) Compare(ctx context.Context, text string, models []string, maxLength int) CompareResult {
	start := time.Now()
	results := make([]ModelResult, 0, len(models))

	for _, model := range models {
		modelStart := time.Now()
		entry := ModelResult{Model: model}

		res, err := s.Summarize(ctx, text, model, maxLength)
		if err != nil {
			msg := err.Error()
			entry.Error = &msg
			s.logger.Warn("model failed during comparison",
				slog.String("model", model),
				slog.String("error", msg))
		} else {
			entry.Summary = res.Summary
		}
		entry.InferenceTimeMs = msSince(modelStart)
		entry.InferenceTimeS = domain.Round(entry.InferenceTimeMs/1000, 2)
		results = append(results, entry)
	}

	total := msSince(start)
	return CompareResult{
		OriginalText:     text,
		PreprocessedText: textproc.Clean(text),
		Results:          results,
		TotalTimeMs:      total,
		TotalTimeS:       domain.Round(total/1000, 2),
		ModelsCount:      len(models),
	}
}

// SummarizeAndEvaluate summarizes text and scores the summary against
// reference.
func (s *Service) SummarizeAndEvaluate(
	ctx context.Context,
	text, reference, model string,
	maxLength int,
	computeBERT bool,
) (EvaluatedResult, error) {
	if s.evaluator == nil {
		return EvaluatedResult{}, fmt.Errorf("summarize and evaluate: no evaluator configured")
	}
	res, err := s.Summarize(ctx, text, model, maxLength)
	if err != nil {
		return EvaluatedResult{}, err
	}
	m, err := s.evaluator.EvaluateSingle(ctx, res.Summary, reference, computeBERT)
	if err != nil {
		return EvaluatedResult{}, fmt.Errorf("evaluating summary: %w", err)
	}
	return EvaluatedResult{
		Summary:          res.Summary,
		ModelUsed:        res.ModelUsed,
		InferenceTimeMs:  res.InferenceMs,
		Metrics:          m,
		EvaluationTimeMs: m.ProcessingTimeMs,
		TotalTimeMs:      res.TotalProcessingMs + float64(m.ProcessingTimeMs),
	}, nil
}

// Models lists the available model variants.
func (s *Service) Models() []domain.ModelInfo { return domain.Models() }

// Health reports the state of the inference server.
func (s *Service) Health(ctx context.Context) ports.InferenceHealth {
	return s.summarizer.Health(ctx)
}

// ClearCache drops every cached summary.
func (s *Service) ClearCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear(ctx)
}

func (s *Service) fromCache(ctx context.Context, key string) (Result, bool) {
	if s.cache == nil {
		return Result{}, false
	}
	b, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed", slog.String("error", err.Error()))
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal(b, &res); err != nil {
		s.logger.Warn("discarding corrupt cache entry", slog.String("error", err.Error()))
		return Result{}, false
	}
	res.Cached = true
	return res, true
}

func (s *Service) toCache(ctx context.Context, key string, res Result) {
	if s.cache == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, b, s.cacheTTL); err != nil {
		s.logger.Warn("cache write failed", slog.String("error", err.Error()))
	}
}

func (s *Service) count(metric, model, status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordCounter(metric, 1, map[string]string{
		"unit":   "summarization",
		"model":  model,
		"status": status,
	})
}

// cacheKey hashes the inputs that determine a summary.
func cacheKey(model string, maxLength int, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(maxLength)))
	h.Write([]byte{'|'})
	h.Write([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
