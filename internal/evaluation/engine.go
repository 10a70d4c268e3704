// Package evaluation scores generated summaries against references with
// ROUGE, corpus BLEU and BERTScore over Vietnamese word-segmented text.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/ports"
)

// Batch size bounds for BERTScore chunking.
const (
	DefaultBatchSize = 16
	MaxBatchSize     = 64
)

var validate = validator.New()

// Config controls the evaluation engine.
type Config struct {
	// DefaultBatchSize is used when a caller passes a non-positive size.
	DefaultBatchSize int `yaml:"default_batch_size" json:"default_batch_size" validate:"min=1,max=64"`
	// DictionaryPath optionally replaces the embedded segmentation
	// dictionary with a file on disk.
	DictionaryPath string `yaml:"dictionary_path" json:"dictionary_path" validate:"omitempty,file"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{DefaultBatchSize: DefaultBatchSize}
}

// Engine computes summary quality metrics. The segmenter and the BERTScore
// backend are built on first use and shared by all callers.
type Engine struct {
	cfg       Config
	segmenter *lazy[*Segmenter]
	bert      *lazy[*BERTScorer]
	logger    *slog.Logger
	metrics   ports.MetricsCollector
	tracer    trace.Tracer
}

// NewEngine validates cfg and creates an Engine. embedder may be nil, in which
// case results report BERTScoreComputed=false. metrics may be nil.
func NewEngine(
	cfg Config,
	embedder ports.TokenEmbedder,
	logger *slog.Logger,
	metrics ports.MetricsCollector,
) (*Engine, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid evaluation config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "evaluation")),
		metrics: metrics,
		tracer:  otel.Tracer("evaluation-engine"),
	}
	e.segmenter = newLazy(e.loadSegmenter)
	e.bert = newLazy(func(ctx context.Context) (*BERTScorer, error) {
		if embedder == nil {
			return nil, fmt.Errorf("bertscore: no embedding backend configured")
		}
		start := time.Now()
		s := NewBERTScorer(embedder)
		if err := s.warm(ctx); err != nil {
			return nil, err
		}
		e.logger.Info("bertscore backend loaded", slog.Duration("took", time.Since(start)))
		return s, nil
	})
	return e, nil
}

func (e *Engine) loadSegmenter(context.Context) (*Segmenter, error) {
	var (
		dict *Dictionary
		err  error
	)
	if e.cfg.DictionaryPath == "" {
		dict, err = DefaultDictionary()
	} else {
		var f *os.File
		f, err = os.Open(e.cfg.DictionaryPath)
		if err != nil {
			return nil, fmt.Errorf("opening dictionary: %w", err)
		}
		defer f.Close()
		dict, err = LoadDictionary(f)
	}
	if err != nil {
		return nil, err
	}
	e.logger.Info("word segmenter loaded", slog.Int("words", dict.Len()))
	return NewSegmenter(dict), nil
}

// Warm loads every backend eagerly. The BERTScore backend is only loaded
// when withBERT is set.
func (e *Engine) Warm(ctx context.Context, withBERT bool) error {
	if _, err := e.segmenter.get(ctx); err != nil {
		return err
	}
	if withBERT {
		if _, err := e.bert.get(ctx); err != nil {
			return err
		}
	}
	return nil
}

// EvaluateSingle scores one prediction against one reference.
func (e *Engine) EvaluateSingle(
	ctx context.Context,
	prediction, reference string,
	computeBERT bool,
) (domain.EvaluationMetrics, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.EvaluateSingle",
		trace.WithAttributes(attribute.Bool("evaluation.bert", computeBERT)))
	defer span.End()

	start := time.Now()
	res, err := e.evaluate(ctx, []string{prediction}, []string{reference}, computeBERT, 1)
	if err != nil {
		span.RecordError(err)
		return domain.EvaluationMetrics{}, err
	}

	m := domain.EvaluationMetrics{
		Rouge1:            res.rouge.Rouge1,
		Rouge2:            res.rouge.Rouge2,
		RougeL:            res.rouge.RougeL,
		BLEU:              res.bleu,
		BERTScore:         res.bert,
		BERTScoreComputed: res.bertComputed,
		ProcessingTimeMs:  time.Since(start).Milliseconds(),
	}
	e.record("single", m.Rouge1, m.BLEU, time.Since(start))
	return m, nil
}

// EvaluateBatch scores aligned predictions and references as a corpus.
// ROUGE and BERTScore are the mean of per-pair scores; BLEU is corpus-level.
// batchSize is clamped to [1, MaxBatchSize]; a non-positive value selects the
// configured default.
func (e *Engine) EvaluateBatch(
	ctx context.Context,
	predictions, references []string,
	computeBERT bool,
	batchSize int,
) (domain.BatchEvaluationMetrics, error) {
	if len(predictions) != len(references) {
		return domain.BatchEvaluationMetrics{}, &domain.LengthMismatchError{
			Predictions: len(predictions),
			References:  len(references),
		}
	}
	batchSize = e.clampBatchSize(batchSize)

	ctx, span := e.tracer.Start(ctx, "Engine.EvaluateBatch",
		trace.WithAttributes(
			attribute.Int("evaluation.samples", len(predictions)),
			attribute.Int("evaluation.batch_size", batchSize),
			attribute.Bool("evaluation.bert", computeBERT),
		))
	defer span.End()

	n := len(predictions)
	if n == 0 {
		return domain.BatchEvaluationMetrics{}, nil
	}

	start := time.Now()
	res, err := e.evaluate(ctx, predictions, references, computeBERT, batchSize)
	if err != nil {
		span.RecordError(err)
		return domain.BatchEvaluationMetrics{}, err
	}
	took := time.Since(start)

	e.logger.Debug("batch evaluated",
		slog.Int("samples", n),
		slog.Bool("bert", computeBERT),
		slog.Duration("took", took))
	e.record("batch", res.rouge.Rouge1, res.bleu, took)

	return domain.BatchEvaluationMetrics{
		AvgRouge1:           res.rouge.Rouge1,
		AvgRouge2:           res.rouge.Rouge2,
		AvgRougeL:           res.rouge.RougeL,
		AvgBLEU:             res.bleu,
		AvgBERTScore:        res.bert,
		BERTScoreComputed:   res.bertComputed,
		AvgProcessingTimeMs: took.Milliseconds() / int64(n),
		TotalSamples:        n,
	}, nil
}

func (e *Engine) clampBatchSize(size int) int {
	if size <= 0 {
		size = e.cfg.DefaultBatchSize
	}
	return min(max(size, 1), MaxBatchSize)
}

type scores struct {
	rouge        RougeScores
	bleu         float64
	bert         float64
	bertComputed bool
}

func (e *Engine) evaluate(
	ctx context.Context,
	predictions, references []string,
	computeBERT bool,
	batchSize int,
) (scores, error) {
	seg, err := e.segmenter.get(ctx)
	if err != nil {
		return scores{}, fmt.Errorf("loading segmenter: %w", err)
	}

	predToks := make([][]string, len(predictions))
	refToks := make([][]string, len(references))
	rougePred := make([][]string, len(predictions))
	rougeRef := make([][]string, len(references))
	for i := range predictions {
		predToks[i] = seg.Tokens(predictions[i])
		refToks[i] = seg.Tokens(references[i])
		rougePred[i] = rougeTokens(predToks[i])
		rougeRef[i] = rougeTokens(refToks[i])
	}

	out := scores{
		rouge: rougeCorpus(rougePred, rougeRef),
		bleu:  corpusBLEU(predToks, refToks),
	}
	if !computeBERT {
		return out, nil
	}

	f1, err := e.bertScores(ctx, predictions, references, batchSize)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return scores{}, ctxErr
		}
		// Lexical scores stand on their own when the embedding backend is down.
		e.logger.WarnContext(ctx, "bertscore unavailable",
			slog.Int("samples", len(predictions)),
			slog.String("error", err.Error()))
		return out, nil
	}
	for _, f := range f1 {
		out.bert += f
	}
	out.bert /= float64(len(f1))
	out.bertComputed = true
	return out, nil
}

func (e *Engine) bertScores(
	ctx context.Context,
	predictions, references []string,
	batchSize int,
) ([]float64, error) {
	scorer, err := e.bert.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading bertscore: %w", err)
	}
	return scorer.Score(ctx, predictions, references, batchSize)
}

func (e *Engine) record(kind string, rouge1, bleu float64, took time.Duration) {
	if e.metrics == nil {
		return
	}
	labels := map[string]string{"unit": "evaluation", "kind": kind}
	e.metrics.RecordHistogram("evaluation_latency_seconds", took.Seconds(), labels)
	e.metrics.RecordHistogram("evaluation_rouge1", rouge1, labels)
	e.metrics.RecordHistogram("evaluation_bleu", bleu, labels)
	e.metrics.RecordCounter("evaluations_total", 1, labels)
}
