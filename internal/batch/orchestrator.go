// Package batch runs summarization and evaluation over uploaded tables,
// one row at a time, recording per-row failures without aborting the run.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/ports"
	"github.com/tomtat/tomtat/internal/summarization"
)

// Default column names of evaluation-only uploads.
const (
	DefaultTextColumn      = "text"
	DefaultSummaryColumn   = "summary"
	DefaultReferenceColumn = "reference"
)

// Summarizer produces one summary.
type Summarizer interface {
	Summarize(ctx context.Context, text, model string, maxLength int) (summarization.Result, error)
}

// Evaluator scores one summary against one reference.
type Evaluator interface {
	EvaluateSingle(ctx context.Context, prediction, reference string, computeBERT bool) (domain.EvaluationMetrics, error)
}

// Orchestrator drives batch runs. Rows are processed sequentially so the
// remote inference server and the embedding backend see one request at a
// time.
type Orchestrator struct {
	summarizer Summarizer
	evaluator  Evaluator
	logger     *slog.Logger
	metrics    ports.MetricsCollector
	tracer     trace.Tracer
}

// NewOrchestrator creates an Orchestrator. logger and metrics may be nil.
func NewOrchestrator(s Summarizer, e Evaluator, logger *slog.Logger, metrics ports.MetricsCollector) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		summarizer: s,
		evaluator:  e,
		logger:     logger.With(slog.String("component", "batch")),
		metrics:    metrics,
		tracer:     otel.Tracer("batch-orchestrator"),
	}
}

// RunSummarization summarizes every row of table with model. When
// referenceColumn is set, rows with a reference are also scored without
// BERTScore. Missing columns and unknown models fail the whole run before
// any row is processed.
func (o *Orchestrator) RunSummarization(
	ctx context.Context,
	table *Table,
	model string,
	maxLength int,
	textColumn, referenceColumn string,
) (domain.BatchSummary, error) {
	if _, err := domain.ParseModelVariant(model); err != nil {
		return domain.BatchSummary{}, err
	}
	if textColumn == "" {
		textColumn = DefaultTextColumn
	}
	textCol, err := table.Column(textColumn)
	if err != nil {
		return domain.BatchSummary{}, err
	}
	refCol := -1
	if strings.TrimSpace(referenceColumn) != "" {
		if refCol, err = table.Column(referenceColumn); err != nil {
			return domain.BatchSummary{}, err
		}
	}

	ctx, span := o.tracer.Start(ctx, "Orchestrator.RunSummarization",
		trace.WithAttributes(
			attribute.String("batch.model", model),
			attribute.Int("batch.rows", table.Len()),
			attribute.Bool("batch.with_reference", refCol >= 0),
		))
	defer span.End()

	start := time.Now()
	results := make([]domain.BatchItemResult, 0, table.Len())
	succeeded := 0

	for i := range table.Len() {
		row := domain.BatchRow{Index: i, Text: table.Cell(i, textCol)}
		if refCol >= 0 {
			if ref := table.Cell(i, refCol); strings.TrimSpace(ref) != "" {
				row.Reference = &ref
			}
		}

		item, err := o.summarizeRow(ctx, row, model, maxLength)
		if err != nil {
			o.logger.Warn("batch row failed",
				slog.Int("index", i),
				slog.String("model", model),
				slog.String("error", err.Error()))
			item = domain.FailedItem(row, model, err)
			o.count("failed")
		} else {
			succeeded++
			o.count("success")
		}
		results = append(results, item)
	}

	total := time.Since(start).Seconds()
	summary := domain.BatchSummary{
		TotalItems:      len(results),
		SuccessfulItems: succeeded,
		FailedItems:     len(results) - succeeded,
		ModelUsed:       model,
		TotalTimeS:      domain.Round(total, 2),
		Results:         results,
	}
	if len(results) > 0 {
		summary.AvgTimePerItemS = domain.Round(total/float64(len(results)), 2)
	}

	span.SetAttributes(attribute.Int("batch.failed", summary.FailedItems))
	o.logger.Info("batch summarization finished",
		slog.String("model", model),
		slog.Int("total", summary.TotalItems),
		slog.Int("failed", summary.FailedItems),
		slog.Float64("total_s", summary.TotalTimeS))
	return summary, nil
}

func (o *Orchestrator) summarizeRow(
	ctx context.Context,
	row domain.BatchRow,
	model string,
	maxLength int,
) (domain.BatchItemResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.BatchItemResult{}, err
	}
	if strings.TrimSpace(row.Text) == "" {
		return domain.BatchItemResult{}, domain.ErrEmptyText
	}

	res, err := o.summarizer.Summarize(ctx, row.Text, model, maxLength)
	if err != nil {
		return domain.BatchItemResult{}, err
	}
	item := domain.BatchItemResult{
		Index:            row.Index,
		OriginalText:     row.Text,
		Summary:          res.Summary,
		ReferenceSummary: row.Reference,
		ModelUsed:        model,
		InferenceTimeS:   res.InferenceS,
		Success:          true,
	}
	if row.Reference == nil {
		return item, nil
	}

	m, err := o.evaluator.EvaluateSingle(ctx, res.Summary, *row.Reference, false)
	if err != nil {
		return domain.BatchItemResult{}, fmt.Errorf("evaluating row: %w", err)
	}
	return item.WithMetrics(m), nil
}

// RunEvaluationOnly scores pre-written summaries against references. Rows
// with a blank summary or reference are still scored and logged so that
// result indexes stay aligned with the upload.
func (o *Orchestrator) RunEvaluationOnly(
	ctx context.Context,
	table *Table,
	summaryColumn, referenceColumn string,
	computeBERT bool,
) (domain.EvaluationUploadSummary, error) {
	if summaryColumn == "" {
		summaryColumn = DefaultSummaryColumn
	}
	if referenceColumn == "" {
		referenceColumn = DefaultReferenceColumn
	}
	sumCol, err := table.Column(summaryColumn)
	if err != nil {
		return domain.EvaluationUploadSummary{}, err
	}
	refCol, err := table.Column(referenceColumn)
	if err != nil {
		return domain.EvaluationUploadSummary{}, err
	}

	ctx, span := o.tracer.Start(ctx, "Orchestrator.RunEvaluationOnly",
		trace.WithAttributes(
			attribute.Int("batch.rows", table.Len()),
			attribute.Bool("batch.bert", computeBERT),
		))
	defer span.End()

	start := time.Now()
	out := domain.EvaluationUploadSummary{Results: make([]domain.EvaluationRowResult, 0, table.Len())}

	for i := range table.Len() {
		row := domain.EvaluationRowResult{
			Index:     i,
			Summary:   table.Cell(i, sumCol),
			Reference: table.Cell(i, refCol),
		}
		if strings.TrimSpace(row.Summary) == "" || strings.TrimSpace(row.Reference) == "" {
			o.logger.Warn("evaluation row has a blank cell",
				slog.Int("index", i),
				slog.Bool("blank_summary", strings.TrimSpace(row.Summary) == ""),
				slog.Bool("blank_reference", strings.TrimSpace(row.Reference) == ""))
		}

		err := ctx.Err()
		var m domain.EvaluationMetrics
		if err == nil {
			m, err = o.evaluator.EvaluateSingle(ctx, row.Summary, row.Reference, computeBERT)
		}
		if err != nil {
			msg := err.Error()
			row.Error = &msg
			out.FailedItems++
			o.count("failed")
			out.Results = append(out.Results, row)
			continue
		}

		row.Success = true
		row.Rouge1, row.Rouge2, row.RougeL = m.Rouge1, m.Rouge2, m.RougeL
		row.BLEU, row.BERTScore = m.BLEU, m.BERTScore
		out.SuccessfulItems++
		out.AvgRouge1 += m.Rouge1
		out.AvgRouge2 += m.Rouge2
		out.AvgRougeL += m.RougeL
		out.AvgBLEU += m.BLEU
		out.AvgBERTScore += m.BERTScore
		o.count("success")
		out.Results = append(out.Results, row)
	}

	if n := float64(out.SuccessfulItems); n > 0 {
		out.AvgRouge1 /= n
		out.AvgRouge2 /= n
		out.AvgRougeL /= n
		out.AvgBLEU /= n
		out.AvgBERTScore /= n
	}
	out.TotalItems = len(out.Results)
	total := time.Since(start).Seconds()
	out.TotalTimeS = domain.Round(total, 3)
	if out.TotalItems > 0 {
		out.AvgTimePerItemS = domain.Round(total/float64(out.TotalItems), 3)
	}

	o.logger.Info("batch evaluation finished",
		slog.Int("total", out.TotalItems),
		slog.Int("failed", out.FailedItems),
		slog.Bool("bert", computeBERT),
		slog.Float64("total_s", out.TotalTimeS))
	return out, nil
}

func (o *Orchestrator) count(status string) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordCounter("batch_rows_total", 1, map[string]string{"unit": "batch", "status": status})
}
