package domain

import "math"

// BatchRow is one parsed row of an uploaded table.
type BatchRow struct {
	// Index is the zero-based data row position, header excluded.
	Index     int
	Text      string
	Reference *string
}

// BatchItemResult is the outcome of one row of a summarization batch.
// A successful item always has a summary and, when a reference was present,
// the full set of metrics. A failed item carries only the error.
type BatchItemResult struct {
	Index            int      `json:"index"`
	OriginalText     string   `json:"original_text"`
	Summary          string   `json:"summary"`
	ReferenceSummary *string  `json:"reference_summary,omitempty"`
	ModelUsed        string   `json:"model_used"`
	InferenceTimeS   float64  `json:"inference_time_s"`
	Success          bool     `json:"success"`
	Error            *string  `json:"error,omitempty"`
	Rouge1           *float64 `json:"rouge1,omitempty"`
	Rouge2           *float64 `json:"rouge2,omitempty"`
	RougeL           *float64 `json:"rougeL,omitempty"`
	BLEU             *float64 `json:"bleu,omitempty"`
	BERTScore        *float64 `json:"bert_score,omitempty"`
}

// FailedItem builds the failure variant of a BatchItemResult.
func FailedItem(row BatchRow, model string, err error) BatchItemResult {
	msg := err.Error()
	return BatchItemResult{
		Index:            row.Index,
		OriginalText:     row.Text,
		ReferenceSummary: row.Reference,
		ModelUsed:        model,
		Success:          false,
		Error:            &msg,
	}
}

// WithMetrics attaches evaluation scores to a successful item.
func (r BatchItemResult) WithMetrics(m EvaluationMetrics) BatchItemResult {
	r.Rouge1 = ptr(m.Rouge1)
	r.Rouge2 = ptr(m.Rouge2)
	r.RougeL = ptr(m.RougeL)
	r.BLEU = ptr(m.BLEU)
	if m.BERTScoreComputed {
		r.BERTScore = ptr(m.BERTScore)
	}
	return r
}

// BatchSummary is the aggregate response of a summarization batch.
type BatchSummary struct {
	TotalItems      int               `json:"total_items"`
	SuccessfulItems int               `json:"successful_items"`
	FailedItems     int               `json:"failed_items"`
	ModelUsed       string            `json:"model_used"`
	TotalTimeS      float64           `json:"total_time_s"`
	AvgTimePerItemS float64           `json:"avg_time_per_item_s"`
	Results         []BatchItemResult `json:"results"`
}

// EvaluationRowResult is the outcome of one row of an evaluation-only upload.
type EvaluationRowResult struct {
	Index     int     `json:"index"`
	Summary   string  `json:"summary"`
	Reference string  `json:"reference"`
	Rouge1    float64 `json:"rouge1"`
	Rouge2    float64 `json:"rouge2"`
	RougeL    float64 `json:"rougeL"`
	BLEU      float64 `json:"bleu"`
	BERTScore float64 `json:"bert_score"`
	Success   bool    `json:"success"`
	Error     *string `json:"error,omitempty"`
}

// EvaluationUploadSummary aggregates an evaluation-only upload.
type EvaluationUploadSummary struct {
	TotalItems      int                   `json:"total_items"`
	SuccessfulItems int                   `json:"successful_items"`
	FailedItems     int                   `json:"failed_items"`
	AvgRouge1       float64               `json:"avg_rouge1"`
	AvgRouge2       float64               `json:"avg_rouge2"`
	AvgRougeL       float64               `json:"avg_rougeL"`
	AvgBLEU         float64               `json:"avg_bleu"`
	AvgBERTScore    float64               `json:"avg_bert_score"`
	TotalTimeS      float64               `json:"total_time_s"`
	AvgTimePerItemS float64               `json:"avg_time_per_item_s"`
	Results         []EvaluationRowResult `json:"results"`
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func ptr[T any](v T) *T { return &v }
