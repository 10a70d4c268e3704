package domain

// EvaluationMetrics scores one (prediction, reference) pair.
//
// BERTScore is 0 when it was not requested; BERTScoreComputed distinguishes
// that sentinel from a measured zero.
type EvaluationMetrics struct {
	Rouge1            float64 `json:"rouge1"`
	Rouge2            float64 `json:"rouge2"`
	RougeL            float64 `json:"rougeL"`
	BLEU              float64 `json:"bleu"`
	BERTScore         float64 `json:"bert_score"`
	BERTScoreComputed bool    `json:"bert_score_computed"`
	ProcessingTimeMs  int64   `json:"processing_time_ms"`
}

// BatchEvaluationMetrics aggregates scores over a whole batch of pairs.
type BatchEvaluationMetrics struct {
	AvgRouge1           float64 `json:"avg_rouge1"`
	AvgRouge2           float64 `json:"avg_rouge2"`
	AvgRougeL           float64 `json:"avg_rougeL"`
	AvgBLEU             float64 `json:"avg_bleu"`
	AvgBERTScore        float64 `json:"avg_bert_score"`
	BERTScoreComputed   bool    `json:"bert_score_computed"`
	AvgProcessingTimeMs int64   `json:"avg_processing_time_ms"`
	TotalSamples        int     `json:"total_samples"`
}
