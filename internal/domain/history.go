package domain

import (
	"time"
)

// Rating is the user's verdict on a generated summary.
type Rating string

const (
	RatingGood    Rating = "good"
	RatingBad     Rating = "bad"
	RatingNeutral Rating = "neutral"
)

// Valid reports whether r is a known rating.
func (r Rating) Valid() bool {
	return r == RatingGood || r == RatingBad || r == RatingNeutral
}

// HistoryMetrics are the size and timing figures stored with each summary.
type HistoryMetrics struct {
	InputWords       int     `json:"input_words" bson:"input_words"`
	OutputWords      int     `json:"output_words" bson:"output_words"`
	CompressionRatio float64 `json:"compression_ratio" bson:"compression_ratio"`
	ProcessingTimeMs float64 `json:"processing_time_ms" bson:"processing_time_ms"`
	InferenceMs      float64 `json:"inference_ms" bson:"inference_ms"`
}

// Feedback is the optional user assessment attached to a history record.
type Feedback struct {
	Rating           Rating    `json:"rating" bson:"rating"`
	Comment          string    `json:"comment,omitempty" bson:"comment,omitempty"`
	CorrectedSummary string    `json:"corrected_summary,omitempty" bson:"corrected_summary,omitempty"`
	FeedbackAt       time.Time `json:"feedback_at" bson:"feedback_at"`
}

// HistoryRecord is one persisted summarization.
type HistoryRecord struct {
	ID        string         `json:"id" bson:"_id"`
	UserID    string         `json:"user_id" bson:"user_id"`
	InputText string         `json:"input_text" bson:"input_text"`
	Summary   string         `json:"summary" bson:"summary"`
	ModelUsed string         `json:"model_used" bson:"model_used"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at"`
	Metrics   HistoryMetrics `json:"metrics" bson:"metrics"`
	Feedback  *Feedback      `json:"feedback,omitempty" bson:"feedback,omitempty"`
}

// HistoryFilter narrows list and bulk-delete queries. Zero fields are ignored.
type HistoryFilter struct {
	UserID      string
	Model       string
	Rating      Rating
	HasFeedback *bool
	From        *time.Time
	To          *time.Time
}

// IsEmpty reports whether no narrowing field besides UserID is set.
func (f HistoryFilter) IsEmpty() bool {
	return f.Model == "" && f.Rating == "" && f.HasFeedback == nil && f.From == nil && f.To == nil
}

// Match reports whether rec satisfies the filter.
func (f HistoryFilter) Match(rec HistoryRecord) bool {
	if f.UserID != "" && rec.UserID != f.UserID {
		return false
	}
	if f.Model != "" && rec.ModelUsed != f.Model {
		return false
	}
	if f.Rating != "" && (rec.Feedback == nil || rec.Feedback.Rating != f.Rating) {
		return false
	}
	if f.HasFeedback != nil && (rec.Feedback != nil) != *f.HasFeedback {
		return false
	}
	if f.From != nil && rec.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && rec.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// NewPage computes TotalPages from total and pageSize.
func NewPage[T any](items []T, total, page, pageSize int) Page[T] {
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Page: page, PageSize: pageSize, TotalPages: pages}
}

// ModelStats aggregates history per model for analytics.
type ModelStats struct {
	Model               string  `json:"model" bson:"_id"`
	Count               int     `json:"count" bson:"count"`
	AvgCompressionRatio float64 `json:"avg_compression_ratio" bson:"avg_compression_ratio"`
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms" bson:"avg_processing_time_ms"`
	Good                int     `json:"good" bson:"good"`
	Bad                 int     `json:"bad" bson:"bad"`
	Neutral             int     `json:"neutral" bson:"neutral"`
}

// Analytics is the per-user overview of stored history.
type Analytics struct {
	TotalSummaries int          `json:"total_summaries"`
	WithFeedback   int          `json:"with_feedback"`
	Models         []ModelStats `json:"models"`
}
