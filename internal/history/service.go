// Package history stores past summarizations with their user feedback and
// exposes listing, export and cleanup operations scoped to the requesting
// user.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/ports"
)

// Paging and export limits.
const (
	DefaultPageSize    = 20
	MaxPageSize        = 100
	DefaultExportLimit = 100
	MaxCommentLength   = 500
)

var validate = validator.New()

// SaveInput describes a completed summarization to record.
type SaveInput struct {
	UserID           string  `validate:"required"`
	InputText        string  `validate:"required"`
	Summary          string  `validate:"required"`
	Model            string  `validate:"required"`
	ProcessingTimeMs float64 `validate:"min=0"`
	InferenceMs      float64 `validate:"min=0"`
}

// FeedbackInput is the user's assessment of a record.
type FeedbackInput struct {
	Rating           domain.Rating `json:"rating" validate:"required,oneof=good bad neutral"`
	Comment          string        `json:"comment"`
	CorrectedSummary string        `json:"corrected_summary"`
}

// ExportItem is one bad summary in a training-data export.
type ExportItem struct {
	InputText        string        `json:"input_text"`
	GeneratedSummary string        `json:"generated_summary"`
	CorrectedSummary string        `json:"corrected_summary,omitempty"`
	ModelUsed        string        `json:"model_used"`
	Rating           domain.Rating `json:"rating"`
	Comment          string        `json:"comment,omitempty"`
}

// Export is the result of ExportBad.
type Export struct {
	TotalItems int          `json:"total_items"`
	Items      []ExportItem `json:"items"`
	ExportedAt time.Time    `json:"exported_at"`
}

// Service implements history operations over a ports.HistoryStore.
type Service struct {
	store  ports.HistoryStore
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a Service. logger may be nil.
func NewService(store ports.HistoryStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		now:    time.Now,
		logger: logger.With(slog.String("component", "history")),
	}
}

// Save records a summarization and derives its size metrics.
func (s *Service) Save(ctx context.Context, in SaveInput) (domain.HistoryRecord, error) {
	if err := validate.Struct(in); err != nil {
		verr := domain.NewValidationError("history record")
		verr.AddError(err.Error())
		return domain.HistoryRecord{}, verr
	}
	rec := domain.HistoryRecord{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		InputText: in.InputText,
		Summary:   in.Summary,
		ModelUsed: in.Model,
		CreatedAt: s.now().UTC(),
		Metrics:   ComputeMetrics(in.InputText, in.Summary, in.ProcessingTimeMs, in.InferenceMs),
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("saving history: %w", err)
	}
	return rec, nil
}

// ComputeMetrics counts words and derives the compression ratio, the input
// word count divided by the summary word count rounded to 2 places. An empty
// summary has ratio 0.
func ComputeMetrics(input, summary string, processingMs, inferenceMs float64) domain.HistoryMetrics {
	in, out := len(strings.Fields(input)), len(strings.Fields(summary))
	m := domain.HistoryMetrics{
		InputWords:       in,
		OutputWords:      out,
		ProcessingTimeMs: domain.Round(processingMs, 2),
		InferenceMs:      domain.Round(inferenceMs, 2),
	}
	if out > 0 {
		m.CompressionRatio = domain.Round(float64(in)/float64(out), 2)
	}
	return m
}

// Get returns a record owned by requester. Admins may read any record.
func (s *Service) Get(ctx context.Context, requester domain.User, id string) (domain.HistoryRecord, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	if rec.UserID != requester.ID && !requester.IsAdmin() {
		return domain.HistoryRecord{}, domain.ErrForbidden
	}
	return rec, nil
}

// List returns one page of records, newest first. Non-admins only see their
// own records whatever filter.UserID says. page below 1 is treated as 1 and
// pageSize is clamped to [1, MaxPageSize] with 0 meaning DefaultPageSize.
func (s *Service) List(ctx context.Context, requester domain.User, filter domain.HistoryFilter, page, pageSize int) (domain.Page[domain.HistoryRecord], error) {
	filter = scope(requester, filter)
	page = max(page, 1)
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		verr := domain.NewValidationError("history filter")
		verr.AddError("from_date must not be after to_date")
		return domain.Page[domain.HistoryRecord]{}, verr
	}

	items, total, err := s.store.List(ctx, filter, page, pageSize)
	if err != nil {
		return domain.Page[domain.HistoryRecord]{}, fmt.Errorf("listing history: %w", err)
	}
	return domain.NewPage(items, total, page, pageSize), nil
}

// AddFeedback sets or replaces the feedback on a record.
func (s *Service) AddFeedback(ctx context.Context, requester domain.User, id string, in FeedbackInput) (domain.HistoryRecord, error) {
	verr := domain.NewValidationError("feedback")
	if err := validate.Struct(in); err != nil {
		verr.AddError(fmt.Sprintf("rating must be one of good, bad, neutral (got %q)", in.Rating))
	}
	if utf8.RuneCountInString(in.Comment) > MaxCommentLength {
		verr.AddError(fmt.Sprintf("comment must be at most %d characters", MaxCommentLength))
	}
	if verr.HasErrors() {
		return domain.HistoryRecord{}, verr
	}

	rec, err := s.Get(ctx, requester, id)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	fb := domain.Feedback{
		Rating:           in.Rating,
		Comment:          strings.TrimSpace(in.Comment),
		CorrectedSummary: strings.TrimSpace(in.CorrectedSummary),
		FeedbackAt:       s.now().UTC(),
	}
	if err := s.store.SetFeedback(ctx, id, fb); err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("saving feedback: %w", err)
	}
	rec.Feedback = &fb
	s.logger.Info("feedback recorded",
		slog.String("history_id", id),
		slog.String("rating", string(fb.Rating)))
	return rec, nil
}

// ExportBad returns summaries rated bad, most recently rated first, as
// training data. Admins export across all users. limit 0 means
// DefaultExportLimit.
func (s *Service) ExportBad(ctx context.Context, requester domain.User, model string, limit int) (Export, error) {
	if limit <= 0 {
		limit = DefaultExportLimit
	}
	userID := requester.ID
	if requester.IsAdmin() {
		userID = ""
	}
	recs, err := s.store.ListBadFeedback(ctx, userID, model, limit)
	if err != nil {
		return Export{}, fmt.Errorf("exporting bad summaries: %w", err)
	}
	out := Export{Items: make([]ExportItem, 0, len(recs)), ExportedAt: s.now().UTC()}
	for _, r := range recs {
		item := ExportItem{
			InputText:        r.InputText,
			GeneratedSummary: r.Summary,
			ModelUsed:        r.ModelUsed,
			Rating:           domain.RatingBad,
		}
		if r.Feedback != nil {
			item.CorrectedSummary = r.Feedback.CorrectedSummary
			item.Comment = r.Feedback.Comment
		}
		out.Items = append(out.Items, item)
	}
	out.TotalItems = len(out.Items)
	return out, nil
}

// Delete removes one record owned by requester.
func (s *Service) Delete(ctx context.Context, requester domain.User, id string) error {
	if _, err := s.Get(ctx, requester, id); err != nil {
		return err
	}
	n, err := s.store.Delete(ctx, "", id)
	if err != nil {
		return fmt.Errorf("deleting history: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteMany removes the listed records that requester owns and reports how
// many were removed. Ids of other users' records are skipped.
func (s *Service) DeleteMany(ctx context.Context, requester domain.User, ids []string) (int, error) {
	if len(ids) == 0 {
		verr := domain.NewValidationError("delete request")
		verr.AddError("at least one id is required")
		return 0, verr
	}
	owner := requester.ID
	if requester.IsAdmin() {
		owner = ""
	}
	n, err := s.store.Delete(ctx, owner, ids...)
	if err != nil {
		return 0, fmt.Errorf("deleting history: %w", err)
	}
	s.logger.Info("history deleted", slog.Int("requested", len(ids)), slog.Int("deleted", n))
	return n, nil
}

// ErrEmptyFilter is returned by DeleteByFilter when no narrowing field is set.
var ErrEmptyFilter = errors.New("at least one filter is required")

// DeleteByFilter removes requester's records matching filter. At least one
// of model, rating, feedback presence or date bound must be set.
func (s *Service) DeleteByFilter(ctx context.Context, requester domain.User, filter domain.HistoryFilter) (int, error) {
	if filter.IsEmpty() {
		verr := domain.NewValidationError("delete filter")
		verr.AddError(ErrEmptyFilter.Error())
		return 0, verr
	}
	n, err := s.store.DeleteMatching(ctx, scope(requester, filter))
	if err != nil {
		return 0, fmt.Errorf("deleting history: %w", err)
	}
	s.logger.Info("history deleted by filter", slog.Int("deleted", n))
	return n, nil
}

// DeleteAll removes every record of requester.
func (s *Service) DeleteAll(ctx context.Context, requester domain.User) (int, error) {
	n, err := s.store.DeleteMatching(ctx, domain.HistoryFilter{UserID: requester.ID})
	if err != nil {
		return 0, fmt.Errorf("deleting history: %w", err)
	}
	s.logger.Warn("all history deleted",
		slog.String("user_id", requester.ID),
		slog.Int("deleted", n))
	return n, nil
}

// Analytics summarizes requester's history per model.
func (s *Service) Analytics(ctx context.Context, requester domain.User) (domain.Analytics, error) {
	a, err := s.store.Stats(ctx, requester.ID)
	if err != nil {
		return domain.Analytics{}, fmt.Errorf("computing analytics: %w", err)
	}
	if a.Models == nil {
		a.Models = []domain.ModelStats{}
	}
	return a, nil
}

// scope restricts non-admin queries to the requester's own records.
func scope(requester domain.User, filter domain.HistoryFilter) domain.HistoryFilter {
	if !requester.IsAdmin() || filter.UserID == "" {
		filter.UserID = requester.ID
	}
	return filter
}
