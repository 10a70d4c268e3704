package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/ports"
)

// HistoryStore keeps history records in insertion order. Records cross the
// store boundary by copy, so callers never share a Feedback with the store.
type HistoryStore struct {
	mu      sync.RWMutex
	records []domain.HistoryRecord
}

// NewHistoryStore returns an empty HistoryStore.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

// Insert stores rec. A duplicate id is domain.ErrConflict.
func (s *HistoryStore) Insert(_ context.Context, rec domain.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(rec.ID) >= 0 {
		return domain.ErrConflict
	}
	s.records = append(s.records, cloneRecord(rec))
	return nil
}

func (s *HistoryStore) indexOf(id string) int {
	return slices.IndexFunc(s.records, func(r domain.HistoryRecord) bool { return r.ID == id })
}

func cloneRecord(r domain.HistoryRecord) domain.HistoryRecord {
	if r.Feedback != nil {
		fb := *r.Feedback
		r.Feedback = &fb
	}
	return r
}

func cloneRecords(rs []domain.HistoryRecord) []domain.HistoryRecord {
	out := make([]domain.HistoryRecord, len(rs))
	for i, r := range rs {
		out[i] = cloneRecord(r)
	}
	return out
}

// Get returns a copy of the record with the given id.

func (s *HistoryStore) Get(_ context.Context, id string) (domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.HistoryRecord{}, domain.ErrNotFound
	}
	return cloneRecord(s.records[i]), nil
}

func (s *HistoryStore) matching(filter domain.HistoryFilter) []domain.HistoryRecord {
	var out []domain.HistoryRecord
	for _, r := range s.records {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.HistoryRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// List returns one page of matching records, newest first, and the total
// number of matches.
func (s *HistoryStore) List(_ context.Context, filter domain.HistoryFilter, page, pageSize int) ([]domain.HistoryRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.matching(filter)
	start := min(max(page-1, 0)*pageSize, len(all))
	end := min(start+pageSize, len(all))
	return cloneRecords(all[start:end]), len(all), nil
}

// SetFeedback replaces the feedback on a record.
func (s *HistoryStore) SetFeedback(_ context.Context, id string, fb domain.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	s.records[i].Feedback = &fb
	return nil
}

// ListBadFeedback returns records rated bad, most recent feedback first.
func (s *HistoryStore) ListBadFeedback(_ context.Context, userID, model string, limit int) ([]domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bad := s.matching(domain.HistoryFilter{UserID: userID, Model: model, Rating: domain.RatingBad})
	slices.SortStableFunc(bad, func(a, b domain.HistoryRecord) int {
		return b.Feedback.FeedbackAt.Compare(a.Feedback.FeedbackAt)
	})
	if limit > 0 && len(bad) > limit {
		bad = bad[:limit]
	}
	return cloneRecords(bad), nil
}

// Delete removes the listed records. A non-empty userID restricts deletion to
// that user's records.
func (s *HistoryStore) Delete(_ context.Context, userID string, ids ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.records)
	s.records = slices.DeleteFunc(s.records, func(r domain.HistoryRecord) bool {
		return (userID == "" || r.UserID == userID) && slices.Contains(ids, r.ID)
	})
	return before - len(s.records), nil
}

// DeleteMatching removes every record the filter matches.
func (s *HistoryStore) DeleteMatching(_ context.Context, filter domain.HistoryFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.records)
	s.records = slices.DeleteFunc(s.records, filter.Match)
	return before - len(s.records), nil
}

// Stats aggregates per-model counts, averages and ratings.
func (s *HistoryStore) Stats(_ context.Context, userID string) (domain.Analytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byModel := make(map[string]*domain.ModelStats)
	var out domain.Analytics
	for _, r := range s.matching(domain.HistoryFilter{UserID: userID}) {
		out.TotalSummaries++
		st, ok := byModel[r.ModelUsed]
		if !ok {
			st = &domain.ModelStats{Model: r.ModelUsed}
			byModel[r.ModelUsed] = st
		}
		st.Count++
		st.AvgCompressionRatio += r.Metrics.CompressionRatio
		st.AvgProcessingTimeMs += r.Metrics.ProcessingTimeMs
		if r.Feedback == nil {
			continue
		}
		out.WithFeedback++
		switch r.Feedback.Rating {
		case domain.RatingGood:
			st.Good++
		case domain.RatingBad:
			st.Bad++
		case domain.RatingNeutral:
			st.Neutral++
		}
	}

	out.Models = make([]domain.ModelStats, 0, len(byModel))
	for _, st := range byModel {
		st.AvgCompressionRatio = domain.Round(st.AvgCompressionRatio/float64(st.Count), 2)
		st.AvgProcessingTimeMs = domain.Round(st.AvgProcessingTimeMs/float64(st.Count), 2)
		out.Models = append(out.Models, *st)
	}
	slices.SortFunc(out.Models, func(a, b domain.ModelStats) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Model, b.Model)
	})
	return out, nil
}

var _ ports.HistoryStore = (*HistoryStore)(nil)
