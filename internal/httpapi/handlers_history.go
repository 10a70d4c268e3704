package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/history"
)

type saveHistoryRequest struct {
	InputText        string  `json:"input_text" validate:"required"`
	Summary          string  `json:"summary" validate:"required"`
	ModelUsed        string  `json:"model_used" validate:"required"`
	ProcessingTimeMs float64 `json:"processing_time_ms" validate:"min=0"`
	InferenceMs      float64 `json:"inference_ms" validate:"min=0"`
}

type deleteManyRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
}

// filterRequest is the body of /history/delete-by-filter. Dates accept
// RFC 3339 timestamps or plain YYYY-MM-DD days.
type filterRequest struct {
	Model       string        `json:"model"`
	Rating      domain.Rating `json:"rating" validate:"omitempty,oneof=good bad neutral"`
	HasFeedback *bool         `json:"has_feedback"`
	FromDate    string        `json:"from_date"`
	ToDate      string        `json:"to_date"`
}

type deleteResponse struct {
	DeletedCount int    `json:"deleted_count"`
	Message      string `json:"message"`
}

func (f filterRequest) toFilter() (domain.HistoryFilter, error) {
	filter := domain.HistoryFilter{
		Model:       strings.TrimSpace(f.Model),
		Rating:      f.Rating,
		HasFeedback: f.HasFeedback,
	}
	var err error
	if filter.From, err = parseDate("from_date", f.FromDate, false); err != nil {
		return filter, err
	}
	if filter.To, err = parseDate("to_date", f.ToDate, true); err != nil {
		return filter, err
	}
	return filter, nil
}

// parseDate reads an RFC 3339 timestamp or a YYYY-MM-DD day. A bare day used
// as an upper bound covers the whole day.
func parseDate(field, v string, endOfDay bool) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, invalid("history filter", fmt.Sprintf("%s must be RFC 3339 or YYYY-MM-DD", field))
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func filterFromQuery(q url.Values) (filterRequest, error) {
	f := filterRequest{
		Model:    q.Get("model"),
		Rating:   domain.Rating(q.Get("rating")),
		FromDate: q.Get("from_date"),
		ToDate:   q.Get("to_date"),
	}
	if v := q.Get("has_feedback"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, invalid("history filter", "has_feedback must be a boolean")
		}
		f.HasFeedback = &b
	}
	return f, validateRequest(f)
}

func queryInt(q url.Values, key string, def int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalid("query", fmt.Sprintf("%s must be an integer", key))
	}
	return n, nil
}

func (s *Server) handleSaveHistory(w http.ResponseWriter, r *http.Request) {
	var req saveHistoryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.deps.History.Save(r.Context(), history.SaveInput{
		UserID:           currentUser(r).ID,
		InputText:        req.InputText,
		Summary:          req.Summary,
		Model:            req.ModelUsed,
		ProcessingTimeMs: req.ProcessingTimeMs,
		InferenceMs:      req.InferenceMs,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleListHistory pages through the caller's history. Admins may pass
// user_id to inspect another account.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fr, err := filterFromQuery(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter, err := fr.toFilter()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter.UserID = q.Get("user_id")

	page, err := queryInt(q, "page", 1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pageSize, err := queryInt(q, "page_size", history.DefaultPageSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.History.List(r.Context(), currentUser(r), filter, page, pageSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.History.Get(r.Context(), currentUser(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req history.FeedbackInput
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.deps.History.AddFeedback(r.Context(), currentUser(r), mux.Vars(r)["id"], req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleExportBad(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q, "limit", history.DefaultExportLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.History.ExportBad(r.Context(), currentUser(r), q.Get("model"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.History.Analytics(r.Context(), currentUser(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.History.Delete(r.Context(), currentUser(r), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{DeletedCount: 1, Message: "deleted"})
}

func (s *Server) handleDeleteMany(w http.ResponseWriter, r *http.Request) {
	var req deleteManyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.deps.History.DeleteMany(r.Context(), currentUser(r), req.IDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{DeletedCount: n, Message: fmt.Sprintf("deleted %d records", n)})
}

func (s *Server) handleDeleteByFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	filter, err := req.toFilter()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.deps.History.DeleteByFilter(r.Context(), currentUser(r), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{DeletedCount: n, Message: fmt.Sprintf("deleted %d records", n)})
}

// handleDeleteAllHistory requires ?confirm=true.
func (s *Server) handleDeleteAllHistory(w http.ResponseWriter, r *http.Request) {
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !ok {
		s.writeError(w, r, invalid("history", "confirm=true is required to delete all history"))
		return
	}
	n, err := s.deps.History.DeleteAll(r.Context(), currentUser(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{DeletedCount: n, Message: fmt.Sprintf("deleted %d records", n)})
}
