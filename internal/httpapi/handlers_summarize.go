package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/history"
	"github.com/tomtat/tomtat/internal/summarization"
)

// Request defaults.
const (
	DefaultModel     = string(domain.ModelViT5)
	DefaultMaxLength = 256
)

type summarizeRequest struct {
	Text      string `json:"text" validate:"required"`
	Model     string `json:"model"`
	MaxLength int    `json:"max_length" validate:"omitempty,min=50,max=512"`
}

func (req *summarizeRequest) defaults() error {
	if strings.TrimSpace(req.Text) == "" {
		return invalid("text", domain.ErrEmptyText.Error())
	}
	if req.Model == "" {
		req.Model = DefaultModel
	}
	if req.MaxLength == 0 {
		req.MaxLength = DefaultMaxLength
	}
	return nil
}

type summarizeResponse struct {
	summarization.Result
	HistoryID string `json:"history_id,omitempty"`
}

type compareRequest struct {
	Text      string   `json:"text" validate:"required"`
	Models    []string `json:"models" validate:"omitempty,max=8,dive,required"`
	MaxLength int      `json:"max_length" validate:"omitempty,min=50,max=512"`
}

type summarizeEvaluateRequest struct {
	summarizeRequest
	Reference     string `json:"reference" validate:"required"`
	CalculateBERT bool   `json:"calculate_bert"`
}

// handleSummarize records the summary in the caller's history when the
// request is authenticated. A failed save is logged and does not fail the
// request.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.defaults(); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Summaries.Summarize(r.Context(), req.Text, req.Model, req.MaxLength)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := summarizeResponse{Result: res}
	if u, ok := UserFrom(r.Context()); ok {
		rec, err := s.deps.History.Save(r.Context(), history.SaveInput{
			UserID:           u.ID,
			InputText:        req.Text,
			Summary:          res.Summary,
			Model:            string(res.ModelUsed),
			ProcessingTimeMs: res.TotalProcessingMs,
			InferenceMs:      res.InferenceMs,
		})
		if err != nil {
			s.logger.Warn("saving history failed",
				slog.String("request_id", RequestID(r.Context())),
				slog.String("user_id", u.ID),
				slog.String("error", err.Error()))
		} else {
			resp.HistoryID = rec.ID
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, r, invalid("text", domain.ErrEmptyText.Error()))
		return
	}
	if len(req.Models) == 0 {
		for _, m := range s.deps.Summaries.Models() {
			req.Models = append(req.Models, string(m.ID))
		}
	}
	if req.MaxLength == 0 {
		req.MaxLength = DefaultMaxLength
	}
	writeJSON(w, http.StatusOK, s.deps.Summaries.Compare(r.Context(), req.Text, req.Models, req.MaxLength))
}

func (s *Server) handleSummarizeEvaluate(w http.ResponseWriter, r *http.Request) {
	var req summarizeEvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.defaults(); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Summaries.SummarizeAndEvaluate(r.Context(),
		req.Text, req.Reference, req.Model, req.MaxLength, req.CalculateBERT)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Summaries.Models())
}

func (s *Server) handleInferenceHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Summaries.Health(r.Context()))
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Summaries.ClearCache(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
