package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/tomtat/tomtat/internal/batch"
	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/judge"
)

// DefaultBatchSize is used by /evaluate/batch when batch_size is omitted.
const DefaultBatchSize = 16

type evaluateRequest struct {
	Prediction    string `json:"prediction" validate:"required"`
	Reference     string `json:"reference" validate:"required"`
	CalculateBERT *bool  `json:"calculate_bert"`
}

type evaluateBatchRequest struct {
	Predictions   []string `json:"predictions" validate:"required,min=1"`
	References    []string `json:"references" validate:"required,min=1"`
	CalculateBERT *bool    `json:"calculate_bert"`
	BatchSize     *int     `json:"batch_size" validate:"omitnil,min=1,max=64"`
}

type judgeRequest struct {
	OriginalText string            `json:"original_text" validate:"required"`
	Summaries    map[string]string `json:"summaries" validate:"required,min=1"`
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.deps.Evaluator.EvaluateSingle(r.Context(), req.Prediction, req.Reference, boolOr(req.CalculateBERT, true))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	var req evaluateBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	batchSize := DefaultBatchSize
	if req.BatchSize != nil {
		batchSize = *req.BatchSize
	}
	m, err := s.deps.Evaluator.EvaluateBatch(r.Context(),
		req.Predictions, req.References, boolOr(req.CalculateBERT, true), batchSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// openUpload parses the multipart body and the table in its "file" part.
func (s *Server) openUpload(r *http.Request) (*batch.Table, error) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, invalid("upload", err.Error())
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, invalid("upload", "file is required")
	}
	defer f.Close()

	if !batch.IsSupported(hdr.Filename) {
		return nil, fmt.Errorf("%w: %s (supported: CSV, XLSX, XLS)", domain.ErrUnsupportedFormat, hdr.Filename)
	}
	return batch.ParseTable(hdr.Filename, f)
}

func formValue(r *http.Request, key, def string) string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return v
	}
	return def
}

func formBool(r *http.Request, key string, def bool) (bool, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, invalid("upload", fmt.Sprintf("%s must be a boolean", key))
	}
	return b, nil
}

func (s *Server) handleBatchSummarize(w http.ResponseWriter, r *http.Request) {
	table, err := s.openUpload(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	maxLength := DefaultMaxLength
	if v := strings.TrimSpace(r.FormValue("max_length")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 50 || n > 512 {
			s.writeError(w, r, invalid("upload", "max_length must be an integer between 50 and 512"))
			return
		}
		maxLength = n
	}

	res, err := s.deps.Batch.RunSummarization(r.Context(), table,
		formValue(r, "model", DefaultModel),
		maxLength,
		formValue(r, "text_column", batch.DefaultTextColumn),
		formValue(r, "reference_column", ""))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBatchEvaluate(w http.ResponseWriter, r *http.Request) {
	table, err := s.openUpload(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	withBERT, err := formBool(r, "calculate_bert", false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Batch.RunEvaluationOnly(r.Context(), table,
		formValue(r, "summary_column", batch.DefaultSummaryColumn),
		formValue(r, "reference_column", batch.DefaultReferenceColumn),
		withBERT)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleJudge submits candidates in model-name order so prompts are stable
// for identical requests.
func (s *Server) handleJudge(w http.ResponseWriter, r *http.Request) {
	var req judgeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	models := make([]string, 0, len(req.Summaries))
	for m := range req.Summaries {
		models = append(models, m)
	}
	sort.Strings(models)

	candidates := make([]judge.Candidate, 0, len(models))
	for _, m := range models {
		candidates = append(candidates, judge.Candidate{Model: m, Summary: req.Summaries[m]})
	}

	v, err := s.deps.Judge.Compare(r.Context(), req.OriginalText, candidates)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
