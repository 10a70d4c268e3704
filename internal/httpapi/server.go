// Package httpapi exposes summarization, evaluation, batch processing, the AI
// judge, history and accounts as a JSON API under /api.
//
//	srv, err := httpapi.New(httpapi.Config{MaxUploadBytes: 20 << 20}, deps)
//	if err != nil {
//		return err
//	}
//	http.ListenAndServe(":8000", srv)
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/tomtat/tomtat/internal/auth"
	"github.com/tomtat/tomtat/internal/batch"
	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/history"
	"github.com/tomtat/tomtat/internal/judge"
	"github.com/tomtat/tomtat/internal/ports"
	"github.com/tomtat/tomtat/internal/summarization"
)

// Summarizer is the summarization surface used by the API.
type Summarizer interface {
	Summarize(ctx context.Context, text, model string, maxLength int) (summarization.Result, error)
	Compare(ctx context.Context, text string, models []string, maxLength int) summarization.CompareResult
	SummarizeAndEvaluate(ctx context.Context, text, reference, model string, maxLength int, computeBERT bool) (summarization.EvaluatedResult, error)
	Models() []domain.ModelInfo
	Health(ctx context.Context) ports.InferenceHealth
	ClearCache(ctx context.Context) error
}

// Evaluator scores predictions against references.
type Evaluator interface {
	EvaluateSingle(ctx context.Context, prediction, reference string, computeBERT bool) (domain.EvaluationMetrics, error)
	EvaluateBatch(ctx context.Context, predictions, references []string, computeBERT bool, batchSize int) (domain.BatchEvaluationMetrics, error)
}

// BatchRunner processes uploaded tables.
type BatchRunner interface {
	RunSummarization(ctx context.Context, table *batch.Table, model string, maxLength int, textColumn, referenceColumn string) (domain.BatchSummary, error)
	RunEvaluationOnly(ctx context.Context, table *batch.Table, summaryColumn, referenceColumn string, computeBERT bool) (domain.EvaluationUploadSummary, error)
}

// Judge ranks candidate summaries with an LLM.
type Judge interface {
	Compare(ctx context.Context, original string, candidates []judge.Candidate) (judge.Verdict, error)
}

// Deps are the services behind the API.
type Deps struct {
	Summaries Summarizer       `validate:"required"`
	Evaluator Evaluator        `validate:"required"`
	Batch     BatchRunner      `validate:"required"`
	Judge     Judge            `validate:"required"`
	Auth      *auth.Service    `validate:"required"`
	History   *history.Service `validate:"required"`

	// Metrics and Gatherer are optional. Without a Gatherer /metrics is not
	// served.
	Metrics  ports.MetricsCollector
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Config tunes the HTTP surface.
type Config struct {
	MaxUploadBytes int64    `validate:"required,min=1024"`
	CORSOrigins    []string `validate:"dive,required"`
}

// Server routes API requests to the services.
type Server struct {
	cfg     Config
	deps    Deps
	logger  *slog.Logger
	router  *mux.Router
	handler http.Handler
}

var structValidate = validator.New()

// New builds the router and the middleware stack.
func New(cfg Config, deps Deps) (*Server, error) {
	if err := structValidate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid http config: %w", err)
	}
	if err := structValidate.Struct(deps); err != nil {
		return nil, fmt.Errorf("invalid http dependencies: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "http")),
		router: mux.NewRouter(),
	}
	s.registerRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type", requestIDHeader},
	})

	s.handler = s.withRequestID(s.withAccessLog(s.withRecover(s.withBodyLimit(c.Handler(s.router)))))
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	if s.deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()

	// Accounts.
	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", s.requireUser(s.handleMe)).Methods(http.MethodGet)
	api.HandleFunc("/auth/change-password", s.requireUser(s.handleChangePassword)).Methods(http.MethodPost)

	// Summarization.
	api.HandleFunc("/summarize", s.optionalUser(s.handleSummarize)).Methods(http.MethodPost)
	api.HandleFunc("/summarize/compare", s.handleCompare).Methods(http.MethodPost)
	api.HandleFunc("/summarize/evaluate", s.handleSummarizeEvaluate).Methods(http.MethodPost)
	api.HandleFunc("/summarize/cache", s.requireAdmin(s.handleClearCache)).Methods(http.MethodDelete)
	api.HandleFunc("/models", s.handleModels).Methods(http.MethodGet)
	api.HandleFunc("/health/inference", s.handleInferenceHealth).Methods(http.MethodGet)

	// Evaluation.
	api.HandleFunc("/evaluate", s.handleEvaluate).Methods(http.MethodPost)
	api.HandleFunc("/evaluate/batch", s.handleEvaluateBatch).Methods(http.MethodPost)

	// Uploads.
	api.HandleFunc("/batch/summarize", s.handleBatchSummarize).Methods(http.MethodPost)
	api.HandleFunc("/batch/evaluate", s.handleBatchEvaluate).Methods(http.MethodPost)

	api.HandleFunc("/judge", s.handleJudge).Methods(http.MethodPost)

	// History. Fixed paths are registered before /history/{id}.
	api.HandleFunc("/history", s.requireUser(s.handleListHistory)).Methods(http.MethodGet)
	api.HandleFunc("/history", s.requireUser(s.handleSaveHistory)).Methods(http.MethodPost)
	api.HandleFunc("/history", s.requireUser(s.handleDeleteAllHistory)).Methods(http.MethodDelete)
	api.HandleFunc("/history/analytics", s.requireUser(s.handleAnalytics)).Methods(http.MethodGet)
	api.HandleFunc("/history/export/bad", s.requireUser(s.handleExportBad)).Methods(http.MethodGet)
	api.HandleFunc("/history/delete", s.requireUser(s.handleDeleteMany)).Methods(http.MethodPost)
	api.HandleFunc("/history/delete-by-filter", s.requireUser(s.handleDeleteByFilter)).Methods(http.MethodPost)
	api.HandleFunc("/history/{id}", s.requireUser(s.handleGetHistory)).Methods(http.MethodGet)
	api.HandleFunc("/history/{id}", s.requireUser(s.handleDeleteHistory)).Methods(http.MethodDelete)
	api.HandleFunc("/history/{id}/feedback", s.requireUser(s.handleFeedback)).Methods(http.MethodPost)

	// Administration.
	api.HandleFunc("/admin/users", s.requireAdmin(s.handleListUsers)).Methods(http.MethodGet)
	api.HandleFunc("/admin/users/{id}", s.requireAdmin(s.handleDeleteUser)).Methods(http.MethodDelete)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
