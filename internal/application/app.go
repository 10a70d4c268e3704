package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tomtat/tomtat/infrastructure/cache"
	"github.com/tomtat/tomtat/infrastructure/llm"
	"github.com/tomtat/tomtat/infrastructure/middleware"
	"github.com/tomtat/tomtat/infrastructure/storage/memory"
	"github.com/tomtat/tomtat/infrastructure/storage/mongodb"
	"github.com/tomtat/tomtat/internal/auth"
	"github.com/tomtat/tomtat/internal/batch"
	"github.com/tomtat/tomtat/internal/evaluation"
	"github.com/tomtat/tomtat/internal/history"
	"github.com/tomtat/tomtat/internal/httpapi"
	"github.com/tomtat/tomtat/internal/inference"
	"github.com/tomtat/tomtat/internal/judge"
	"github.com/tomtat/tomtat/internal/ports"
	"github.com/tomtat/tomtat/internal/summarization"
)

// App is the assembled service: every component wired from a Config.
type App struct {
	Handler   http.Handler
	Registry  *prometheus.Registry
	Summaries *summarization.Service
	Auth      *auth.Service
	History   *history.Service
	Judge     *judge.Judge

	logger  *slog.Logger
	closers []func(context.Context) error
}

// Build connects the configured backends and wires the services behind the
// HTTP API. Without Mongo the user and history stores live in memory; without
// Valkey summaries are not cached; without a judge provider /api/judge answers
// 503. The caller must Close the App.
func Build(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{logger: logger, Registry: prometheus.NewRegistry()}
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewPrometheusMetrics(app.Registry)

	users, records, err := app.openStores(ctx, cfg)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	infer, err := inference.NewClient(cfg.Inference, nil, logger)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	engine, err := evaluation.NewEngine(cfg.Evaluation, infer, logger, metrics)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	opts := []summarization.Option{
		summarization.WithLogger(logger),
		summarization.WithMetrics(metrics),
	}
	if cfg.Valkey != nil {
		store, err := cache.Dial(ctx, *cfg.Valkey)
		if err != nil {
			_ = app.Close(ctx)
			return nil, fmt.Errorf("connecting to valkey: %w", err)
		}
		app.closers = append(app.closers, func(context.Context) error { store.Close(); return nil })
		opts = append(opts, summarization.WithCache(store, cfg.Summary.CacheTTL))
		logger.Info("summary cache enabled", slog.String("addr", cfg.Valkey.Addr))
	}
	app.Summaries = summarization.NewService(infer, engine, opts...)
	orchestrator := batch.NewOrchestrator(app.Summaries, engine, logger, metrics)

	if app.Judge, err = buildJudge(cfg.Judge, metrics, logger); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	app.Auth, err = auth.NewService(users, cfg.Auth, auth.WithLogger(logger))
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	if cfg.Auth.Secret == DevAccessSecret || cfg.Auth.RefreshSecret == DevRefreshSecret {
		logger.Warn("using development token secrets; set JWT_SECRET_KEY and JWT_REFRESH_SECRET_KEY")
	}
	if cfg.Server.SeedUsers {
		if err := app.Auth.SeedDefaults(ctx); err != nil {
			_ = app.Close(ctx)
			return nil, fmt.Errorf("seeding users: %w", err)
		}
	}
	app.History = history.NewService(records, logger)

	deps := httpapi.Deps{
		Summaries: app.Summaries,
		Evaluator: engine,
		Batch:     orchestrator,
		Judge:     app.Judge,
		Auth:      app.Auth,
		History:   app.History,
		Metrics:   metrics,
		Logger:    logger,
	}
	if cfg.Server.MetricsEnabled {
		deps.Gatherer = app.Registry
	}
	srv, err := httpapi.New(httpapi.Config{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}, deps)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	app.Handler = srv
	return app, nil
}

func (a *App) openStores(ctx context.Context, cfg Config) (ports.UserStore, ports.HistoryStore, error) {
	if cfg.Mongo == nil {
		a.logger.Warn("no MongoDB configured; users and history are kept in memory")
		return memory.NewUserStore(), memory.NewHistoryStore(), nil
	}
	client, err := mongodb.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.ConnectTimeout)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, client.Close)
	a.logger.Info("connected to MongoDB", slog.String("database", cfg.Mongo.Database))
	return client.Users(), client.History(), nil
}

func buildJudge(cfg JudgeConfig, metrics ports.MetricsCollector, logger *slog.Logger) (*judge.Judge, error) {
	if !cfg.Enabled() {
		logger.Warn("no judge provider configured; /api/judge is disabled")
		return judge.New(nil, cfg.Config, logger)
	}
	client, err := llm.NewClient(llm.ClientConfig{
		Provider:   cfg.Provider,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		Middleware: llm.Chain(metrics, cfg.Resilience),
	})
	if err != nil {
		return nil, fmt.Errorf("creating judge client: %w", err)
	}
	logger.Info("judge enabled",
		slog.String("provider", client.Provider()),
		slog.String("model", client.GetModel()))
	return judge.New(client, cfg.Config, logger)
}

// Close releases backend connections in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
