// Command tomtat serves the Vietnamese summarization API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtat/tomtat/internal/application"
	"github.com/tomtat/tomtat/internal/logging"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a YAML config file")
		envFile    = flag.String("env", ".env", "Dotenv file loaded before reading the environment")
	)
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		log.Fatalf("tomtat: %v", err)
	}
}

func run(configPath, envFile string) error {
	if err := application.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := application.LoadConfig(configPath, os.Getenv)
	if err != nil {
		return err
	}
	logger, err := logging.Init(os.Stderr, cfg.Logging)
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := application.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			logger.Error("closing backends", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.Handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", slog.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
