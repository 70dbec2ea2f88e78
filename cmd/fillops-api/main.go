// Package main provides the fill ops API service entry point. CSR tooling
// uses it to inspect the retry queue and flip fill errors back to ready.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/meridianrx/fillengine/internal/api/handlers"
	"github.com/meridianrx/fillengine/internal/api/middleware"
	"github.com/meridianrx/fillengine/internal/config"
	"github.com/meridianrx/fillengine/internal/observability/metrics"
	"github.com/meridianrx/fillengine/internal/observability/tracing"
	"github.com/meridianrx/fillengine/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if cfg.App.Env == "development" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	if cfg.App.OTLPEndpoint != "" {
		tcfg := tracing.DefaultConfig("fillops-api")
		tcfg.Environment = cfg.App.Env
		tcfg.OTLPEndpoint = cfg.App.OTLPEndpoint
		provider, err := tracing.Init(context.Background(), tcfg)
		if err != nil {
			logger.Warn("tracing init failed", zap.Error(err))
		} else {
			defer provider.Shutdown(context.Background())
		}
	}

	db, err := store.Open(cfg.MySQL.DSN)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := store.Migrate(db); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}
	logger.Info("connected to database")

	errStore := store.NewFillErrorStore(db, logger)
	fillErrorHandler := handlers.NewFillErrorHandler(errStore, logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("fillops-api"))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"healthy","service":"fillops-api"}`)
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.API.APIKeys))
		r.Mount("/fill-errors", fillErrorHandler.Routes())
	})

	server := &http.Server{
		Addr:         ":" + cfg.API.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting fill ops API", zap.String("port", cfg.API.Port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}
