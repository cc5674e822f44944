package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/config"
	"github.com/codeclash/battle-backend/internal/httpapi"
	"github.com/codeclash/battle-backend/internal/hub"
	"github.com/codeclash/battle-backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// no logger yet
		zap.Must(zap.NewProduction()).Fatal("config", zap.Error(err))
	}

	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.NewPostgres(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("store init", zap.Error(err))
	}

	h := hub.NewHub(ctx, st, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(h, st, logger, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server crashed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	h.Inbox() <- hub.ShutdownHub{}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
}

func newLogger(env string) *zap.Logger {
	if env == "prod" {
		return zap.Must(zap.NewProduction())
	}
	return zap.Must(zap.NewDevelopment())
}
