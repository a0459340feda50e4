// Package main запускает HTTP-сервер книжного маркетплейса.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mmeshcher/bookmarket-system/internal/config"
	"github.com/mmeshcher/bookmarket-system/internal/handler"
	"github.com/mmeshcher/bookmarket-system/internal/metrics"
	"github.com/mmeshcher/bookmarket-system/internal/middleware"
	"github.com/mmeshcher/bookmarket-system/internal/repository"
	"github.com/mmeshcher/bookmarket-system/internal/service"
)

// Лимит на /auth: 10 попыток в минуту с одного адреса.
const (
	authRateLimit = rate.Limit(10.0 / 60.0)
	authRateBurst = 10
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo repository.Repository
	if cfg.DatabaseURI != "" {
		repo, err = repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		sugar.Infow("using postgres storage")
	} else {
		repo = repository.NewMemoryRepository()
		sugar.Infow("DATABASE_URI is not set, using in-memory storage")
	}
	defer repo.Close()

	svc := service.NewService(repo, cfg.UploadDir)
	defer svc.Close()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret, cfg.TokenTTL)

	rateLimiter := middleware.NewRateLimiter(authRateLimit, authRateBurst)
	defer rateLimiter.Stop()

	h := handler.NewHandler(svc, logger, authMiddleware, rateLimiter, collector, metrics.Handler(registry), cfg.UploadDir)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting bookmarket server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
