package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"bookcatalog/internal/book"
	"bookcatalog/internal/config"
	"bookcatalog/internal/httpx"
	"bookcatalog/internal/media"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := openDB(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Error("database unavailable",
			slog.String("dsn", redactDSN(cfg.DatabaseDSN)),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
	defer pool.Close()

	mediaHost := media.NewClient(cfg.Media, logger)
	if !mediaHost.Enabled() {
		logger.Warn("media host credentials missing, image endpoints disabled")
	}

	repo := book.NewPostgresRepository(pool)
	service := book.NewService(repo, mediaHost, book.ImagePolicy{
		MaxBytes:     cfg.MaxImageBytes,
		AllowedTypes: cfg.AllowedImageTypes,
	}, logger)
	handler := book.NewHTTPHandler(service, logger)

	mux := http.NewServeMux()
	handler.Register(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "books",
			})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "books",
		})
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	rateLimiter := httpx.NewRateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst)

	var root http.Handler = mux
	root = httpx.RequestSizeLimitMiddleware(cfg.MaxBodyBytes)(root)
	root = httpx.SecurityHeadersMiddleware(root)
	root = httpx.CORSMiddleware(cfg.CORSAllowedOrigins)(root)
	root = rateLimiter.Middleware(root)
	root = httpx.RecoveryMiddleware(logger)(root)
	root = httpx.AccessLogMiddleware(logger)(root)
	root = httpx.RequestIDMiddleware(root)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      root,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
		}
	}

	logger.Info("server stopped")
}

func openDB(dsn string, logger *slog.Logger) (*pgxpool.Pool, error) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("database connection OK")
	return pool, nil
}

func redactDSN(dsn string) string {
	const marker = "://"
	start := strings.Index(dsn, marker)
	if start < 0 {
		return dsn
	}
	start += len(marker)
	end := strings.Index(dsn[start:], "@")
	if end < 0 {
		return dsn
	}
	return dsn[:start] + "***" + dsn[start+end:]
}
