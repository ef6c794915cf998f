package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/diagnosis/fieldops/pkg/cache"
	"github.com/diagnosis/fieldops/pkg/config"
	"github.com/diagnosis/fieldops/pkg/logger"
	mw "github.com/diagnosis/fieldops/pkg/middleware"
	"github.com/diagnosis/fieldops/services/gateway/internal/handlers"
	"github.com/diagnosis/fieldops/services/gateway/internal/proxy"
)

func main() {
	cfg := config.Load()
	logger.SetDefault(logger.New(os.Stdout, os.Getenv("LOG_LEVEL")))

	if cfg.Gateway.JWTSecret == "" {
		logger.Error("JWT_SECRET must be set for the gateway")
		os.Exit(1)
	}

	visitsProxy := proxy.NewServiceProxy(cfg.Gateway.VisitsURL, cfg.Gateway.UpstreamTimeout)
	h := handlers.New(visitsProxy, cfg.Gateway.JWTSecret)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("gateway"))
	r.Use(mw.Logging)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replayed", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(mw.Health(nil))

	if cfg.Redis.Enabled && cfg.Server.RateLimit > 0 {
		store, err := cache.NewRedisStore(cfg.Redis.URL)
		if err == nil {
			err = store.Ping(context.Background())
		}
		if err != nil {
			logger.Warn("Redis unavailable, gateway rate limiting disabled", "error", err)
		} else {
			defer store.Close()
			r.Use(mw.RateLimit(store, cfg.Server.RateLimit, cfg.Server.RateWindow))
		}
	}

	h.Routes(r)

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gateway service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Gateway shutdown error", "error", err)
		}
	}()

	logger.Info("Starting gateway service", "port", cfg.Server.Port, "visits_url", cfg.Gateway.VisitsURL)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Gateway server error", "error", err)
		os.Exit(1)
	}
}
