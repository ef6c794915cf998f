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
	"github.com/diagnosis/fieldops/pkg/database"
	"github.com/diagnosis/fieldops/pkg/directory"
	"github.com/diagnosis/fieldops/pkg/events"
	"github.com/diagnosis/fieldops/pkg/logger"
	"github.com/diagnosis/fieldops/pkg/mailer"
	mw "github.com/diagnosis/fieldops/pkg/middleware"
	"github.com/diagnosis/fieldops/services/visits/internal/handlers"
	"github.com/diagnosis/fieldops/services/visits/internal/notify"
	"github.com/diagnosis/fieldops/services/visits/internal/repository"
	"github.com/diagnosis/fieldops/services/visits/internal/service"
)

type stores struct {
	visits repository.VisitRepository
	emails repository.EmailRepository
	health func(ctx context.Context) error
	close  func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Visits.Store == "memory" {
		logger.Warn("Using in-memory visit store, data is lost on restart")
		mem := repository.NewMemoryStore()
		return &stores{visits: mem, emails: mem, close: func() {}}, nil
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &stores{
		visits: repository.NewVisitRepository(pool),
		emails: repository.NewEmailRepository(pool),
		health: pool.Ping,
		close:  pool.Close,
	}, nil
}

func connectEventBus(cfg *config.Config) events.Publisher {
	if !cfg.NATS.Enabled {
		return events.NopBus{}
	}
	bus, err := events.NewNATSEventBus(cfg.NATS.URL, "visits")
	if err != nil {
		logger.Warn("NATS unavailable, visit events will not be published", "error", err)
		return events.NopBus{}
	}
	return bus
}

func connectRedis(ctx context.Context, cfg *config.Config) *cache.RedisStore {
	if !cfg.Redis.Enabled {
		return nil
	}
	store, err := cache.NewRedisStore(cfg.Redis.URL)
	if err != nil {
		logger.Warn("Invalid Redis URL, idempotency and rate limiting disabled", "error", err)
		return nil
	}
	if err := store.Ping(ctx); err != nil {
		logger.Warn("Redis unavailable, idempotency and rate limiting disabled", "error", err)
		_ = store.Close()
		return nil
	}
	return store
}

func main() {
	cfg := config.Load()
	logger.SetDefault(logger.New(os.Stdout, os.Getenv("LOG_LEVEL")))

	ctx := context.Background()
	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open visit store", "error", err)
		os.Exit(1)
	}
	defer st.close()

	eventBus := connectEventBus(cfg)
	defer eventBus.Close()

	redisStore := connectRedis(ctx, cfg)
	if redisStore != nil {
		defer redisStore.Close()
	}

	sender, err := mailer.New(mailer.Config{
		Provider:      cfg.Email.Provider,
		FromName:      cfg.Email.FromName,
		FromEmail:     cfg.Email.FromEmail,
		MailerSendKey: cfg.Email.MailerSendKey,
		SMTPHost:      cfg.Email.SMTPHost,
		SMTPPort:      cfg.Email.SMTPPort,
		SMTPUser:      cfg.Email.SMTPUser,
		SMTPPass:      cfg.Email.SMTPPass,
		SMTPUseTLS:    cfg.Email.SMTPUseTLS,
	})
	if err != nil {
		logger.Error("Failed to configure mailer", "error", err)
		os.Exit(1)
	}

	dir := directory.New(directory.Config{
		CustomersURL:   cfg.Directory.CustomersURL,
		TechniciansURL: cfg.Directory.TechniciansURL,
		Timeout:        cfg.Directory.Timeout,
		Retries:        cfg.Directory.Retries,
	})
	notifier := notify.NewEmailNotifier(st.emails, dir, sender)

	visitService := service.NewVisitService(st.visits, st.emails, notifier, eventBus,
		service.WithMaxPageSize(cfg.Visits.MaxPageSize),
		service.WithTodayLimit(cfg.Visits.TodayPageSize),
	)
	h := handlers.New(visitService)

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("visits"))
	r.Use(mw.Logging)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replayed"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(mw.Health(st.health))
	if redisStore != nil {
		r.Use(mw.RateLimit(redisStore, cfg.Server.RateLimit, cfg.Server.RateWindow))
		r.Use(mw.Idempotency(redisStore, cfg.Redis.IdempotencyTTL))
	}

	h.Routes(r)

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

		logger.Info("Shutting down visits service...")

		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Visits service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting visits service", "port", cfg.Server.Port, "store", cfg.Visits.Store)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Visits service error", "error", err)
		os.Exit(1)
	}
}
