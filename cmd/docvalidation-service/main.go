package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ecodeli/ecodeli-backend/internal/auth/jwt"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/consumers"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/events"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/handler"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/repository"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/rules"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/service"
	"github.com/ecodeli/ecodeli-backend/pkg/config"
	"github.com/ecodeli/ecodeli-backend/pkg/database"
	"github.com/ecodeli/ecodeli-backend/pkg/httputil"
	"github.com/ecodeli/ecodeli-backend/pkg/i18n"
	"github.com/ecodeli/ecodeli-backend/pkg/logger"
	"github.com/ecodeli/ecodeli-backend/pkg/messaging"
	"github.com/ecodeli/ecodeli-backend/pkg/metrics"
)

const serviceName = "docvalidation-service"

func main() {
	// Fails fast in staging and production when required config is missing
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(serviceName, cfg.Server.Environment, cfg.Server.LogLevel)
	log.Info().
		Str("backend_provider", cfg.Validation.BackendProvider).
		Bool("backend_enabled", cfg.Validation.BackendEnabled).
		Str("backends", cfg.Backends.String()).
		Msg("starting Document Validation Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewValidationMetrics(serviceName)
	opts := []service.Option{service.WithMetrics(m)}

	// Database is optional: without it the duplicate check and the history are off
	var (
		db      *database.DB
		finder  rules.ApprovedDocumentFinder
		history handler.History
	)
	if cfg.Database.Enabled() {
		db, err = database.New(ctx, &cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if err := repository.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("failed to apply schema")
		}

		auditRepo := repository.NewAuditRepository(db)
		finder = repository.NewDocumentRepository(db)
		history = auditRepo
		opts = append(opts, service.WithAudit(auditRepo))
	} else {
		log.Warn().Msg("no database configured, duplicate check and validation history disabled")
	}

	var rmq *messaging.RabbitMQ
	if cfg.RabbitMQ.URL != "" {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err := events.NewValidationEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		opts = append(opts, service.WithPublisher(publisher))
	} else {
		log.Warn().Msg("no RabbitMQ configured, validation events disabled")
	}

	resolver, err := service.NewResolver(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create storage resolver")
	}

	p := service.NewPipeline(cfg, finder, log)
	documentService := service.NewDocumentService(p, resolver, log, opts...)
	log.Info().Str("backend", p.Backend()).Msg("validation pipeline ready")

	if rmq != nil && cfg.RabbitMQ.ConsumeUploads {
		uploadConsumer, err := consumers.NewUploadConsumer(rmq, documentService, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create upload consumer")
		}
		if err := uploadConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start upload consumer")
		}
	}

	documentHandler := handler.NewDocumentHandler(documentService, history, log)
	jwtManager := jwt.NewManager(&cfg.JWT)
	limiter := httputil.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(m.Middleware)
	r.Use(i18n.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Language", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":  "healthy",
			"service": serviceName,
			"backend": p.Backend(),
		}
		if db != nil {
			status["database"] = db.Health(r.Context())
		}
		if rmq != nil {
			status["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, status)
	})
	r.Handle("/metrics", m.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.Authenticate(jwtManager))
		r.Use(limiter.Middleware)
		documentHandler.Routes(r)
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stops the upload consumer
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
