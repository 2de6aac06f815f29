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
	"github.com/scanflow/scanflow-backend/internal/production/consumers"
	"github.com/scanflow/scanflow-backend/internal/production/events"
	"github.com/scanflow/scanflow-backend/internal/production/handler"
	"github.com/scanflow/scanflow-backend/internal/production/repository"
	"github.com/scanflow/scanflow-backend/internal/production/service"
	"github.com/scanflow/scanflow-backend/pkg/config"
	"github.com/scanflow/scanflow-backend/pkg/database"
	"github.com/scanflow/scanflow-backend/pkg/httputil"
	"github.com/scanflow/scanflow-backend/pkg/logger"
	"github.com/scanflow/scanflow-backend/pkg/messaging"
	"github.com/scanflow/scanflow-backend/pkg/operator"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("scan-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("scan-service", cfg.Server.Environment)
	log.Info().Msg("starting Scan Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	msgPublisher, err := messaging.NewPublisher(rmq, messaging.ExchangeProductionEvents, "scan-service", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}
	publisher := events.NewPublisher(msgPublisher, log)

	// Initialize repositories
	refRepo := repository.NewReferenceRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	unitRepo := repository.NewHandlingUnitRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	lineRepo := repository.NewLineRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db)

	// Initialize services
	tolerance := service.NewToleranceChecker(cfg.Scan.TolerancePercent)
	engine := service.NewEngine(db, refRepo, orderRepo, unitRepo, historyRepo, lineRepo, tolerance, publisher, log)
	importer := service.NewImporter(
		db, orderRepo, unitRepo, sequenceRepo, publisher, log,
		cfg.Scan.ImportMaxRows, cfg.Scan.ImportDeviationWarnPercent, cfg.Scan.ImportCommentMaxLen,
	)
	lifecycle := service.NewLifecycle(orderRepo, unitRepo, publisher, log)
	resolver := service.NewResolver(db, refRepo, orderRepo, unitRepo)

	// Initialize handlers
	scanHandler := handler.NewScanHandler(engine, log)
	orderHandler := handler.NewOrderHandler(db, orderRepo, unitRepo, historyRepo, lifecycle, resolver, log)
	importHandler := handler.NewImportHandler(importer, log)
	refHandler := handler.NewReferenceHandler(refRepo, log)
	lineHandler := handler.NewLineHandler(lineRepo, log)

	// Start line status consumer
	lineConsumer, err := consumers.NewLineStatusConsumer(rmq, lineRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create line status consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := lineConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start line status consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(operator.Middleware(cfg.Auth.BadgeSecret, log))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "scan-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/scan", func(r chi.Router) {
			r.Post("/verify", scanHandler.Verify)
			r.Get("/steps", scanHandler.Steps)
		})

		r.Route("/references", func(r chi.Router) {
			r.Get("/", refHandler.List)
			r.Post("/", refHandler.Create)
			r.Get("/{id}", refHandler.Get)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orderHandler.List)
			r.Post("/", orderHandler.Create)
			r.Get("/{id}", orderHandler.Get)
			r.Get("/{id}/units", orderHandler.Units)
			r.Get("/{id}/history", orderHandler.History)
			r.Get("/{id}/label/{huId}", orderHandler.Label)
			r.Post("/{id}/cancel", orderHandler.Cancel)
			r.Post("/{id}/units/{huId}/reject", orderHandler.RejectUnit)
			r.Post("/{id}/scan", scanHandler.Commit)
			r.Post("/{id}/import/preview", importHandler.Preview)
			r.Post("/{id}/import/confirm", importHandler.Confirm)
		})

		r.Route("/lines", func(r chi.Router) {
			r.Get("/", lineHandler.List)
			r.Post("/", lineHandler.Create)
			r.Get("/{id}", lineHandler.Get)
			r.Patch("/{id}/status", lineHandler.UpdateStatus)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
