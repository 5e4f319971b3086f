package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/consumers"
	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/events"
	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/handler"
	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/repository"
	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/service"
	"github.com/pharmatrack/pharmatrack-backend/pkg/config"
	"github.com/pharmatrack/pharmatrack-backend/pkg/database"
	"github.com/pharmatrack/pharmatrack-backend/pkg/httputil"
	"github.com/pharmatrack/pharmatrack-backend/pkg/identity"
	"github.com/pharmatrack/pharmatrack-backend/pkg/logger"
	"github.com/pharmatrack/pharmatrack-backend/pkg/messaging"
	"github.com/pharmatrack/pharmatrack-backend/pkg/permissions"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("pharmacy-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("pharmacy-service", cfg.Server.Environment)
	log.Info().Msg("starting Pharmacy Service")

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
	publisher, err := events.NewPharmacyEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	itemRepo := repository.NewItemRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	anomalyRepo := repository.NewAnomalyRepository(db)
	demandRepo := repository.NewDemandRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Initialize services
	recorder := service.NewRecorder(activityRepo, log)
	demandService := service.NewDemandService(demandRepo, anomalyRepo, itemRepo, recorder, publisher, log)
	lifecycleService := service.NewLifecycleService(itemRepo, requestRepo, recorder, publisher, demandService, log)
	inventoryService := service.NewInventoryService(itemRepo, recorder, publisher, log)

	// Initialize handlers
	requestHandler := handler.NewRequestHandler(lifecycleService, log)
	itemHandler := handler.NewItemHandler(inventoryService, log)
	demandHandler := handler.NewDemandHandler(demandService, log)
	activityHandler := handler.NewActivityHandler(activityRepo, log)
	notificationHandler := handler.NewNotificationHandler(notificationRepo, log)

	// Start notification consumer
	reviewers := consumers.StaticReviewers(cfg.Notifications.Reviewers)
	notificationConsumer, err := consumers.NewNotificationConsumer(rmq, notificationRepo, reviewers, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create notification consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := notificationConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start notification consumer")
	}

	verifier := identity.NewVerifier(&cfg.JWT)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			if origin == "http://localhost:3000" || origin == "http://localhost:5173" {
				return true
			}
			return strings.HasSuffix(origin, ".pharmatrack.io")
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "pharmacy-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/pharmacy", func(r chi.Router) {
		r.Use(identity.Middleware(verifier))

		// Request lifecycle
		r.Route("/requests", func(r chi.Router) {
			r.With(identity.RequireAction(permissions.ActionRequestCreate)).Post("/", requestHandler.Create)
			r.With(identity.RequireAction(permissions.ActionRequestHistory)).Get("/", requestHandler.List)
			r.With(identity.RequireAction(permissions.ActionRequestHistory)).Get("/{id}", requestHandler.Get)
			r.With(identity.RequireAction(permissions.ActionRequestReview)).Post("/{id}/approve", requestHandler.Approve)
			r.With(identity.RequireAction(permissions.ActionRequestReview)).Post("/{id}/reject", requestHandler.Reject)
			r.With(identity.RequireAction(permissions.ActionRequestCancel)).Post("/{id}/cancel", requestHandler.Cancel)
		})

		// Inventory
		r.Route("/items", func(r chi.Router) {
			r.With(identity.RequireAction(permissions.ActionInventoryRead)).Get("/", itemHandler.List)
			r.With(identity.RequireAction(permissions.ActionInventoryRead)).Get("/low-stock", itemHandler.ListLowStock)
			r.With(identity.RequireAction(permissions.ActionInventoryRead)).Get("/expiring", itemHandler.ListExpiring)
			r.With(identity.RequireAction(permissions.ActionInventoryWrite)).Post("/", itemHandler.Create)
			r.With(identity.RequireAction(permissions.ActionInventoryRead)).Get("/{id}", itemHandler.Get)
			r.With(identity.RequireAction(permissions.ActionInventoryWrite)).Put("/{id}", itemHandler.Update)
			r.With(identity.RequireAction(permissions.ActionInventoryWrite)).Delete("/{id}", itemHandler.Delete)
			r.With(identity.RequireAction(permissions.ActionInventoryWrite)).Post("/{id}/adjust-stock", itemHandler.AdjustStock)
			r.With(identity.RequireAction(permissions.ActionInventoryRead)).Get("/{id}/adjustments", itemHandler.ListAdjustments)

			// Demand heuristics
			r.With(identity.RequireAction(permissions.ActionDemandRead)).Get("/{id}/predict-demand", demandHandler.PredictDemand)
			r.With(identity.RequireAction(permissions.ActionDemandRead)).Get("/{id}/optimal-reorder", demandHandler.OptimalReorder)
		})

		r.Route("/ml", func(r chi.Router) {
			r.With(identity.RequireAction(permissions.ActionDemandRead)).Post("/detect-anomaly", demandHandler.DetectAnomaly)
			r.With(identity.RequireAction(permissions.ActionAnomalyManage)).Post("/train-models", demandHandler.TrainModels)
			r.With(identity.RequireAction(permissions.ActionDemandRead)).Get("/anomalies", demandHandler.ListAnomalies)
			r.With(identity.RequireAction(permissions.ActionAnomalyManage)).Post("/anomalies/{id}/resolve", demandHandler.ResolveAnomaly)
		})

		// Audit trail
		r.With(identity.RequireAction(permissions.ActionActivityRead)).Get("/activity", activityHandler.List)

		// Notifications
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.List)
			r.Put("/{id}/read", notificationHandler.MarkRead)
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
