package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"groupbuy-be/internal/config"
	"groupbuy-be/internal/container"
	"groupbuy-be/internal/handler"
	"groupbuy-be/internal/middleware"
	"groupbuy-be/pkg/logger"
	"groupbuy-be/pkg/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
	}).Info("Starting groupbuy-be server")

	ctx := context.Background()
	c, err := container.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	// Background maintenance: payment timeouts, auto-cancel, group
	// expiry, refund catch-up.
	if cfg.SweepEnabled {
		c.Sweeper.Start(ctx)
	}

	router := setupRouter(c)

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	_ = server.Run(srv, log, func(ctx context.Context) {
		c.Sweeper.Stop()
		c.Close()
		log.Info("Application shutdown complete")
	})
}

// setupRouter configures and returns the HTTP router
func setupRouter(c *container.Container) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()

	r := chi.NewRouter()

	corsConfig := &middleware.CORSConfig{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization", "X-Idempotency-Key"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           86400,
	}

	r.Use(middleware.CORS(corsConfig, log))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	healthHandler := handler.NewHealthHandler(c)
	campaignHandler := handler.NewCampaignHandler(c.Campaigns, log)
	groupHandler := handler.NewGroupHandler(c.Groups, c.Payments, log)
	adminHandler := handler.NewAdminHandler(c.Groups, c.Payments, c.Sweeper, c.RedisClient, log)

	r.Get("/health", healthHandler.Check)
	r.Get("/ready", healthHandler.Check)

	r.Route("/api/v1", func(r chi.Router) {
		// Public group-buy flow.
		r.Get("/campaigns/{id}", campaignHandler.Get)
		r.Post("/campaigns/{id}/groups", groupHandler.Create)
		r.Get("/groups/{code}", groupHandler.Get)
		r.Post("/groups/{code}/join", groupHandler.Join)
		r.Get("/participants/{id}/payment", groupHandler.PaymentStatus)
		r.Post("/participants/{id}/payments", groupHandler.RetryPayment)
		r.Post("/payments/{id}/charge", groupHandler.InitiateCharge)
		r.Post("/payments/{id}/confirm", groupHandler.ConfirmCharge)

		// Back-office operations.
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.AdminJWTSecret, log))
			r.Post("/campaigns", campaignHandler.Create)
			r.Post("/payments/{id}/verify", adminHandler.VerifyPayment)
			r.Post("/payments/{id}/refund", adminHandler.RefundPayment)
			r.Post("/groups/{id}/cancel", adminHandler.CancelGroup)
			r.Post("/groups/{id}/force-success", adminHandler.ForceSuccess)
			r.Post("/participants/{id}/cancel", adminHandler.CancelParticipant)
			r.Post("/sweep", adminHandler.RunSweep)
		})
	})

	return r
}
