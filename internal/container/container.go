package container

import (
	"context"

	"groupbuy-be/internal/config"
	"groupbuy-be/internal/gateway"
	"groupbuy-be/internal/notify"
	"groupbuy-be/internal/repository"
	"groupbuy-be/internal/service"
	"groupbuy-be/internal/service/sweep"
	"groupbuy-be/pkg/database"
	"groupbuy-be/pkg/logger"
	"groupbuy-be/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *database.PostgresDB
	RedisClient *redis.Client
	Store       repository.Store

	Campaigns *service.CampaignService
	Groups    *service.GroupService
	Payments  *service.PaymentService
	Sweeper   *sweep.Sweeper
}

// New creates a new dependency injection container
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	// Redis is optional: without it the campaign cache and the
	// notification dedup are skipped, nothing else changes.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			redisClient = client
			log.Info("Redis client initialized successfully")
		}
	} else {
		log.Info("Redis URL not configured, proceeding without caching")
	}

	store := repository.NewPostgresStore(db)

	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(log)
	if redisClient != nil {
		dispatcher = notify.NewDedupDispatcher(dispatcher, redisClient, log)
	}
	exporter := notify.NewLogBookingExporter(log)
	gw := gateway.NewNoop(log)

	groups := service.NewGroupService(store, dispatcher, exporter, gw, log, cfg.PaymentTimeout)
	payments := service.NewPaymentService(store, groups, gw, log)
	campaigns := service.NewCampaignService(store, redisClient, log)
	sweeper := sweep.NewSweeper(store, groups, payments, log, cfg.SweepInterval)

	return &Container{
		Config:      cfg,
		Logger:      log,
		DB:          db,
		RedisClient: redisClient,
		Store:       store,
		Campaigns:   campaigns,
		Groups:      groups,
		Payments:    payments,
		Sweeper:     sweeper,
	}, nil
}

// Close releases the container's external connections.
func (c *Container) Close() {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.WithError(err).Warn("Failed to close Redis client")
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}
