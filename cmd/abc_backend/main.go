package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/primebank/agent_banking_core/internal/core/domain"
	portssvc "github.com/primebank/agent_banking_core/internal/core/ports/services"
	"github.com/primebank/agent_banking_core/internal/core/services"
	"github.com/primebank/agent_banking_core/internal/handlers"
	"github.com/primebank/agent_banking_core/internal/middleware"
	"github.com/primebank/agent_banking_core/internal/platform/cache"
	"github.com/primebank/agent_banking_core/internal/platform/config"
	"github.com/primebank/agent_banking_core/internal/platform/database"
	"github.com/primebank/agent_banking_core/internal/platform/jobs"
	"github.com/primebank/agent_banking_core/internal/platform/outbox"
	"github.com/primebank/agent_banking_core/internal/repositories/database/pgsql"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	dbPool, err := database.NewPgxPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.ClosePgxPool(dbPool)

	if err := database.RunMigrations(cfg.DatabaseURL, "file://migrations"); err != nil {
		logger.Error("Failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var snapshotCache portssvc.SnapshotCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("Failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		snapshotCache = cache.NewRedisSnapshotCache(redisClient, cfg.CacheTTL)
		logger.Info("Snapshot cache enabled", slog.String("redis_addr", cfg.RedisAddr))
	}

	provider := pgsql.NewRepositoryProvider(dbPool)
	authority := services.NewStaticAuthorityResolver(parseRoster(cfg.AuthorityRoster))
	container := services.NewServiceContainer(provider, authority, snapshotCache)

	// Outbox dispatcher publishes committed events after the fact; the API
	// path never blocks on the broker.
	if cfg.AMQPURL != "" {
		publisher, err := outbox.NewAMQPPublisher(cfg.AMQPURL, cfg.EventExchange)
		if err != nil {
			logger.Error("Failed to connect to RabbitMQ", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer publisher.Close()

		dispatcherCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		dispatcher := outbox.NewDispatcher(provider.OutboxRepo, publisher, cfg.OutboxPollInterval, logger)
		go dispatcher.Run(dispatcherCtx)
		logger.Info("Outbox dispatcher started", slog.String("exchange", cfg.EventExchange))
	}

	scheduler := jobs.NewScheduler(container.Hold, container.Approval, logger)
	if err := scheduler.Register(cfg.HoldSweepSpec, cfg.SLASweepSpec); err != nil {
		logger.Error("Failed to register scheduled jobs", slog.String("error", err.Error()))
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.StructuredLoggingMiddleware(logger), gin.Recovery())
	if err := r.SetTrustedProxies(nil); err != nil {
		logger.Error("Failed to set trusted proxies", slog.String("error", err.Error()))
		os.Exit(1)
	}

	handlers.RegisterRoutes(r, cfg, container)

	logger.Info("Server starting", slog.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Error("Server failed to run", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// parseRoster turns "alice:MANAGER,bob:CLERK" into the authority map.
func parseRoster(roster string) map[string]domain.ApprovalLevel {
	levels := map[string]domain.ApprovalLevel{}
	for _, pair := range strings.Split(roster, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		levels[strings.TrimSpace(parts[0])] = domain.ApprovalLevel(strings.ToUpper(strings.TrimSpace(parts[1])))
	}
	return levels
}
