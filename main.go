package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/auth"
	"github.com/siteiq-ai/siteiq-engine/pkg/config"
	"github.com/siteiq-ai/siteiq-engine/pkg/database"
	"github.com/siteiq-ai/siteiq-engine/pkg/handlers"
	"github.com/siteiq-ai/siteiq-engine/pkg/llm"
	"github.com/siteiq-ai/siteiq-engine/pkg/logging"
	"github.com/siteiq-ai/siteiq-engine/pkg/middleware"
	"github.com/siteiq-ai/siteiq-engine/pkg/repositories"
	"github.com/siteiq-ai/siteiq-engine/pkg/retry"
	"github.com/siteiq-ai/siteiq-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failures are harmless

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("redis_host", cfg.Redis.Host))

	ctx := context.Background()

	// Database connection with retry: the engine often starts alongside
	// Postgres and wins the race.
	var db *database.DB
	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		var connErr error
		db, connErr = database.NewConnection(ctx, &cfg.Database)
		return connErr
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations over a short-lived database/sql connection.
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisClient == nil {
		logger.Info("Redis not configured, webhook rate limiting disabled")
	}

	// Authentication
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to create JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()

	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, cfg.InternalToken, logger)

	// Provider adapters with per-provider circuit breakers.
	registry := llm.NewRegistry(&cfg.Providers, logger)
	breakers := llm.NewBreakerSet(llm.DefaultCircuitBreakerConfig())
	pool := llm.NewWorkerPool(llm.DefaultWorkerPoolConfig(), logger)

	// Repositories
	creditRepo := repositories.NewCreditRepository(db)
	profileRepo := repositories.NewProfileRepository(db)
	teamRepo := repositories.NewTeamRepository(db)
	webhookRepo := repositories.NewWebhookRepository(db)

	// Services
	creditService := services.NewCreditService(creditRepo, cfg.Credits, logger)
	chatService := services.NewChatService(registry, breakers, creditService, profileRepo, logger)
	compareService := services.NewCompareService(registry, breakers, pool, creditService, logger)
	advisorService := services.NewAdvisorService(registry, breakers, creditService, logger)
	profileService := services.NewProfileService(profileRepo, creditService, logger)
	teamService := services.NewTeamService(teamRepo, creditService, logger)
	webhookService := services.NewWebhookService(webhookRepo, creditService, cfg.Webhook.Secret, logger)
	webhookLimiter := services.NewRedisRateLimiter(redisClient, cfg.Webhook.RateLimitPerMinute, time.Minute, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewChatHandler(chatService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewCompareHandler(compareService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAdvisorHandler(advisorService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewProfilesHandler(profileService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewTeamsHandler(teamService, authService, logger).RegisterRoutes(mux)
	handlers.NewWebhookHandler(webhookService, webhookLimiter, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting siteiq-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
