package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/config"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/database"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/eventbus"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/handlers"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/llm"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/llm/gemini"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/logging"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/middleware"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
		Development: !cfg.IsProduction(),
	})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("NoWasteLife API starting...",
		zap.String("version", handlers.Version),
		zap.String("environment", cfg.Environment),
		zap.Bool("gemini_configured", cfg.GeminiConfigured()),
		zap.Int("gemini_key_length", len(cfg.GeminiAPIKey)),
		zap.Strings("preferred_models", cfg.PreferredModels),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
	)
	if !cfg.GeminiConfigured() {
		logger.Warn("GEMINI_API_KEY is not set; AI endpoints will answer with a configuration error")
	}

	shutdownTelemetry, err := telemetry.InitTracer(ctx, "nowastelife-api", cfg.OTLPEndpoint)
	if err != nil {
		// Collector may be down; keep serving without traces.
		logger.Error("failed to initialize telemetry", zap.Error(err))
	} else {
		defer func() {
			if err := shutdownTelemetry(ctx); err != nil {
				logger.Error("failed to shutdown telemetry", zap.Error(err))
			}
		}()
	}

	var (
		events       eventbus.Publisher = eventbus.NopPublisher{}
		eventsHealth handlers.HealthChecker
	)
	if cfg.NATSURL != "" {
		nc, err := eventbus.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect to NATS, events disabled", zap.Error(err))
		} else {
			defer nc.Close()
			events, eventsHealth = nc, nc
			logger.Info("connected to NATS")
		}
	}

	var limiter middleware.Limiter
	var rdb *database.Redis
	if cfg.RateLimitPerMinute > 0 {
		limiter = middleware.NewPerMinuteLimiter(cfg.RateLimitPerMinute)
		if cfg.RedisURL != "" {
			rdb, err = database.NewRedis(ctx, cfg.RedisURL)
			if err != nil {
				logger.Error("failed to connect to redis, using in-process rate limiting", zap.Error(err))
			} else {
				defer rdb.Close()
				limiter = middleware.NewRedisLimiter(rdb.Client(), cfg.RateLimitPerMinute, time.Minute)
				logger.Info("connected to redis")
			}
		}
	}

	var (
		breaker *middleware.CircuitBreaker
		guard   handlers.QuotaGuard
	)
	if cfg.QuotaBreakerThreshold > 0 {
		breaker = middleware.NewCircuitBreakerWithConfig(cfg.QuotaBreakerThreshold, 1, cfg.QuotaBreakerCooldown)
		breaker.OnStateChange = func(from, to middleware.CircuitState) {
			logger.Warn("quota breaker state changed", zap.Stringer("from", from), zap.Stringer("to", to))
		}
		guard = breaker
	}

	provider := gemini.NewClient(cfg.GeminiAPIKey,
		gemini.WithBaseURL(cfg.GeminiBaseURL),
		gemini.WithHTTPClient(&http.Client{Timeout: cfg.GeminiTimeout}),
		gemini.WithLogger(logger),
	)
	selector := llm.NewSelector(provider, cfg.PreferredModels, logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Metrics())

	healthHandler := handlers.NewHealthHandler(cfg.GeminiConfigured(), provider, rdb, eventsHealth)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/deep", healthHandler.DeepHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	taskHandler := handlers.NewTaskHandler(selector, cfg.GeminiConfigured(), cfg.EnforceSubtaskRange, events, guard, logger)

	api := router.Group("/api")
	if limiter != nil {
		api.Use(middleware.RateLimitMiddleware(limiter, logger))
	}
	{
		api.POST("/breakdown-task", taskHandler.BreakdownTask)
		api.POST("/diagnose-procrastination", taskHandler.DiagnoseProcrastination)
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     middleware.CORS(cfg.AllowedOrigins, router),
		ReadTimeout: 15 * time.Second,
		// Generation can take most of the provider timeout.
		WriteTimeout: cfg.GeminiTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited gracefully")
}
