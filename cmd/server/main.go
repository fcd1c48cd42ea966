package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/weatherapp/backend/internal/config"
	"github.com/weatherapp/backend/internal/delivery/http"
	"github.com/weatherapp/backend/internal/domain"
	"github.com/weatherapp/backend/internal/presenter"
	"github.com/weatherapp/backend/internal/repository/postgres"
	"github.com/weatherapp/backend/internal/service"
	"github.com/weatherapp/backend/internal/session"
)

func main() {
	// Configuration
	cfg, envFile, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg)
	slog.SetDefault(log)
	if !envFile {
		log.Info("No .env file found, using system environment")
	}

	shutdownTracing := setupTracing()
	defer shutdownTracing()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(reg)

	// Database connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool := connectPostgres(ctx, log, cfg.DatabaseURL)
	if pool != nil {
		defer pool.Close()
	}

	// Dependency Injection: Repositories
	var lookupRepo domain.LookupRepository
	if pool != nil {
		pgRepo := postgres.NewPostgresRepository(pool)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			log.Warn("Could not prepare lookup table, keeping lookups in memory", "error", err)
			lookupRepo = postgres.NewMemoryRepository(postgres.DefaultMemoryCapacity)
		} else {
			lookupRepo = pgRepo
		}
	} else {
		lookupRepo = postgres.NewMemoryRepository(postgres.DefaultMemoryCapacity)
	}

	// Response cache
	var cache service.Cache = service.NewMemoryCache(cfg.WeatherCacheTTL)
	if rdb := connectRedis(ctx, log, cfg.RedisURL); rdb != nil {
		defer rdb.Close()
		cache = service.NewRedisCache(rdb, cfg.WeatherCacheTTL, log)
	}

	// Dependency Injection: Services
	if cfg.OpenWeatherAPIKey == "" {
		log.Warn("OPENWEATHER_API_KEY not set, serving mock weather")
	}
	weatherSvc := service.NewWeatherService(service.WeatherConfig{
		APIKey:  cfg.OpenWeatherAPIKey,
		BaseURL: cfg.OpenWeatherBaseURL,
		Cache:   cache,
		Metrics: metrics,
	})
	recorder := service.NewLookupRecorder(lookupRepo, metrics, log)
	sessions := session.NewManager(session.Options{
		Weather:         weatherSvc,
		GeolocationMode: cfg.GeolocationMode,
		IPAPIBaseURL:    cfg.IPAPIBaseURL,
		ErrorExpiry:     cfg.ErrorDismissAfter,
		IdleTTL:         cfg.SessionIdleTTL,
		Lookups:         recorder,
		Metrics:         metrics,
		Logger:          log,
	})

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go sessions.RunJanitor(janitorCtx)

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "Weather API v1.0",
		ReadTimeout:  10 * time.Second,
		ErrorHandler: http.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Routes
	handler := http.NewHandler(sessions, recorder, &presenter.Presenter{}, log)
	http.SetupRoutes(app, handler, reg)

	// Graceful shutdown
	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "geolocation", cfg.GeolocationMode)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stopJanitor()
	// Sessions first so open event streams end and the server can drain.
	sessions.Shutdown()
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	recorder.WaitBackground()
	log.Info("Server exited gracefully")
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func connectPostgres(ctx context.Context, log *slog.Logger, url string) *pgxpool.Pool {
	if url == "" {
		log.Info("DATABASE_URL not set, keeping lookups in memory")
		return nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err == nil {
		err = pool.Ping(ctx)
		if err != nil {
			pool.Close()
		}
	}
	if err != nil {
		log.Warn("Could not connect to database, keeping lookups in memory", "error", err)
		return nil
	}
	log.Info("Connected to PostgreSQL")
	return pool
}

func connectRedis(ctx context.Context, log *slog.Logger, url string) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("Invalid REDIS_URL, using in-memory cache", "error", err)
		return nil
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Could not connect to Redis, using in-memory cache", "error", err)
		_ = rdb.Close()
		return nil
	}
	log.Info("Connected to Redis")
	return rdb
}

func setupTracing() func() {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceName("weather-backend")),
	)
	if err != nil {
		res = resource.Default()
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return func() {
		_ = tp.Shutdown(context.Background())
	}
}
