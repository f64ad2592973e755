package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventpass/eventpass/internal/di"
	"github.com/eventpass/eventpass/internal/metrics"
	"github.com/eventpass/eventpass/internal/service"
	"github.com/eventpass/eventpass/internal/worker"
	"github.com/eventpass/eventpass/pkg/config"
	"github.com/eventpass/eventpass/pkg/database"
	"github.com/eventpass/eventpass/pkg/logger"
	"github.com/eventpass/eventpass/pkg/middleware"
	pkgredis "github.com/eventpass/eventpass/pkg/redis"
	"github.com/eventpass/eventpass/pkg/telemetry"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting EventPass...")

	ctx := context.Background()

	// Initialize tracing
	_, err = telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Telemetry init failed: %v", err))
	}
	defer telemetry.Shutdown(ctx)

	if err := metrics.Init(); err != nil {
		appLog.Fatal(fmt.Sprintf("Metrics init failed: %v", err))
	}

	// Initialize database connection
	dbCfg := &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   1 * time.Second,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()
	appLog.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", dbCfg.MinConns, dbCfg.MaxConns))

	// Initialize Redis connection
	redisCfg := &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
	}
	redisClient, err := pkgredis.NewClient(ctx, redisCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Redis connection failed: %v", err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")

	// Initialize Kafka notifier, falling back to no-op without a broker
	var notifier service.Notifier
	notifier, err = service.NewKafkaNotifier(ctx, &service.NotifierConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		ServiceName: cfg.App.Name,
		ClientID:    cfg.Kafka.ClientID,
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op notifier: %v", err))
		notifier = service.NewNoOpNotifier()
	} else {
		appLog.Info("Kafka notifier connected")
	}
	defer notifier.Close()

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		DB:       db,
		Redis:    redisClient,
		Notifier: notifier,
		ReconcileConfig: &worker.ReconcileWorkerConfig{
			ScanInterval: cfg.Reconciler.ScanInterval,
			BatchSize:    cfg.Reconciler.BatchSize,
		},
	})

	// Start the reconcile worker
	if cfg.Reconciler.Enabled {
		if err := container.ReconcileWorker.Start(ctx); err != nil {
			appLog.Fatal(fmt.Sprintf("Failed to start reconcile worker: %v", err))
		}
		defer container.ReconcileWorker.Stop()
	}

	// Setup Gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DisableConsoleColor()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware(cfg.App.Name))

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	authMiddleware := middleware.AuthMiddleware(&middleware.AuthConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
	})

	idempotencyConfig := middleware.DefaultIdempotencyConfig(redisClient.Client())
	idempotencyConfig.SkipPaths = []string{"/health", "/ready"}
	idempotency := middleware.IdempotencyMiddleware(idempotencyConfig)

	// API routes
	v1 := router.Group("/api/v1")
	{
		// User-facing registration routes
		registrations := v1.Group("/registrations")
		registrations.Use(authMiddleware)
		{
			registrations.POST("", idempotency, container.RegistrationHandler.Create)
			registrations.POST("/:id/cancel", idempotency, container.RegistrationHandler.Cancel)
			registrations.GET("", container.RegistrationHandler.List)
			registrations.GET("/:id", container.RegistrationHandler.Get)
		}

		// Payment verification and operations
		admin := v1.Group("/admin")
		admin.Use(authMiddleware, middleware.RequireRoles(middleware.RoleAdmin))
		{
			admin.POST("/registrations/:id/approve", idempotency, container.AdminHandler.Approve)
			admin.POST("/registrations/:id/reject", idempotency, container.AdminHandler.Reject)
			admin.POST("/events/:id/reconcile", container.AdminHandler.ReconcileEvent)
			admin.POST("/reconcile", container.AdminHandler.Reconcile)
			admin.GET("/reconcile/stats", container.AdminHandler.WorkerStats)
		}

		// Coordinators may review an event's registrations but not moderate them
		v1.GET("/admin/events/:id/registrations",
			authMiddleware,
			middleware.RequireRoles(middleware.RoleAdmin, middleware.RoleCoordinator),
			container.AdminHandler.ListByEvent,
		)

		// Venue check-in routes for gate staff
		checkin := v1.Group("/checkin")
		checkin.Use(authMiddleware, middleware.RequireRoles(middleware.RoleAdmin, middleware.RoleCoordinator))
		{
			checkin.POST("", idempotency, container.CheckInHandler.CheckIn)
			checkin.GET("/:token", container.CheckInHandler.GetTicket)
		}

		events := v1.Group("/events")
		events.Use(authMiddleware, middleware.RequireRoles(middleware.RoleAdmin, middleware.RoleCoordinator))
		{
			events.GET("/:id/attendance", container.CheckInHandler.Attendance)
		}
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Start server in goroutine
	go func() {
		appLog.Info(fmt.Sprintf("EventPass listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	appLog.Info("Server exited gracefully")
}
