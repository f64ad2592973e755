package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventpass/eventpass/internal/repository"
	"github.com/eventpass/eventpass/internal/service"
	"github.com/eventpass/eventpass/internal/worker"
	"github.com/eventpass/eventpass/pkg/config"
	"github.com/eventpass/eventpass/pkg/database"
	"github.com/eventpass/eventpass/pkg/logger"
)

// Standalone reconciliation worker. Runs the same sweeps as the embedded
// worker in the API server, for deployments that scale them separately.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: "eventpass-reconcile-worker",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting reconcile worker...")

	ctx := context.Background()

	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   1 * time.Second,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()

	eventRepo := repository.NewPostgresEventRepository(db.Pool())
	tierRepo := repository.NewPostgresTierRepository(db.Pool())
	reconcileService := service.NewReconcileService(eventRepo, tierRepo)

	w := worker.NewReconcileWorker(reconcileService, &worker.ReconcileWorkerConfig{
		ScanInterval: cfg.Reconciler.ScanInterval,
		BatchSize:    cfg.Reconciler.BatchSize,
	})
	if err := w.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start reconcile worker: %v", err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down reconcile worker...")
	w.Stop()
	appLog.Info("Reconcile worker exited")
}
