package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/tenantops/safety-core/internal/api"
	"github.com/tenantops/safety-core/internal/api/handler"
	"github.com/tenantops/safety-core/internal/auditlog"
	"github.com/tenantops/safety-core/internal/config"
	"github.com/tenantops/safety-core/internal/controlgate"
	"github.com/tenantops/safety-core/internal/data/mongo"
	"github.com/tenantops/safety-core/internal/data/postgres"
	"github.com/tenantops/safety-core/internal/failuretracker"
	"github.com/tenantops/safety-core/internal/ledger"
	"github.com/tenantops/safety-core/internal/logger"
	"github.com/tenantops/safety-core/internal/payments"
	"github.com/tenantops/safety-core/internal/platform/messaging/consumers"
	"github.com/tenantops/safety-core/internal/platform/messaging/producers"
	"github.com/tenantops/safety-core/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("safety_core")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Safety Core",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Migrations run before the pool is opened
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Repositories
	walletRepo := postgres.NewWalletRepository(log, postgresDB)
	controlRepo := postgres.NewControlRepository(log, postgresDB)
	failureRepo := postgres.NewFailureRepository(log, postgresDB)
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database(), cfg.MongoDB.AuditCollection)
	if err := auditRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to create audit indexes", "error", err)
		os.Exit(1)
	}

	// Dead letter producers; either may be nil when its topic is not configured
	auditDLQ, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.AuditDLQTopic)
	if err != nil {
		log.Error("Failed to initialize audit DLQ producer", "error", err)
		os.Exit(1)
	}
	paymentDLQ, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.DLQTopic)
	if err != nil {
		log.Error("Failed to initialize payment DLQ producer", "error", err)
		os.Exit(1)
	}

	// Core components
	recorder := auditlog.NewRecorder(&cfg.Audit, auditRepo, auditDLQ, log)
	tracker := failuretracker.NewTracker(postgresDB, failureRepo, recorder, log)
	gate := controlgate.NewGate(&cfg.Control, controlRepo, tracker, recorder, log)
	if err := gate.EnsureDefaults(appCtx); err != nil {
		log.Error("Failed to provision control flags", "error", err)
		os.Exit(1)
	}
	ledgerService := ledger.NewService(&cfg.Ledger, postgresDB, walletRepo, tracker, recorder, log)

	// Payment event pipeline
	processor, err := payments.NewPooledProcessor(
		payments.NewEventProcessor(ledgerService, gate, tracker, log),
		&cfg.WorkerPool,
		log,
	)
	if err != nil {
		log.Error("Failed to initialize worker pool", "error", err)
		os.Exit(1)
	}
	eventHandler := payments.NewEventHandler(log, processor, paymentDLQ)
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	server := api.NewServer(log, cfg, api.Services{
		Ledger:   ledgerService,
		Controls: gate,
		Failures: tracker,
		Audit:    recorder,
		Dependencies: map[string]handler.Pinger{
			"postgres": postgresDB,
			"mongodb":  mongoDB,
		},
		AuditBacklog: recorder,
		Workers:      processor,
	})

	errChan := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		recorder.Run(appCtx)
	}()
	go func() {
		defer wg.Done()
		gate.Run(appCtx)
	}()

	if err := kafkaConsumer.Subscribe(appCtx, eventHandler.HandleMessage); err != nil {
		log.Error("Failed to subscribe to payment events", "error", err)
		os.Exit(1)
	}

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case serviceErr = <-errChan:
		log.Error("Service error occurred", "error", serviceErr)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Stop intake first so nothing new reaches the core
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}
	cancelAppCtx()
	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}
	log.Info("Shutting down worker pool", "running_workers", processor.Running())
	processor.Shutdown()

	// The audit worker flushes its retry queue on the way out
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()
	select {
	case <-wgChan:
		log.Info("Background workers stopped")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	if err = paymentDLQ.Close(); err != nil {
		log.Error("Error closing payment DLQ producer", "error", err)
	}
	if err = auditDLQ.Close(); err != nil {
		log.Error("Error closing audit DLQ producer", "error", err)
	}

	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serviceErr != nil {
		log.Error("Safety Core shutdown with errors", "error", serviceErr)
		os.Exit(1)
	}
	log.Info("Safety Core shutdown completed")
}
