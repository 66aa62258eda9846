// Command reconciler recomputes every wallet balance from its transactions
// and raises a critical failure for each tenant whose cached balance drifted.
// It is meant to run as a scheduled job and exits non-zero if any tenant
// could not be checked.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tenantops/safety-core/internal/auditlog"
	"github.com/tenantops/safety-core/internal/config"
	"github.com/tenantops/safety-core/internal/data/mongo"
	"github.com/tenantops/safety-core/internal/data/postgres"
	"github.com/tenantops/safety-core/internal/domain/audit"
	"github.com/tenantops/safety-core/internal/failuretracker"
	"github.com/tenantops/safety-core/internal/ledger"
	"github.com/tenantops/safety-core/internal/logger"
	"github.com/tenantops/safety-core/internal/platform/messaging/producers"
	"github.com/tenantops/safety-core/internal/platform/persistence"
)

func main() {
	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig("reconciler")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer postgresDB.Close()

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	auditDLQ, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.AuditDLQTopic)
	if err != nil {
		log.Error("Failed to initialize audit DLQ producer", "error", err)
		os.Exit(1)
	}

	recorder := auditlog.NewRecorder(
		&cfg.Audit,
		mongo.NewAuditRepository(log, mongoDB.Database(), cfg.MongoDB.AuditCollection),
		auditDLQ,
		log,
	)
	tracker := failuretracker.NewTracker(postgresDB, postgres.NewFailureRepository(log, postgresDB), recorder, log)
	ledgerService := ledger.NewService(&cfg.Ledger, postgresDB, postgres.NewWalletRepository(log, postgresDB), tracker, recorder, log)

	// The retry worker drains failed audit writes; canceling it flushes the queue
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		recorder.Run(workerCtx)
		close(done)
	}()

	summary, runErr := ledgerService.ReconcileAll(appCtx, cfg.Ledger.ReconcileBatchSize, audit.SystemActor("reconciler"))

	cancelWorker()
	<-done

	if err := auditDLQ.Close(); err != nil {
		log.Error("Error closing audit DLQ producer", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.MongoDB.Timeout)
	defer cancel()
	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if runErr != nil {
		log.Error("Reconciliation aborted", "error", runErr)
		os.Exit(1)
	}
	log.Info("Reconciler done",
		"checked", summary.Checked,
		"drifted", len(summary.Drifted),
		"errors", summary.Errors,
	)
	if summary.Errors > 0 {
		os.Exit(1)
	}
}
