// Command cuadre-worker mirrors reconciliations saved in sqlite to the Google
// Sheets ledger and keeps the local copy of the store and bank lists fresh.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"cuadre/internal/amqp"
	"cuadre/internal/cli"
	"cuadre/internal/config"
	"cuadre/internal/ledger/google"
	applog "cuadre/internal/log"
	"cuadre/internal/services"
	"cuadre/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting cuadre-worker")

	cfg := config.Load()
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	sheets, err := google.New(context.Background(), google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		LedgerSheet:     cfg.GoogleLedgerSheet,
		ConfigSheet:     cfg.GoogleConfigSheet,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		_ = repo.Close()
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		_ = repo.Close()
		os.Exit(1)
	}

	syncWorker := worker.NewSyncWorker(repo, sheets, sheets, cfg.SyncBatchSize)
	processor := services.NewSyncProcessor(syncWorker, syncWorker, services.SyncProcessorConfig{
		PollInterval:   cfg.SyncInterval,
		ConfigInterval: time.Hour,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Sync processor stop error", "error", err)
		}
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close error", "error", err)
		}
		if err := repo.Close(); err != nil {
			logger.Error("SQLite close error", "error", err)
		}
	})

	logger.Info("Checking configuration lists")
	if err := syncWorker.SyncConfigIfNeeded(ctx); err != nil {
		logger.Error("Failed to sync configuration lists", "error", err)
	}
	logger.Info("Performing startup sync check")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", "error", err)
	}

	go func() {
		err := amqpClient.ConsumeRecordSync(ctx, syncWorker.HandleSyncMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption stopped", "error", err)
		}
	}()

	logger.Info("Worker running",
		"queue", cfg.AMQPQueue,
		"batch_size", cfg.SyncBatchSize,
		"sync_interval", cfg.SyncInterval.String())
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
