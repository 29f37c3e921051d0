package main

import (
	"context"
	"errors"
	"os"
	"time"

	"piggybank/internal/amqp"
	"piggybank/internal/backend"
	"piggybank/internal/cli"
	"piggybank/internal/gateway"
	applog "piggybank/internal/log"
	"piggybank/internal/worker"
)

var version = "dev"

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)
	cli.InitSentry(cfg, version, logger)

	logger.Info("Starting piggybank-worker", "version", version)

	if !backend.BackendType(cfg.DataBackend).IsPersistent() {
		logger.Warn("Memory backend is private to this process; the worker will only see its own seed data",
			"backend", cfg.DataBackend)
	}
	if !cfg.ExportEnabled() {
		logger.Error("No export sink configured; set GOOGLE_SPREADSHEET_ID, ELASTICSEARCH_URL or EXPORT_DIR")
		os.Exit(1)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	res, err := cli.OpenBackend(startCtx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open data backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer cli.CloseBackend(res, logger)

	sinks, err := worker.BuildSinks(startCtx, cfg)
	if err != nil {
		logger.Error("Failed to initialize export sinks", applog.FieldError, err)
		os.Exit(1)
	}

	users, _ := res.Gateway.(gateway.UserLister)
	exporter := worker.NewExportWorker(res.Gateway, users, sinks, worker.Config{
		Interval:  cfg.SyncInterval,
		BatchSize: cfg.SyncBatchSize,
	})

	var consumer *amqp.Client
	if cfg.AMQPURL != "" {
		consumer, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer consumer.Close()
	} else {
		logger.Info("AMQP disabled; relying on periodic exports only")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := exporter.Stop(ctx); err != nil {
			logger.Error("Export worker stop failed", applog.FieldError, err)
		}
	})

	if err := exporter.Start(ctx); err != nil {
		logger.Error("Failed to start export worker", applog.FieldError, err)
		os.Exit(1)
	}

	if consumer != nil {
		go func() {
			err := consumer.ConsumeForever(ctx, exporter.HandleEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", applog.FieldError, err)
			}
		}()
	}

	<-ctx.Done()
	<-done
	logger.Info("Worker shutdown complete")
}
