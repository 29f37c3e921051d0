package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"piggybank/internal/amqp"
	"piggybank/internal/auth"
	"piggybank/internal/cache"
	"piggybank/internal/cli"
	"piggybank/internal/config"
	"piggybank/internal/gateway"
	"piggybank/internal/grpcserver"
	apphttp "piggybank/internal/http"
	applog "piggybank/internal/log"
	"piggybank/internal/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)
	sentryOn := cli.InitSentry(cfg, version, logger)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	res, err := cli.OpenBackend(startCtx, cfg, logger)
	startCancel()
	if err != nil {
		logger.Error("Failed to open data backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// Events only feed the export worker; the ledger works without them.
			logger.Warn("AMQP unavailable, ledger events disabled", applog.FieldError, err)
		} else {
			publisher = client
			logger.Info("AMQP publisher connected", "exchange", cfg.AMQPExchange)
		}
	}

	svc := services.NewLedgerService(res.Gateway, publisher, services.Options{
		GatewayTimeout: cfg.GatewayTimeout,
		CacheSize:      cfg.SnapshotCacheSize,
		CacheTTL:       cfg.SnapshotTTL,
		Logger:         logger,
	})

	cacheManager := cache.NewManager()
	cacheManager.Register(svc.Cache())
	cacheManager.StartCleanup(time.Minute)

	authenticator, sessions, err := buildAuth(cfg, res.Gateway)
	if err != nil {
		logger.Error("Failed to configure authentication", applog.FieldError, err, "auth_mode", cfg.AuthMode)
		os.Exit(1)
	}

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:               net.JoinHostPort("", cfg.Port),
		Ledger:             svc,
		Auth:               authenticator,
		Sessions:           sessions,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitRPM,
		Sentry:             sentryOn,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", applog.FieldError, err)
		os.Exit(1)
	}

	var grpcSrv *grpcserver.Server
	if cfg.GRPCAddr != "" {
		grpcSrv = grpcserver.New(cfg.GRPCAddr, svc, 15*time.Second, logger)
		go func() {
			if err := grpcSrv.Start(); err != nil {
				logger.Error("gRPC serve error", applog.FieldError, err, applog.FieldAddr, cfg.GRPCAddr)
			}
		}()
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if grpcSrv != nil {
			grpcSrv.Stop()
		}
		cacheManager.Stop()
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close ledger", applog.FieldError, err)
		}
	})

	logger.Info("Starting piggybank server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"auth_mode", cfg.AuthMode,
		"version", version)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	<-done
	logger.Info("Server stopped gracefully")
}

// buildAuth picks the authenticator for cfg.AuthMode. Session mode keeps
// its accounts in the ledger backend.
func buildAuth(cfg *config.Config, gw gateway.Gateway) (auth.Authenticator, *auth.Sessions, error) {
	if cfg.AuthMode != config.AuthModeSession {
		return auth.NewFixed(cfg.DemoUserID), nil, nil
	}
	accounts, ok := gw.(gateway.AccountStore)
	if !ok {
		return nil, nil, fmt.Errorf("%s backend cannot store accounts", cfg.DataBackend)
	}
	sessions, err := auth.NewSessions(accounts, cfg.SessionEncryptionKey, cfg.SessionSigningKey, cfg.SessionTTL, cfg.SecureCookies)
	if err != nil {
		return nil, nil, err
	}
	return sessions, sessions, nil
}
