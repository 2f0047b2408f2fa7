package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/renmo-pay/renmo/internal/config"
	"github.com/renmo-pay/renmo/internal/funding"
	"github.com/renmo-pay/renmo/internal/infra"
	"github.com/renmo-pay/renmo/internal/logging"
	"github.com/renmo-pay/renmo/internal/metadata"
	"github.com/renmo-pay/renmo/internal/notification"
	"github.com/renmo-pay/renmo/internal/payments"
	"github.com/renmo-pay/renmo/internal/server"
	"github.com/renmo-pay/renmo/internal/session"
	"github.com/renmo-pay/renmo/internal/state"
	"github.com/renmo-pay/renmo/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "app", cfg.AppName, "env", cfg.AppEnv)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	slot, err := infra.NewWalletSlot(ctx, cfg, db, cache)
	if err != nil {
		logger.Error("open wallet store", "error", err)
		os.Exit(1)
	}
	store := wallet.NewStore(slot, wallet.NewPassphraseSealer(cfg.WalletPassphrase), logger)

	backend, closeMetadata, err := infra.NewMetadata(cfg)
	if err != nil {
		logger.Error("open metadata store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeMetadata(); err != nil {
			logger.Warn("close metadata store", "error", err)
		}
	}()
	meta := metadata.NewBestEffort(backend, logger)

	network := infra.NewNetwork(cfg, logger)
	token := payments.Token{Currency: cfg.TokenCurrency, Issuer: cfg.TokenIssuer}
	factory := func() (*session.Session, error) {
		fund, err := funding.NewService(network, network, funding.Options{
			Interval: cfg.PollInterval,
			Attempts: cfg.PollAttempts,
		}, logger)
		if err != nil {
			return nil, err
		}
		return session.New(session.Deps{
			Network:  network,
			Store:    store,
			Metadata: meta,
			Funding:  fund,
			Payments: payments.NewService(network, token, cfg.Lookahead, logger),
			Logger:   logger,
		})
	}
	facade := state.NewFacade(factory, notification.NewLoggerNotifier(logger), logger)

	srv, err := server.New(cfg, facade, db, cache, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
