package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/renmo-pay/renmo/internal/config"
	"github.com/renmo-pay/renmo/internal/ledger"
	"github.com/renmo-pay/renmo/internal/metadata"
	"github.com/renmo-pay/renmo/internal/wallet"
	"github.com/renmo-pay/renmo/internal/xrpl"
)

// NewNetwork returns the configured ledger client.
func NewNetwork(cfg config.Config, logger *slog.Logger) ledger.Network {
	if cfg.LedgerBackend == config.LedgerMemory {
		logger.Warn("using simulated in-memory ledger")
		return ledger.NewInMemory(1)
	}
	return xrpl.New(xrpl.Options{URL: cfg.LedgerURL, FaucetURL: cfg.FaucetURL, Logger: logger})
}

// NewWalletSlot returns the configured persisted slot. db and cache may be
// nil unless the matching backend is selected.
func NewWalletSlot(ctx context.Context, cfg config.Config, db *pgxpool.Pool, cache *redis.Client) (wallet.Slot, error) {
	switch cfg.WalletStore {
	case config.StoreMemory:
		return wallet.NewMemorySlot(), nil
	case config.StoreRedis:
		if cache == nil {
			return nil, fmt.Errorf("redis client is required for the redis wallet store")
		}
		return wallet.NewRedisSlot(cache, cfg.WalletSlot), nil
	case config.StorePostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres pool is required for the postgres wallet store")
		}
		slot := wallet.NewPostgresSlot(db, cfg.WalletSlot)
		if err := slot.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return slot, nil
	default:
		return wallet.NewFileSlot(cfg.WalletFile)
	}
}

// NewMetadata returns the configured metadata collaborator and a close func.
// A nil collaborator disables metadata.
func NewMetadata(cfg config.Config) (metadata.Collaborator, func() error, error) {
	noop := func() error { return nil }
	switch cfg.MetadataBackend {
	case config.MetadataPinata:
		return metadata.NewPinataClient(cfg.PinataAPIURL, cfg.PinataGatewayURL, cfg.PinataJWT), noop, nil
	case config.MetadataSQLite:
		store, err := metadata.NewSQLiteStore(cfg.MetadataDB)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case config.MetadataMemory:
		return metadata.NewMemoryStore(), noop, nil
	default:
		return nil, noop, nil
	}
}
