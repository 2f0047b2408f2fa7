package metadata

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const fetchConcurrency = 8

// BestEffort wraps a Collaborator so that failures are logged and never
// propagate into wallet operations.
type BestEffort struct {
	backend Collaborator
	logger  *slog.Logger
}

// NewBestEffort wraps backend. A nil backend yields a wrapper that does nothing.
func NewBestEffort(backend Collaborator, logger *slog.Logger) *BestEffort {
	if logger == nil {
		logger = slog.Default()
	}
	return &BestEffort{backend: backend, logger: logger}
}

// Lookup fetches metadata for address, treating failures as absent.
func (b *BestEffort) Lookup(ctx context.Context, address string) (Account, bool) {
	if b == nil || b.backend == nil {
		return Account{}, false
	}
	acct, ok, err := b.backend.Get(ctx, address)
	if err != nil {
		b.logger.Warn("metadata lookup failed", slog.String("address", address), slog.Any("error", err))
		return Account{}, false
	}
	return acct, ok
}

// Record writes a full metadata document. The error is returned for
// reporting only.
func (b *BestEffort) Record(ctx context.Context, acct Account) error {
	if b == nil || b.backend == nil {
		return nil
	}
	if err := b.backend.Set(ctx, acct.Address, acct); err != nil {
		b.logger.Warn("metadata write failed", slog.String("address", acct.Address), slog.Any("error", err))
		return err
	}
	return nil
}

// Touch refreshes lastUsed for address.
func (b *BestEffort) Touch(ctx context.Context, address string, at time.Time) error {
	if b == nil || b.backend == nil {
		return nil
	}
	if err := b.backend.Update(ctx, address, Patch{LastUsed: &at}); err != nil {
		b.logger.Warn("metadata touch failed", slog.String("address", address), slog.Any("error", err))
		return err
	}
	return nil
}

// FetchAll looks up every address concurrently. Each lookup fails on its
// own; the result only contains addresses whose metadata was found.
func (b *BestEffort) FetchAll(ctx context.Context, addresses []string) map[string]Account {
	found := make(map[string]Account, len(addresses))
	if b == nil || b.backend == nil || len(addresses) == 0 {
		return found
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(fetchConcurrency)
	for _, address := range addresses {
		address := address
		g.Go(func() error {
			acct, ok := b.Lookup(ctx, address)
			if ok {
				mu.Lock()
				found[address] = acct
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return found
}
