package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultInterval is the wait between account probes.
	DefaultInterval = 3 * time.Second
	// DefaultAttempts bounds the number of probes.
	DefaultAttempts = 20
)

// ErrTimeout indicates the account never appeared within the probe budget.
var ErrTimeout = errors.New("wallet funding timed out")

// Faucet requests test funds for an address.
type Faucet interface {
	Fund(ctx context.Context, address string) error
}

// Prober reports whether an account exists on the validated ledger.
type Prober interface {
	AccountExists(ctx context.Context, address string) (bool, error)
}

// Options tunes the funding poll.
type Options struct {
	Interval time.Duration
	Attempts int
}

// Result describes a completed funding.
type Result struct {
	Address  string
	Attempts int
	FundedAt time.Time
}

// Service requests faucet funding and waits for the account to appear.
type Service struct {
	faucet   Faucet
	prober   Prober
	interval time.Duration
	attempts int
	logger   *slog.Logger
}

// NewService builds a funding service. Zero options fall back to defaults.
func NewService(faucet Faucet, prober Prober, opts Options, logger *slog.Logger) (*Service, error) {
	if faucet == nil {
		return nil, fmt.Errorf("faucet is required")
	}
	if prober == nil {
		return nil, fmt.Errorf("prober is required")
	}
	if opts.Interval < 0 {
		return nil, fmt.Errorf("poll interval must not be negative")
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{faucet: faucet, prober: prober, interval: opts.Interval, attempts: opts.Attempts, logger: logger}, nil
}

// Fund requests funding for address and waits until the account exists.
func (s *Service) Fund(ctx context.Context, address string) (Result, error) {
	s.logger.Info("requesting faucet funding", slog.String("address", address))
	if err := s.faucet.Fund(ctx, address); err != nil {
		return Result{}, fmt.Errorf("request funding: %w", err)
	}
	attempts, err := s.WaitFunded(ctx, address)
	if err != nil {
		return Result{Address: address, Attempts: attempts}, err
	}
	return Result{Address: address, Attempts: attempts, FundedAt: time.Now().UTC()}, nil
}

// WaitFunded probes the account up to the configured number of attempts,
// sleeping between attempts. A missing account is not an error until the
// last attempt. It returns the number of probes made.
func (s *Service) WaitFunded(ctx context.Context, address string) (int, error) {
	for attempt := 1; attempt <= s.attempts; attempt++ {
		exists, err := s.prober.AccountExists(ctx, address)
		if err != nil {
			return attempt, fmt.Errorf("probe account: %w", err)
		}
		if exists {
			s.logger.Info("wallet funded", slog.String("address", address), slog.Int("attempts", attempt))
			return attempt, nil
		}
		s.logger.Debug("waiting for funding",
			slog.String("address", address),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.attempts),
		)
		if attempt == s.attempts {
			break
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return s.attempts, ErrTimeout
}
