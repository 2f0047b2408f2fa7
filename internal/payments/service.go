package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/renmo-pay/renmo/internal/ledger"
)

const (
	// DefaultLookahead is how many ledgers past the current validated ledger
	// a submission stays eligible.
	DefaultLookahead = 10
	// TrustLimit is the limit set on the token trust line.
	TrustLimit = "1000000000"

	maxAttempts = 2
)

var (
	// ErrInvalidAmount indicates the amount is not a positive decimal.
	ErrInvalidAmount = errors.New("amount must be a positive decimal")
	// ErrInvalidDestination indicates a missing destination address.
	ErrInvalidDestination = errors.New("destination is required")
	// ErrSubmissionFailed wraps any submission failure that survived the
	// permitted retry.
	ErrSubmissionFailed = errors.New("submission failed")
)

// Token identifies the issued currency payments are made in.
type Token struct {
	Currency string
	Issuer   string
}

// Intent is a requested payment.
type Intent struct {
	Destination string
	Amount      string
}

// Validate checks the intent and returns the canonical amount.
func (i Intent) Validate() (string, error) {
	if strings.TrimSpace(i.Destination) == "" {
		return "", ErrInvalidDestination
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(i.Amount))
	if err != nil || !amount.IsPositive() {
		return "", ErrInvalidAmount
	}
	return amount.String(), nil
}

// Network is the subset of the ledger client used for submission.
type Network interface {
	ValidatedLedgerIndex(ctx context.Context) (uint32, error)
	SubmitAndWait(ctx context.Context, seed string, ins ledger.Instruction) (ledger.SubmitResult, error)
}

// Receipt describes a validated submission.
type Receipt struct {
	Hash        string
	Result      string
	LedgerIndex uint32
	Attempts    int
	CompletedAt time.Time
}

// Service builds, signs and submits token payments.
type Service struct {
	network   Network
	token     Token
	lookahead uint32
	logger    *slog.Logger
}

// NewService constructs a payment service.
func NewService(network Network, token Token, lookahead uint32, logger *slog.Logger) *Service {
	if lookahead == 0 {
		lookahead = DefaultLookahead
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{network: network, token: token, lookahead: lookahead, logger: logger}
}

// Token returns the configured currency and issuer.
func (s *Service) Token() Token {
	return s.token
}

// Pay sends intent from account, signing with seed.
func (s *Service) Pay(ctx context.Context, account, seed string, intent Intent) (Receipt, error) {
	value, err := intent.Validate()
	if err != nil {
		return Receipt{}, err
	}
	return s.submit(ctx, seed, func(deadline uint32) ledger.Instruction {
		return ledger.Instruction{
			Type:               ledger.TypePayment,
			Account:            account,
			Destination:        strings.TrimSpace(intent.Destination),
			Amount:             ledger.Amount{Currency: s.token.Currency, Issuer: s.token.Issuer, Value: value},
			LastLedgerSequence: deadline,
		}
	})
}

// Trust opens the token trust line for account.
func (s *Service) Trust(ctx context.Context, account, seed string) (Receipt, error) {
	return s.submit(ctx, seed, func(deadline uint32) ledger.Instruction {
		return ledger.Instruction{
			Type:               ledger.TypeTrustSet,
			Account:            account,
			Amount:             ledger.Amount{Currency: s.token.Currency, Issuer: s.token.Issuer, Value: TrustLimit},
			LastLedgerSequence: deadline,
		}
	})
}

// submit runs at most maxAttempts submissions, computing a fresh deadline
// each time. Only a deadline expiry is retried.
func (s *Service) submit(ctx context.Context, seed string, build func(deadline uint32) ledger.Instruction) (Receipt, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		current, err := s.network.ValidatedLedgerIndex(ctx)
		if err != nil {
			return Receipt{}, fmt.Errorf("query validated ledger: %w", err)
		}
		ins := build(current + s.lookahead)

		res, err := s.network.SubmitAndWait(ctx, seed, ins)
		if err == nil {
			s.logger.Info("transaction validated",
				slog.String("type", ins.Type),
				slog.String("hash", res.Hash),
				slog.Int("attempt", attempt),
			)
			return Receipt{
				Hash:        res.Hash,
				Result:      res.Result,
				LedgerIndex: res.LedgerIndex,
				Attempts:    attempt,
				CompletedAt: time.Now().UTC(),
			}, nil
		}

		lastErr = err
		if !ledger.IsDeadlineExpired(err) {
			break
		}
		s.logger.Warn("submission deadline expired",
			slog.String("type", ins.Type),
			slog.Uint64("last_ledger_sequence", uint64(ins.LastLedgerSequence)),
			slog.Int("attempt", attempt),
		)
	}
	return Receipt{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, lastErr)
}
