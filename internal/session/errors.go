package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/renmo-pay/renmo/internal/funding"
	"github.com/renmo-pay/renmo/internal/payments"
)

var (
	// ErrNotConnected is returned by operations that need an open session.
	ErrNotConnected = errors.New("session not connected")
	// ErrNoActiveWallet is returned by operations that need an active wallet.
	ErrNoActiveWallet = errors.New("no active wallet")
	// ErrNotFound indicates the address is not in the wallet store.
	ErrNotFound = errors.New("wallet not found")
	// ErrAlreadyImported indicates the derived address is already stored.
	ErrAlreadyImported = errors.New("wallet already imported")
	// ErrInvalidCredential indicates the secret could not be decoded.
	ErrInvalidCredential = errors.New("invalid secret key")
	// ErrNetworkUnavailable covers connection and request failures.
	ErrNetworkUnavailable = errors.New("ledger network unavailable")

	ErrFundingTimeout   = funding.ErrTimeout
	ErrSubmissionFailed = payments.ErrSubmissionFailed
	ErrInvalidAmount    = payments.ErrInvalidAmount
)

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrNetworkUnavailable, err)
}
