package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAccountNotFound indicates the queried account does not exist on the
	// validated ledger yet (for example before a faucet payment lands).
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidSeed occurs when a secret cannot be decoded into a key pair.
	ErrInvalidSeed = errors.New("invalid seed")

	// ErrNotConnected is returned by network calls made before Connect.
	ErrNotConnected = errors.New("network not connected")
)

const (
	// ResultSuccess is the engine result code of a fully applied transaction.
	ResultSuccess = "tesSUCCESS"

	// TypePayment and TypeTrustSet are the instruction types the session builds.
	TypePayment  = "Payment"
	TypeTrustSet = "TrustSet"
)

// Credential is a seed together with the classic address derived from it.
type Credential struct {
	Seed    string
	Address string
}

// Amount is an issued-currency value. Native amounts carry only Value (drops).
type Amount struct {
	Currency string `json:"currency,omitempty"`
	Issuer   string `json:"issuer,omitempty"`
	Value    string `json:"value"`
}

// Native reports whether the amount is denominated in the ledger's own asset.
func (a Amount) Native() bool {
	return a.Currency == "" && a.Issuer == ""
}

// TrustLine is one account_lines entry. Account is the counterparty.
type TrustLine struct {
	Account  string
	Balance  string
	Currency string
	Limit    string
}

// Transaction is a validated transaction touching an account.
type Transaction struct {
	Hash        string
	Type        string
	Amount      Amount
	Destination string
	Date        time.Time
	Result      string
}

// Instruction is an unsigned transaction. Sequence and fee are filled in by
// the network client.
type Instruction struct {
	Type               string
	Account            string
	Destination        string
	Amount             Amount
	LastLedgerSequence uint32
}

// SubmitResult describes a transaction that reached a validated ledger.
type SubmitResult struct {
	Hash        string
	Result      string
	LedgerIndex uint32
}

// SubmitErrorKind classifies submission failures.
type SubmitErrorKind int

const (
	// SubmitTransport covers connection and request failures.
	SubmitTransport SubmitErrorKind = iota
	// SubmitRejected means the network refused or failed the transaction.
	SubmitRejected
	// SubmitDeadlineExpired means the LastLedgerSequence passed before the
	// transaction validated, or the sequence was already consumed.
	SubmitDeadlineExpired
)

func (k SubmitErrorKind) String() string {
	switch k {
	case SubmitRejected:
		return "rejected"
	case SubmitDeadlineExpired:
		return "deadline_expired"
	default:
		return "transport"
	}
}

// SubmitError is the structured failure returned by SubmitAndWait.
type SubmitError struct {
	Kind SubmitErrorKind
	Code string
	Err  error
}

func (e *SubmitError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("submit %s (%s): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("submit %s: %v", e.Kind, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// IsDeadlineExpired reports whether err is a SubmitError of kind SubmitDeadlineExpired.
func IsDeadlineExpired(err error) bool {
	var se *SubmitError
	return errors.As(err, &se) && se.Kind == SubmitDeadlineExpired
}

// Network defines the capabilities required of a ledger client.
type Network interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	GenerateWallet(ctx context.Context) (Credential, error)
	DeriveWallet(ctx context.Context, seed string) (Credential, error)
	Fund(ctx context.Context, address string) error
	AccountExists(ctx context.Context, address string) (bool, error)
	ValidatedLedgerIndex(ctx context.Context) (uint32, error)
	TrustLines(ctx context.Context, address string) ([]TrustLine, error)
	Transactions(ctx context.Context, address string, limit int) ([]Transaction, error)
	SubmitAndWait(ctx context.Context, seed string, ins Instruction) (SubmitResult, error)
}
