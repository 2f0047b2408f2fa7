package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/renmo-pay/renmo/internal/funding"
	"github.com/renmo-pay/renmo/internal/ledger"
	"github.com/renmo-pay/renmo/internal/metadata"
	"github.com/renmo-pay/renmo/internal/payments"
	"github.com/renmo-pay/renmo/internal/wallet"
)

const (
	// DefaultHistoryLimit is used when History is called with a non-positive limit.
	DefaultHistoryLimit = 20
	// MaxHistoryLimit caps a single History call, matching account_tx.
	MaxHistoryLimit = 400
)

// Status is the connection state of a session.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Transaction is a history entry as presented to the UI.
type Transaction struct {
	Hash        string        `json:"hash"`
	Type        string        `json:"type"`
	Amount      ledger.Amount `json:"amount"`
	Destination string        `json:"destination,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	Status      string        `json:"status"`
}

// Transaction statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Deps groups the collaborators a session needs.
type Deps struct {
	Network  ledger.Network
	Store    *wallet.Store
	Metadata *metadata.BestEffort
	Funding  *funding.Service
	Payments *payments.Service
	Logger   *slog.Logger
}

// Session owns the ledger connection and the active wallet. The seed of the
// active wallet is read from the store when needed and never cached here.
type Session struct {
	network  ledger.Network
	store    *wallet.Store
	meta     *metadata.BestEffort
	funding  *funding.Service
	payments *payments.Service
	logger   *slog.Logger

	// opMu serializes operations that mutate the store, the connection or
	// the active wallet.
	opMu sync.Mutex

	mu       sync.RWMutex
	status   Status
	active   string
	restored bool
}

// New builds a disconnected session.
func New(deps Deps) (*Session, error) {
	if deps.Network == nil {
		return nil, fmt.Errorf("network is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("wallet store is required")
	}
	if deps.Funding == nil {
		return nil, fmt.Errorf("funding service is required")
	}
	if deps.Payments == nil {
		return nil, fmt.Errorf("payment service is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Session{
		network:  deps.Network,
		store:    deps.Store,
		meta:     deps.Metadata,
		funding:  deps.Funding,
		payments: deps.Payments,
		logger:   deps.Logger,
	}, nil
}

// Status returns the connection state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// ActiveAddress returns the active wallet's address, if any.
func (s *Session) ActiveAddress() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.active != ""
}

func (s *Session) setActive(address string) {
	s.mu.Lock()
	s.active = address
	s.mu.Unlock()
}

// Connect opens the ledger connection. On the first successful connect the
// first stored wallet becomes active and stored names are refreshed from
// metadata.
func (s *Session) Connect(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	s.mu.Lock()
	wasConnected := s.status == Connected
	if !wasConnected {
		s.status = Connecting
	}
	s.mu.Unlock()

	// Connect is a no-op on an open transport and re-dials a dropped one.
	if err := s.network.Connect(ctx); err != nil {
		s.setStatus(Disconnected)
		return unavailable("connect", err)
	}

	s.mu.Lock()
	s.status = Connected
	restore := !s.restored
	s.restored = true
	s.mu.Unlock()
	if !wasConnected {
		s.logger.Info("ledger session connected")
	}

	if restore {
		if err := s.restore(ctx); err != nil {
			s.mu.Lock()
			s.status = Disconnected
			s.restored = false
			s.mu.Unlock()
			if derr := s.network.Disconnect(ctx); derr != nil {
				s.logger.Warn("ledger disconnect", slog.Any("error", derr))
			}
			return fmt.Errorf("restore wallets: %w", err)
		}
	}
	return nil
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// networkErr wraps a failed network call. A transport that reports itself
// closed demotes the session so the next connect re-dials.
func (s *Session) networkErr(op string, err error) error {
	s.demoteOnClosed(err)
	return unavailable(op, err)
}

func (s *Session) demoteOnClosed(err error) {
	if !errors.Is(err, ledger.ErrNotConnected) {
		return
	}
	s.mu.Lock()
	if s.status == Connected {
		s.status = Disconnected
		s.logger.Warn("ledger transport closed")
	}
	s.mu.Unlock()
}

func (s *Session) restore(ctx context.Context) error {
	records, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	if _, ok := s.ActiveAddress(); !ok {
		s.setActive(records[0].Address)
		s.logger.Info("restored active wallet", slog.String("address", records[0].Address))
	}

	addresses := make([]string, len(records))
	for i, r := range records {
		addresses[i] = r.Address
	}
	found := s.meta.FetchAll(ctx, addresses)
	for _, r := range records {
		acct, ok := found[r.Address]
		if !ok || acct.Name == "" || acct.Name == r.Name {
			continue
		}
		if err := s.store.Rename(ctx, r.Address, acct.Name); err != nil {
			s.logger.Warn("apply metadata name", slog.String("address", r.Address), slog.Any("error", err))
		}
	}
	return nil
}

// Disconnect closes the connection and forgets the active wallet.
func (s *Session) Disconnect(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.status == Disconnected {
		s.active = ""
		s.mu.Unlock()
		return nil
	}
	s.status = Disconnected
	s.active = ""
	s.mu.Unlock()

	if err := s.network.Disconnect(ctx); err != nil {
		s.logger.Warn("ledger disconnect", slog.Any("error", err))
	}
	s.logger.Info("ledger session disconnected")
	return nil
}

func (s *Session) requireConnected() error {
	if s.Status() != Connected {
		return ErrNotConnected
	}
	return nil
}

// Wallets lists stored wallets without their seeds.
func (s *Session) Wallets(ctx context.Context) ([]wallet.Summary, error) {
	return s.store.List(ctx)
}

// AddWallet imports importedSeed, or generates and funds a fresh wallet when
// it is empty. The new wallet becomes active. A fresh wallet stays stored
// and active when funding fails.
func (s *Session) AddWallet(ctx context.Context, name, importedSeed string) (wallet.Summary, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.connectLocked(ctx); err != nil {
		return wallet.Summary{}, err
	}

	importedSeed = strings.TrimSpace(importedSeed)
	imported := importedSeed != ""

	var (
		cred ledger.Credential
		err  error
	)
	if imported {
		cred, err = s.network.DeriveWallet(ctx, importedSeed)
		if errors.Is(err, ledger.ErrInvalidSeed) {
			return wallet.Summary{}, ErrInvalidCredential
		}
	} else {
		cred, err = s.network.GenerateWallet(ctx)
	}
	if err != nil {
		return wallet.Summary{}, s.networkErr("create wallet", err)
	}

	records, err := s.store.Load(ctx)
	if err != nil {
		return wallet.Summary{}, err
	}
	for _, r := range records {
		if r.Address == cred.Address {
			return wallet.Summary{}, ErrAlreadyImported
		}
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Account %d", len(records)+1)
	}
	record := wallet.Record{Seed: cred.Seed, Address: cred.Address, Name: name}

	now := time.Now().UTC()
	_ = s.meta.Record(ctx, metadata.Account{Name: name, Address: cred.Address, CreatedAt: now, LastUsed: now})

	if err := s.store.Add(ctx, record); err != nil {
		return wallet.Summary{}, err
	}
	s.setActive(cred.Address)
	s.logger.Info("wallet added", slog.String("address", cred.Address), slog.Bool("imported", imported))

	if imported {
		return record.Summary(), nil
	}

	if _, err := s.funding.Fund(ctx, cred.Address); err != nil {
		if errors.Is(err, ErrFundingTimeout) {
			return record.Summary(), fmt.Errorf("fund %s: %w", cred.Address, err)
		}
		return record.Summary(), s.networkErr("fund wallet", err)
	}
	return record.Summary(), nil
}

// SwitchWallet makes address the active wallet and returns its balance.
func (s *Session) SwitchWallet(ctx context.Context, address string) (string, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if _, ok, err := s.store.Find(ctx, address); err != nil {
		return "", err
	} else if !ok {
		return "", ErrNotFound
	}

	s.setActive(address)
	if err := s.connectLocked(ctx); err != nil {
		return "", err
	}
	_ = s.meta.Touch(ctx, address, time.Now().UTC())
	return s.balance(ctx, address)
}

// RemoveWallet deletes address from the store. When it was active, the first
// remaining wallet becomes active, or none if the store is empty.
func (s *Session) RemoveWallet(ctx context.Context, address string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	removed, err := s.store.Remove(ctx, address)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	s.logger.Info("wallet removed", slog.String("address", address))

	if active, _ := s.ActiveAddress(); active != address {
		return nil
	}
	records, err := s.store.Load(ctx)
	if err != nil {
		s.setActive("")
		return err
	}
	next := ""
	if len(records) > 0 {
		next = records[0].Address
	}
	s.setActive(next)
	return nil
}

// SecretKey returns the stored seed for address.
func (s *Session) SecretKey(ctx context.Context, address string) (string, error) {
	record, ok, err := s.store.Find(ctx, address)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotFound
	}
	s.logger.Warn("secret key revealed", slog.String("address", address))
	return record.Seed, nil
}

func (s *Session) activeRecord(ctx context.Context) (wallet.Record, error) {
	address, ok := s.ActiveAddress()
	if !ok {
		return wallet.Record{}, ErrNoActiveWallet
	}
	record, found, err := s.store.Find(ctx, address)
	if err != nil {
		return wallet.Record{}, err
	}
	if !found {
		return wallet.Record{}, ErrNoActiveWallet
	}
	return record, nil
}

// SendPayment pays amount of the configured token from the active wallet to
// destination.
func (s *Session) SendPayment(ctx context.Context, destination, amount string) (payments.Receipt, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	record, err := s.activeRecord(ctx)
	if err != nil {
		return payments.Receipt{}, err
	}
	intent := payments.Intent{Destination: destination, Amount: amount}
	if _, err := intent.Validate(); err != nil {
		return payments.Receipt{}, err
	}
	if err := s.connectLocked(ctx); err != nil {
		return payments.Receipt{}, err
	}

	receipt, err := s.payments.Pay(ctx, record.Address, record.Seed, intent)
	if err != nil {
		return payments.Receipt{}, s.submitErr("send payment", err)
	}
	s.logger.Info("payment sent",
		slog.String("from", record.Address),
		slog.String("to", destination),
		slog.String("hash", receipt.Hash),
	)
	return receipt, nil
}

// SetupTrustline opens the token trust line on the active wallet.
func (s *Session) SetupTrustline(ctx context.Context) (payments.Receipt, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	record, err := s.activeRecord(ctx)
	if err != nil {
		return payments.Receipt{}, err
	}
	if err := s.connectLocked(ctx); err != nil {
		return payments.Receipt{}, err
	}
	receipt, err := s.payments.Trust(ctx, record.Address, record.Seed)
	if err != nil {
		return payments.Receipt{}, s.submitErr("set trust line", err)
	}
	return receipt, nil
}

func (s *Session) submitErr(op string, err error) error {
	s.demoteOnClosed(err)
	switch {
	case errors.Is(err, ErrSubmissionFailed),
		errors.Is(err, payments.ErrInvalidAmount),
		errors.Is(err, payments.ErrInvalidDestination):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return unavailable(op, err)
	}
}

// Balance returns the active wallet's token balance, or "0" when it holds no
// matching trust line.
func (s *Session) Balance(ctx context.Context) (string, error) {
	address, ok := s.ActiveAddress()
	if !ok {
		return "", ErrNoActiveWallet
	}
	if err := s.requireConnected(); err != nil {
		return "", err
	}
	return s.balance(ctx, address)
}

func (s *Session) balance(ctx context.Context, address string) (string, error) {
	lines, err := s.network.TrustLines(ctx, address)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return "0", nil
	}
	if err != nil {
		return "", s.networkErr("query trust lines", err)
	}
	token := s.payments.Token()
	for _, line := range lines {
		if line.Currency == token.Currency && line.Account == token.Issuer {
			return line.Balance, nil
		}
	}
	return "0", nil
}

// History returns up to limit of the active wallet's transactions, most
// recent first.
func (s *Session) History(ctx context.Context, limit int) ([]Transaction, error) {
	address, ok := s.ActiveAddress()
	if !ok {
		return nil, ErrNoActiveWallet
	}
	if err := s.requireConnected(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	txs, err := s.network.Transactions(ctx, address, limit)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return []Transaction{}, nil
	}
	if err != nil {
		return nil, s.networkErr("query transactions", err)
	}
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		status := StatusFailed
		if tx.Result == ledger.ResultSuccess {
			status = StatusSuccess
		}
		out = append(out, Transaction{
			Hash:        tx.Hash,
			Type:        tx.Type,
			Amount:      tx.Amount,
			Destination: tx.Destination,
			Timestamp:   tx.Date,
			Status:      status,
		})
	}
	return out, nil
}
