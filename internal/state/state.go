// Package state exposes the wallet session to the UI surface as a single
// observable SessionState.
package state

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/renmo-pay/renmo/internal/notification"
	"github.com/renmo-pay/renmo/internal/payments"
	"github.com/renmo-pay/renmo/internal/session"
	"github.com/renmo-pay/renmo/internal/wallet"
)

// SessionState is what the UI renders. The zero value is the disconnected state.
type SessionState struct {
	Connected     bool    `json:"connected"`
	ActiveAddress *string `json:"activeAddress"`
	Balance       *string `json:"balance"`
}

// Factory builds a fresh, disconnected session.
type Factory func() (*session.Session, error)

// Facade owns at most one session and publishes its state after every
// mutating operation.
type Facade struct {
	factory  Factory
	notifier notification.Notifier
	logger   *slog.Logger

	mu     sync.Mutex
	sess   *session.Session
	state  SessionState
	subs   map[int]chan SessionState
	nextID int
}

// NewFacade builds a facade with no session.
func NewFacade(factory Factory, notifier notification.Notifier, logger *slog.Logger) *Facade {
	if notifier == nil {
		notifier = notification.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		factory:  factory,
		notifier: notifier,
		logger:   logger,
		subs:     make(map[int]chan SessionState),
	}
}

// State returns the last published state.
func (f *Facade) State() SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Subscribe registers for state updates. Slow subscribers only see the most
// recent state. The returned func unsubscribes and closes the channel.
func (f *Facade) Subscribe() (<-chan SessionState, func()) {
	ch := make(chan SessionState, 1)
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	ch <- f.state
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *Facade) current() (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sess == nil {
		return nil, session.ErrNotConnected
	}
	return f.sess, nil
}

// Connect creates the session if needed and connects it.
func (f *Facade) Connect(ctx context.Context) error {
	f.mu.Lock()
	sess := f.sess
	f.mu.Unlock()

	if sess == nil {
		built, err := f.factory()
		if err != nil {
			return err
		}
		sess = built
	}
	if err := sess.Connect(ctx); err != nil {
		f.publish(ctx, SessionState{})
		return err
	}

	f.mu.Lock()
	f.sess = sess
	f.mu.Unlock()
	f.refresh(ctx, sess, nil)
	return nil
}

// Disconnect tears the session down and resets state.
func (f *Facade) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	sess := f.sess
	f.sess = nil
	f.mu.Unlock()

	var err error
	if sess != nil {
		err = sess.Disconnect(ctx)
	}
	f.publish(ctx, SessionState{})
	return err
}

// Wallets lists stored wallets.
func (f *Facade) Wallets(ctx context.Context) ([]wallet.Summary, error) {
	sess, err := f.current()
	if err != nil {
		return nil, err
	}
	return sess.Wallets(ctx)
}

// AddWallet creates or imports a wallet and makes it active.
func (f *Facade) AddWallet(ctx context.Context, name, secret string) (wallet.Summary, error) {
	sess, err := f.current()
	if err != nil {
		return wallet.Summary{}, err
	}
	summary, err := sess.AddWallet(ctx, name, secret)
	f.refresh(ctx, sess, nil)
	if err == nil && strings.TrimSpace(secret) == "" {
		f.send(ctx, notification.Message{Kind: notification.KindWalletFunded, Address: summary.Address})
	}
	return summary, err
}

// SwitchWallet activates address.
func (f *Facade) SwitchWallet(ctx context.Context, address string) error {
	sess, err := f.current()
	if err != nil {
		return err
	}
	balance, err := sess.SwitchWallet(ctx, address)
	if err != nil {
		f.refresh(ctx, sess, nil)
		return err
	}
	f.refresh(ctx, sess, &balance)
	return nil
}

// RemoveWallet deletes address from the store.
func (f *Facade) RemoveWallet(ctx context.Context, address string) error {
	sess, err := f.current()
	if err != nil {
		return err
	}
	err = sess.RemoveWallet(ctx, address)
	f.refresh(ctx, sess, nil)
	return err
}

// SendPayment pays from the active wallet.
func (f *Facade) SendPayment(ctx context.Context, destination, amount string) (payments.Receipt, error) {
	sess, err := f.current()
	if err != nil {
		return payments.Receipt{}, err
	}
	receipt, err := sess.SendPayment(ctx, destination, amount)
	f.refresh(ctx, sess, nil)
	if err == nil {
		from, _ := sess.ActiveAddress()
		f.send(ctx, notification.Message{Kind: notification.KindPaymentSent, Address: from, Body: receipt.Hash})
	}
	return receipt, err
}

// SetupTrustline opens the token trust line for the active wallet.
func (f *Facade) SetupTrustline(ctx context.Context) (payments.Receipt, error) {
	sess, err := f.current()
	if err != nil {
		return payments.Receipt{}, err
	}
	receipt, err := sess.SetupTrustline(ctx)
	f.refresh(ctx, sess, nil)
	return receipt, err
}

// Balance queries the active wallet's balance.
func (f *Facade) Balance(ctx context.Context) (string, error) {
	sess, err := f.current()
	if err != nil {
		return "", err
	}
	return sess.Balance(ctx)
}

// History lists the active wallet's recent transactions.
func (f *Facade) History(ctx context.Context, limit int) ([]session.Transaction, error) {
	sess, err := f.current()
	if err != nil {
		return nil, err
	}
	return sess.History(ctx, limit)
}

// SecretKey reveals the seed stored for address.
func (f *Facade) SecretKey(ctx context.Context, address string) (string, error) {
	sess, err := f.current()
	if err != nil {
		return "", err
	}
	return sess.SecretKey(ctx, address)
}

// refresh re-derives state from sess and publishes it. A nil balance is
// queried from the ledger; failures leave it unset.
func (f *Facade) refresh(ctx context.Context, sess *session.Session, balance *string) {
	next := SessionState{Connected: sess.Status() == session.Connected}
	if address, ok := sess.ActiveAddress(); ok {
		next.ActiveAddress = &address
		if balance == nil && next.Connected {
			if b, err := sess.Balance(ctx); err == nil {
				balance = &b
			} else {
				f.logger.Debug("balance refresh failed", slog.String("address", address), slog.Any("error", err))
			}
		}
		if balance != nil {
			b := *balance
			next.Balance = &b
		}
	}
	f.publish(ctx, next)
}

func (f *Facade) publish(ctx context.Context, next SessionState) {
	f.mu.Lock()
	f.state = next
	for _, ch := range f.subs {
		select {
		case ch <- next:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- next:
			default:
			}
		}
	}
	f.mu.Unlock()

	address := ""
	if next.ActiveAddress != nil {
		address = *next.ActiveAddress
	}
	f.send(ctx, notification.Message{Kind: notification.KindSessionChanged, Address: address})
}

func (f *Facade) send(ctx context.Context, msg notification.Message) {
	if err := f.notifier.Send(ctx, msg); err != nil {
		f.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}
