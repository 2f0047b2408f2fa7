package notification

import (
	"context"
	"log/slog"
)

const (
	// KindSessionChanged is sent after any operation that changed session state.
	KindSessionChanged = "session_changed"
	// KindPaymentSent is sent after a validated payment.
	KindPaymentSent = "payment_sent"
	// KindWalletFunded is sent when a fresh wallet appears on the ledger.
	KindWalletFunded = "wallet_funded"
)

// Message describes a notification payload.
type Message struct {
	Kind    string
	Address string
	Body    string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "address", message.Address, "body", message.Body)
	return nil
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Send(context.Context, Message) error { return nil }
