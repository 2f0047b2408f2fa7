package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/renmo-pay/renmo/internal/ledger"
	"github.com/renmo-pay/renmo/internal/logging"
)

type scriptedNetwork struct {
	index       uint32
	submissions []ledger.Instruction
	failures    []error
}

func (n *scriptedNetwork) ValidatedLedgerIndex(_ context.Context) (uint32, error) {
	n.index += 3
	return n.index, nil
}

func (n *scriptedNetwork) SubmitAndWait(_ context.Context, _ string, ins ledger.Instruction) (ledger.SubmitResult, error) {
	n.submissions = append(n.submissions, ins)
	if i := len(n.submissions) - 1; i < len(n.failures) && n.failures[i] != nil {
		return ledger.SubmitResult{}, n.failures[i]
	}
	return ledger.SubmitResult{Hash: "ABC", Result: ledger.ResultSuccess}, nil
}

func expired() error {
	return &ledger.SubmitError{Kind: ledger.SubmitDeadlineExpired, Code: "tefMAX_LEDGER", Err: errors.New("expired")}
}

var testToken = Token{Currency: "USD", Issuer: "rIssuer"}

func TestPayBuildsTokenInstruction(t *testing.T) {
	n := &scriptedNetwork{}
	svc := NewService(n, testToken, 0, logging.Discard())

	receipt, err := svc.Pay(context.Background(), "rFrom", "sSeed", Intent{Destination: " rTo ", Amount: "1.50"})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if receipt.Attempts != 1 || receipt.Hash != "ABC" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	ins := n.submissions[0]
	if ins.Amount.Currency != "USD" || ins.Amount.Issuer != "rIssuer" || ins.Amount.Value != "1.5" {
		t.Fatalf("unexpected amount %+v", ins.Amount)
	}
	if ins.Destination != "rTo" || ins.Account != "rFrom" {
		t.Fatalf("unexpected addresses %+v", ins)
	}
	if ins.LastLedgerSequence != 3+DefaultLookahead {
		t.Fatalf("expected deadline %d, got %d", 3+DefaultLookahead, ins.LastLedgerSequence)
	}
}

func TestPayRetriesOnceOnDeadlineExpiry(t *testing.T) {
	n := &scriptedNetwork{failures: []error{expired()}}
	svc := NewService(n, testToken, 10, logging.Discard())

	receipt, err := svc.Pay(context.Background(), "rFrom", "sSeed", Intent{Destination: "rTo", Amount: "2"})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if receipt.Attempts != 2 || len(n.submissions) != 2 {
		t.Fatalf("expected two attempts, got %d", len(n.submissions))
	}
	if n.submissions[1].LastLedgerSequence <= n.submissions[0].LastLedgerSequence {
		t.Fatalf("expected a fresh deadline on retry: %d then %d",
			n.submissions[0].LastLedgerSequence, n.submissions[1].LastLedgerSequence)
	}
}

func TestPayGivesUpAfterSecondExpiry(t *testing.T) {
	n := &scriptedNetwork{failures: []error{expired(), expired(), expired()}}
	svc := NewService(n, testToken, 10, logging.Discard())

	_, err := svc.Pay(context.Background(), "rFrom", "sSeed", Intent{Destination: "rTo", Amount: "2"})
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected submission failed, got %v", err)
	}
	if !ledger.IsDeadlineExpired(err) {
		t.Fatalf("expected underlying deadline error to be preserved, got %v", err)
	}
	if len(n.submissions) != 2 {
		t.Fatalf("expected exactly two submissions, got %d", len(n.submissions))
	}
}

func TestPayDoesNotRetryRejections(t *testing.T) {
	rejected := &ledger.SubmitError{Kind: ledger.SubmitRejected, Code: "tecPATH_DRY", Err: errors.New("no path")}
	n := &scriptedNetwork{failures: []error{rejected}}
	svc := NewService(n, testToken, 10, logging.Discard())

	_, err := svc.Pay(context.Background(), "rFrom", "sSeed", Intent{Destination: "rTo", Amount: "2"})
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected submission failed, got %v", err)
	}
	if len(n.submissions) != 1 {
		t.Fatalf("expected a single submission, got %d", len(n.submissions))
	}
}

func TestIntentValidate(t *testing.T) {
	cases := []struct {
		intent Intent
		want   error
	}{
		{Intent{Destination: "rTo", Amount: "0"}, ErrInvalidAmount},
		{Intent{Destination: "rTo", Amount: "-1"}, ErrInvalidAmount},
		{Intent{Destination: "rTo", Amount: "abc"}, ErrInvalidAmount},
		{Intent{Destination: "", Amount: "1"}, ErrInvalidDestination},
		{Intent{Destination: "rTo", Amount: "0.000001"}, nil},
	}
	for _, tc := range cases {
		if _, err := tc.intent.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%+v: expected %v, got %v", tc.intent, tc.want, err)
		}
	}
}

func TestTrustSetsLimit(t *testing.T) {
	n := &scriptedNetwork{}
	svc := NewService(n, testToken, 10, logging.Discard())
	if _, err := svc.Trust(context.Background(), "rFrom", "sSeed"); err != nil {
		t.Fatalf("trust: %v", err)
	}
	ins := n.submissions[0]
	if ins.Type != ledger.TypeTrustSet || ins.Amount.Value != TrustLimit {
		t.Fatalf("unexpected trust instruction %+v", ins)
	}
}
