package ledger

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	seedAlphabet   = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"
	seedBodyLength = 28
	faucetDrops    = "100000000"
)

type lineKey struct {
	currency string
	issuer   string
}

type simAccount struct {
	funded   bool
	sequence uint32
	native   decimal.Decimal
	lines    map[lineKey]decimal.Decimal
	history  []Transaction
}

type inMemoryNetwork struct {
	mu           sync.Mutex
	connected    bool
	ledgerIndex  uint32
	accounts     map[string]*simAccount
	fundingDelay map[string]int
	probeDelay   int
	txCount      int
}

// NewInMemory creates a concurrency-safe simulated ledger network useful for
// development and unit tests. Funded accounts become visible after
// probeDelay AccountExists calls.
func NewInMemory(probeDelay int) Network {
	return &inMemoryNetwork{
		ledgerIndex:  1,
		accounts:     make(map[string]*simAccount),
		fundingDelay: make(map[string]int),
		probeDelay:   probeDelay,
	}
}

func (n *inMemoryNetwork) Connect(_ context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected = true
	return nil
}

func (n *inMemoryNetwork) Disconnect(_ context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected = false
	return nil
}

func (n *inMemoryNetwork) GenerateWallet(ctx context.Context) (Credential, error) {
	var b strings.Builder
	b.WriteByte('s')
	max := big.NewInt(int64(len(seedAlphabet)))
	for i := 0; i < seedBodyLength; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return Credential{}, err
		}
		b.WriteByte(seedAlphabet[idx.Int64()])
	}
	return n.DeriveWallet(ctx, b.String())
}

func (n *inMemoryNetwork) DeriveWallet(_ context.Context, seed string) (Credential, error) {
	if len(seed) != seedBodyLength+1 || seed[0] != 's' {
		return Credential{}, ErrInvalidSeed
	}
	for _, r := range seed[1:] {
		if !strings.ContainsRune(seedAlphabet, r) {
			return Credential{}, ErrInvalidSeed
		}
	}
	return Credential{Seed: seed, Address: addressForSeed(seed)}, nil
}

func (n *inMemoryNetwork) Fund(_ context.Context, address string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.connected {
		return ErrNotConnected
	}
	acct := n.accountLocked(address)
	acct.native = acct.native.Add(decimal.RequireFromString(faucetDrops))
	n.fundingDelay[address] = n.probeDelay
	return nil
}

func (n *inMemoryNetwork) AccountExists(_ context.Context, address string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.connected {
		return false, ErrNotConnected
	}
	acct, ok := n.accounts[address]
	if !ok {
		return false, nil
	}
	if acct.funded {
		return true, nil
	}
	if remaining, pending := n.fundingDelay[address]; pending {
		if remaining > 0 {
			n.fundingDelay[address] = remaining - 1
			return false, nil
		}
		delete(n.fundingDelay, address)
		acct.funded = true
		return true, nil
	}
	return false, nil
}

func (n *inMemoryNetwork) ValidatedLedgerIndex(_ context.Context) (uint32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.connected {
		return 0, ErrNotConnected
	}
	return n.ledgerIndex, nil
}

func (n *inMemoryNetwork) TrustLines(_ context.Context, address string) ([]TrustLine, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.connected {
		return nil, ErrNotConnected
	}
	acct, ok := n.accounts[address]
	if !ok || !acct.funded {
		return nil, ErrAccountNotFound
	}
	lines := make([]TrustLine, 0, len(acct.lines))
	for key, balance := range acct.lines {
		lines = append(lines, TrustLine{
			Account:  key.issuer,
			Balance:  balance.String(),
			Currency: key.currency,
			Limit:    "1000000000",
		})
	}
	return lines, nil
}

func (n *inMemoryNetwork) Transactions(_ context.Context, address string, limit int) ([]Transaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.connected {
		return nil, ErrNotConnected
	}
	acct, ok := n.accounts[address]
	if !ok || !acct.funded {
		return nil, ErrAccountNotFound
	}
	out := make([]Transaction, 0, min(limit, len(acct.history)))
	for i := len(acct.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, acct.history[i])
	}
	return out, nil
}

func (n *inMemoryNetwork) SubmitAndWait(_ context.Context, seed string, ins Instruction) (SubmitResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.connected {
		return SubmitResult{}, &SubmitError{Kind: SubmitTransport, Err: ErrNotConnected}
	}
	if addressForSeed(seed) != ins.Account {
		return SubmitResult{}, &SubmitError{Kind: SubmitRejected, Code: "temBAD_SIGNATURE", Err: fmt.Errorf("seed does not match account %s", ins.Account)}
	}
	sender, ok := n.accounts[ins.Account]
	if !ok || !sender.funded {
		return SubmitResult{}, &SubmitError{Kind: SubmitRejected, Code: "terNO_ACCOUNT", Err: ErrAccountNotFound}
	}

	n.ledgerIndex++
	if ins.LastLedgerSequence != 0 && n.ledgerIndex > ins.LastLedgerSequence {
		return SubmitResult{}, &SubmitError{Kind: SubmitDeadlineExpired, Code: "tefMAX_LEDGER", Err: fmt.Errorf("ledger %d past LastLedgerSequence %d", n.ledgerIndex, ins.LastLedgerSequence)}
	}

	code, err := n.applyLocked(sender, ins)
	if err != nil {
		return SubmitResult{}, &SubmitError{Kind: SubmitRejected, Code: code, Err: err}
	}

	n.txCount++
	sender.sequence++
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", ins.Account, sender.sequence, n.txCount)))
	tx := Transaction{
		Hash:        strings.ToUpper(hex.EncodeToString(sum[:])),
		Type:        ins.Type,
		Amount:      ins.Amount,
		Destination: ins.Destination,
		Date:        time.Now().UTC(),
		Result:      ResultSuccess,
	}
	sender.history = append(sender.history, tx)
	if ins.Type == TypePayment {
		if dest, ok := n.accounts[ins.Destination]; ok {
			dest.history = append(dest.history, tx)
		}
	}
	return SubmitResult{Hash: tx.Hash, Result: ResultSuccess, LedgerIndex: n.ledgerIndex}, nil
}

func (n *inMemoryNetwork) applyLocked(sender *simAccount, ins Instruction) (string, error) {
	value, err := decimal.NewFromString(ins.Amount.Value)
	if err != nil || !value.IsPositive() {
		return "temBAD_AMOUNT", fmt.Errorf("bad amount %q", ins.Amount.Value)
	}
	key := lineKey{currency: ins.Amount.Currency, issuer: ins.Amount.Issuer}

	switch ins.Type {
	case TypeTrustSet:
		if _, exists := sender.lines[key]; !exists {
			sender.lines[key] = decimal.Zero
		}
		return "", nil
	case TypePayment:
		dest, ok := n.accounts[ins.Destination]
		if !ok || !dest.funded {
			return "tecNO_DST", fmt.Errorf("destination %s not found", ins.Destination)
		}
		if ins.Amount.Native() {
			if sender.native.LessThan(value) {
				return "tecUNFUNDED_PAYMENT", fmt.Errorf("insufficient native balance")
			}
			sender.native = sender.native.Sub(value)
			dest.native = dest.native.Add(value)
			return "", nil
		}
		destBalance, trusted := dest.lines[key]
		if !trusted {
			return "tecPATH_DRY", fmt.Errorf("destination has no %s trust line", key.currency)
		}
		if ins.Account == key.issuer {
			dest.lines[key] = destBalance.Add(value)
			return "", nil
		}
		senderBalance, held := sender.lines[key]
		if !held || senderBalance.LessThan(value) {
			return "tecPATH_PARTIAL", fmt.Errorf("insufficient %s balance", key.currency)
		}
		sender.lines[key] = senderBalance.Sub(value)
		dest.lines[key] = destBalance.Add(value)
		return "", nil
	default:
		return "temUNKNOWN", fmt.Errorf("unsupported transaction type %s", ins.Type)
	}
}

func (n *inMemoryNetwork) accountLocked(address string) *simAccount {
	acct, ok := n.accounts[address]
	if !ok {
		acct = &simAccount{native: decimal.Zero, lines: make(map[lineKey]decimal.Decimal)}
		n.accounts[address] = acct
	}
	return acct
}

func addressForSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return "r" + hex.EncodeToString(sum[:])[:33]
}
