package ledger

import "github.com/shopspring/decimal"

// SeedAccount is a test helper that creates a funded account with a trust line
// balance when using the in-memory network.
func SeedAccount(n Network, address, currency, issuer, balance string) {
	if mem, ok := n.(*inMemoryNetwork); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		acct := mem.accountLocked(address)
		acct.funded = true
		if currency != "" {
			acct.lines[lineKey{currency: currency, issuer: issuer}] = decimal.RequireFromString(balance)
		}
	}
}

// AdvanceLedger is a test helper that moves the validated ledger index forward.
func AdvanceLedger(n Network, by uint32) {
	if mem, ok := n.(*inMemoryNetwork); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.ledgerIndex += by
	}
}

// AddressForSeed exposes the in-memory network's address derivation to tests.
func AddressForSeed(seed string) string {
	return addressForSeed(seed)
}
