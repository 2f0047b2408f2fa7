package metadata

import (
	"context"
	"sync"
)

// MemoryStore keeps metadata in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryStore builds an empty in-memory collaborator.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]Account)}
}

func (m *MemoryStore) Get(_ context.Context, address string) (Account, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.accounts[address]
	return acct, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, address string, acct Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct.Address = address
	m.accounts[address] = acct
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, address string, patch Patch) error {
	return mergeUpdate(ctx, m, address, patch)
}
