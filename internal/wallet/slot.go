package wallet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultSlotName is the key under which the wallet collection is persisted.
const DefaultSlotName = "renmo_wallets"

// Slot is a single named piece of durable storage holding the serialized
// wallet collection. Read returns nil when nothing has been written yet.
type Slot interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, payload []byte) error
	Clear(ctx context.Context) error
}

// MemorySlot keeps the payload in process memory. Useful for tests and the
// development profile.
type MemorySlot struct {
	mu      sync.RWMutex
	payload []byte
}

// NewMemorySlot builds an empty in-memory slot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (m *MemorySlot) Read(_ context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.payload == nil {
		return nil, nil
	}
	out := make([]byte, len(m.payload))
	copy(out, m.payload)
	return out, nil
}

func (m *MemorySlot) Write(_ context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = append([]byte(nil), payload...)
	return nil
}

func (m *MemorySlot) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = nil
	return nil
}

// FileSlot stores the payload in a single JSON file. Writes go to a
// temporary file in the same directory which is then renamed over the
// target, so readers never observe a partial write.
type FileSlot struct {
	path string
}

// NewFileSlot prepares a file slot, creating the parent directory.
func NewFileSlot(path string) (*FileSlot, error) {
	if path == "" {
		return nil, fmt.Errorf("wallet file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create wallet directory: %w", err)
	}
	return &FileSlot{path: path}, nil
}

func (f *FileSlot) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read wallet file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func (f *FileSlot) Write(_ context.Context, payload []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp wallet file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp wallet file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp wallet file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp wallet file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod wallet file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace wallet file: %w", err)
	}
	return nil
}

func (f *FileSlot) Clear(_ context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove wallet file: %w", err)
	}
	return nil
}
