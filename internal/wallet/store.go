package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Store persists the wallet collection to a single Slot. Every mutation
// rewrites the whole collection. Address uniqueness is the caller's concern.
type Store struct {
	mu     sync.Mutex
	slot   Slot
	sealer Sealer
	logger *slog.Logger
}

// NewStore builds a wallet store. sealer may be nil.
func NewStore(slot Slot, sealer Sealer, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{slot: slot, sealer: sealer, logger: logger}
}

// Load reads the persisted collection. A missing slot yields an empty
// collection; an undecodable payload is discarded and also yields an empty
// collection. A sealed payload that cannot be opened with the configured
// passphrase (or without one) is an error and stays in the slot.
func (s *Store) Load(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// Save overwrites the persisted collection.
func (s *Store) Save(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, records)
}

// Add appends a record and persists the collection.
func (s *Store) Add(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	return s.saveLocked(ctx, append(records, record))
}

// Remove drops the record with the given address and persists the
// collection. It reports whether a record was removed.
func (s *Store) Remove(ctx context.Context, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.loadLocked(ctx)
	if err != nil {
		return false, err
	}
	kept := records[:0]
	removed := false
	for _, r := range records {
		if r.Address == address {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	if !removed {
		return false, nil
	}
	return true, s.saveLocked(ctx, kept)
}

// Find returns the record with the given address.
func (s *Store) Find(ctx context.Context, address string) (Record, bool, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return Record{}, false, err
	}
	for _, r := range records {
		if r.Address == address {
			return r, true, nil
		}
	}
	return Record{}, false, nil
}

// List returns the stored wallets without their seeds.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, len(records))
	for i, r := range records {
		out[i] = r.Summary()
	}
	return out, nil
}

// Rename sets the display name of an existing record.
func (s *Store) Rename(ctx context.Context, address, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].Address == address {
			if records[i].Name == name {
				return nil
			}
			records[i].Name = name
			return s.saveLocked(ctx, records)
		}
	}
	return nil
}

func (s *Store) loadLocked(ctx context.Context) ([]Record, error) {
	payload, err := s.slot.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read wallet slot: %w", err)
	}
	if len(payload) == 0 {
		return []Record{}, nil
	}

	if s.sealer == nil && isSealed(payload) {
		return nil, ErrPassphraseRequired
	}
	if s.sealer != nil {
		plain, err := s.sealer.Open(payload)
		switch {
		case err == nil:
			payload = plain
		case errors.Is(err, errNotSealed):
			// plaintext from before sealing was enabled; sealed on next save
		case errors.Is(err, ErrWrongPassphrase):
			// intact payload under another key; leave it in place
			return nil, err
		default:
			return s.discardLocked(ctx, err)
		}
	}

	var records []Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return s.discardLocked(ctx, err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func (s *Store) discardLocked(ctx context.Context, cause error) ([]Record, error) {
	s.logger.Warn("discarding unreadable wallet collection", slog.Any("error", cause))
	if err := s.slot.Clear(ctx); err != nil {
		s.logger.Error("clear wallet slot", slog.Any("error", err))
	}
	return []Record{}, nil
}

func (s *Store) saveLocked(ctx context.Context, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode wallets: %w", err)
	}
	if s.sealer != nil {
		if payload, err = s.sealer.Seal(payload); err != nil {
			return err
		}
	}
	if err := s.slot.Write(ctx, payload); err != nil {
		return fmt.Errorf("write wallet slot: %w", err)
	}
	return nil
}
