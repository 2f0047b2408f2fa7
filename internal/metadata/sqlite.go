package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const busyTimeoutMs = 5000

// SQLiteStore keeps metadata in a local SQLite database file.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("metadata db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create metadata directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", filepath.Clean(path)))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMs)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS account_metadata (
		address TEXT PRIMARY KEY,
		name TEXT,
		created_at TEXT,
		last_used TEXT
	)`)
	if err != nil {
		return fmt.Errorf("create account_metadata table: %w", err)
	}
	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, address string) (Account, bool, error) {
	var name, createdAt, lastUsed sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT name, created_at, last_used FROM account_metadata WHERE address = ?`, address).
		Scan(&name, &createdAt, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, fmt.Errorf("select metadata: %w", err)
	}
	return Account{
		Name:      name.String,
		Address:   address,
		CreatedAt: parseTime(createdAt.String),
		LastUsed:  parseTime(lastUsed.String),
	}, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, address string, acct Account) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO account_metadata (address, name, created_at, last_used)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = excluded.name,
			created_at = excluded.created_at,
			last_used = excluded.last_used`,
		address, acct.Name, formatTime(acct.CreatedAt), formatTime(acct.LastUsed))
	if err != nil {
		return fmt.Errorf("upsert metadata: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, address string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mergeUpdate(ctx, s, address, patch)
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
