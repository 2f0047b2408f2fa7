package wallet

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSlot stores the wallet collection as one row of wallet_slots.
type PostgresSlot struct {
	db   *pgxpool.Pool
	name string
}

// NewPostgresSlot builds a slot backed by PostgreSQL.
func NewPostgresSlot(db *pgxpool.Pool, name string) *PostgresSlot {
	if name == "" {
		name = DefaultSlotName
	}
	return &PostgresSlot{db: db, name: name}
}

// EnsureSchema creates the wallet_slots table when missing.
func (p *PostgresSlot) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS wallet_slots (
        name TEXT PRIMARY KEY,
        payload BYTEA NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`)
	return err
}

func (p *PostgresSlot) Read(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := p.db.QueryRow(ctx, `SELECT payload FROM wallet_slots WHERE name = $1`, p.name).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (p *PostgresSlot) Write(ctx context.Context, payload []byte) error {
	_, err := p.db.Exec(ctx, `INSERT INTO wallet_slots (name, payload, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`, p.name, payload)
	return err
}

func (p *PostgresSlot) Clear(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `DELETE FROM wallet_slots WHERE name = $1`, p.name)
	return err
}
