package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps cart records in shop.cart_records.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value FROM shop.cart_records WHERE key = $1`

	var value string
	err := p.db.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: failed to select cart record %s: %w", key, err)
	}
	return value, true, nil
}

func (p *PostgresStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO shop.cart_records (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	if _, err := p.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("storage: failed to upsert cart record %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM shop.cart_records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("storage: failed to delete cart record %s: %w", key, err)
	}
	return nil
}
