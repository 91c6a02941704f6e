// Package store persists resolved addresses and raw provider snapshots.
// Predictions are never stored.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

type Store struct{ DB *sqlx.DB }

func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{DB: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		`CREATE TABLE IF NOT EXISTS addresses (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			property_key      TEXT NOT NULL,
			address_line1     TEXT NOT NULL,
			city              TEXT NOT NULL,
			state             TEXT NOT NULL,
			zip               TEXT NOT NULL,
			lat               DOUBLE PRECISION NOT NULL,
			lon               DOUBLE PRECISION NOT NULL,
			formatted_address TEXT,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_fetch_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_addresses_property_key ON addresses(property_key);`,
		`CREATE TABLE IF NOT EXISTS provider_raw_snapshots (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			address_id     UUID REFERENCES addresses(id) ON DELETE CASCADE,
			provider       TEXT NOT NULL,
			endpoint       TEXT NOT NULL,
			payload        JSONB NOT NULL,
			fetched_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			payload_sha256 TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_provider ON provider_raw_snapshots(provider, endpoint, fetched_at DESC);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_snapshots_address_sha ON provider_raw_snapshots(address_id, payload_sha256);`,
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

type UpsertInput struct {
	PropertyKey      string
	Address1         string
	City             string
	State            string
	Zip              string
	Lat              float64
	Lon              float64
	FormattedAddress sql.NullString
	// Raw snapshot
	Provider    string
	Endpoint    string
	PayloadJSON []byte
}

// PayloadSHA256 is the hex digest used to skip duplicate snapshots.
func PayloadSHA256(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// UpsertAddress writes the address row and its raw snapshot in one
// transaction and returns the address id. Identical payloads for the same
// address are stored once.
func (s *Store) UpsertAddress(ctx context.Context, in UpsertInput) (id string, err error) {
	if s.DB == nil {
		return "", errors.New("nil db")
	}
	if in.PropertyKey == "" {
		return "", errors.New("empty property key")
	}
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO addresses (property_key, address_line1, city, state, zip, lat, lon, formatted_address, last_fetch_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8, now())
		ON CONFLICT (property_key)
		DO UPDATE SET address_line1=EXCLUDED.address_line1, city=EXCLUDED.city, state=EXCLUDED.state, zip=EXCLUDED.zip,
			lat=EXCLUDED.lat, lon=EXCLUDED.lon, formatted_address=EXCLUDED.formatted_address, updated_at=now(), last_fetch_at=now()
		RETURNING id`,
		in.PropertyKey, in.Address1, in.City, in.State, in.Zip, in.Lat, in.Lon, in.FormattedAddress,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert address: %w", err)
	}

	if len(in.PayloadJSON) > 0 {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO provider_raw_snapshots (address_id, provider, endpoint, payload, payload_sha256)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (address_id, payload_sha256) DO NOTHING`,
			id, in.Provider, in.Endpoint, string(in.PayloadJSON), PayloadSHA256(in.PayloadJSON),
		); err != nil {
			return "", fmt.Errorf("insert snapshot: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}
