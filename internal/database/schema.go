package database

import (
	"context"
	"fmt"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS assets (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    ticker VARCHAR(32) NOT NULL UNIQUE,
    provider VARCHAR(32) NOT NULL,
    class VARCHAR(16) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ledger_movements (
    id BIGSERIAL PRIMARY KEY,
    asset_id BIGINT NOT NULL REFERENCES assets (id),
    quantity NUMERIC(38,18) NOT NULL,
    moved_at TIMESTAMP WITH TIME ZONE NOT NULL,
    source VARCHAR(16) NOT NULL DEFAULT 'import'
);

CREATE INDEX IF NOT EXISTS ledger_movements_asset_idx ON ledger_movements (asset_id);

CREATE TABLE IF NOT EXISTS price_observations (
    id BIGSERIAL PRIMARY KEY,
    asset_id BIGINT NOT NULL REFERENCES assets (id),
    price NUMERIC(38,18) NOT NULL CHECK (price >= 0),
    observed_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS price_observations_latest_idx ON price_observations (asset_id, observed_at DESC, id DESC);
`

// quantities and prices are TEXT so SQLite keeps the exact decimal string
const sqliteSchema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS assets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    ticker TEXT NOT NULL UNIQUE,
    provider TEXT NOT NULL,
    class TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_movements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    asset_id INTEGER NOT NULL REFERENCES assets (id),
    quantity TEXT NOT NULL,
    moved_at TIMESTAMP NOT NULL,
    source TEXT NOT NULL DEFAULT 'import'
);

CREATE INDEX IF NOT EXISTS ledger_movements_asset_idx ON ledger_movements (asset_id);

CREATE TABLE IF NOT EXISTS price_observations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    asset_id INTEGER NOT NULL REFERENCES assets (id),
    price TEXT NOT NULL,
    observed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS price_observations_latest_idx ON price_observations (asset_id, observed_at, id);
`

func (r *Repo) EnsureSchema(ctx context.Context) error {
	schema := postgresSchema
	if r.db.DriverName() == DriverSQLite {
		schema = sqliteSchema
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	r.log.Debugf("schema ready on %s store", r.db.DriverName())
	return nil
}
