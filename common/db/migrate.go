package db

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS stored_artifact (
		name        TEXT        NOT NULL,
		kind        TEXT        NOT NULL,
		mime_type   TEXT        NOT NULL,
		content     BYTEA       NOT NULL,
		size_bytes  BIGINT      NOT NULL,
		client_uid  TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (name, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS audio_override (
		track_id    TEXT        PRIMARY KEY,
		url         TEXT        NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the tables the service needs. Safe to run repeatedly.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	db.log.Info("database schema up to date", "migrations", len(migrations))
	return nil
}
