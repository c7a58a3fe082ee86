package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		creator_id TEXT NOT NULL,
		creator_name TEXT NOT NULL DEFAULT '',
		creator_phone TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		emergency_type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		assigned_responder_id TEXT NOT NULL DEFAULT '',
		traffic_id TEXT NOT NULL DEFAULT '',
		route_path JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS alerts_responder_status_idx
		ON alerts (assigned_responder_id, status)`,
	`CREATE TABLE IF NOT EXISTS emergency_validation (
		alert_id TEXT NOT NULL,
		voter_id TEXT NOT NULL,
		vote BOOLEAN NOT NULL,
		PRIMARY KEY (alert_id, voter_id)
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		endpoint TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		p256dh TEXT NOT NULL,
		auth TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS subscriptions_user_idx ON subscriptions (user_id)`,
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}
