package sqlite

import (
	"context"
	"fmt"
)

// migrations are applied in order; PRAGMA user_version records how many ran.
// Append new steps, never edit shipped ones.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS custom_lists (
			steam_id TEXT NOT NULL,
			list TEXT NOT NULL,
			app_id INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (steam_id, list, app_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_custom_lists_order ON custom_lists (steam_id, list, position)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value_json TEXT NOT NULL DEFAULT '{}',
			updated_at INTEGER NOT NULL
		)`,
	},
	{
		`CREATE TABLE IF NOT EXISTS achievement_orders (
			steam_id TEXT NOT NULL,
			app_id INTEGER NOT NULL,
			order_json TEXT NOT NULL DEFAULT '[]',
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (steam_id, app_id)
		)`,
	},
	{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			at_ms INTEGER NOT NULL,
			level TEXT NOT NULL,
			msg TEXT NOT NULL,
			fields_json TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_at ON events (at_ms)`,
	},
}

func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("migrate: read version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		for _, stmt := range migrations[i] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migrate step %d: %w", i+1, err)
			}
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
