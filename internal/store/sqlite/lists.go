package sqlite

import (
	"context"
	"fmt"
	"time"

	"idle_engine/internal/model"
)

func (s *Store) GetQueue(ctx context.Context, steamID, list string) ([]model.Game, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT app_id, name FROM custom_lists
		WHERE steam_id = ? AND list = ?
		ORDER BY position ASC
	`, steamID, list)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Game, 0)
	for rows.Next() {
		var g model.Game
		if err := rows.Scan(&g.AppID, &g.Name); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// SetQueue replaces the whole list. Duplicate app ids keep their first position.
func (s *Store) SetQueue(ctx context.Context, steamID, list string, games []model.Game) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM custom_lists WHERE steam_id = ? AND list = ?`, steamID, list); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	seen := make(map[int64]struct{}, len(games))
	pos := 0
	for _, g := range games {
		if g.AppID <= 0 {
			return fmt.Errorf("invalid appid %d", g.AppID)
		}
		if _, dup := seen[g.AppID]; dup {
			continue
		}
		seen[g.AppID] = struct{}{}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO custom_lists (steam_id, list, app_id, name, position, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, steamID, list, g.AppID, g.Name, pos, now); err != nil {
			return err
		}
		pos++
	}
	return tx.Commit()
}

// AddToQueue appends a game; adding a game that is already queued is a no-op.
func (s *Store) AddToQueue(ctx context.Context, steamID, list string, g model.Game) error {
	if g.AppID <= 0 {
		return fmt.Errorf("invalid appid %d", g.AppID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_lists (steam_id, list, app_id, name, position, updated_at)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM custom_lists WHERE steam_id = ? AND list = ?), ?)
		ON CONFLICT(steam_id, list, app_id) DO NOTHING
	`, steamID, list, g.AppID, g.Name, steamID, list, time.Now().UnixMilli())
	return err
}

// RemoveFromQueue deletes a game by app id. Removing an absent game is not an error.
func (s *Store) RemoveFromQueue(ctx context.Context, steamID, list string, appID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM custom_lists WHERE steam_id = ? AND list = ? AND app_id = ?
	`, steamID, list, appID)
	return err
}
