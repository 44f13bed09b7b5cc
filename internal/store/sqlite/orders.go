package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"idle_engine/internal/model"
)

// GetUnlockOrder returns the custom unlock order for a game. A missing order is not an error.
func (s *Store) GetUnlockOrder(ctx context.Context, steamID string, appID int64) (model.UnlockOrder, bool, error) {
	var (
		orderJSON string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT order_json, updated_at FROM achievement_orders WHERE steam_id = ? AND app_id = ?
	`, steamID, appID).Scan(&orderJSON, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.UnlockOrder{}, false, nil
		}
		return model.UnlockOrder{}, false, err
	}
	out := model.UnlockOrder{AppID: appID, UpdatedAtMs: updatedAt}
	if err := json.Unmarshal([]byte(orderJSON), &out.Achievements); err != nil {
		return model.UnlockOrder{}, false, fmt.Errorf("decode unlock order %d: %w", appID, err)
	}
	return out, true, nil
}

func (s *Store) UpsertUnlockOrder(ctx context.Context, steamID string, order model.UnlockOrder) (model.UnlockOrder, error) {
	if order.AppID <= 0 {
		return model.UnlockOrder{}, errors.New("appId is required")
	}
	seen := make(map[string]struct{}, len(order.Achievements))
	for _, a := range order.Achievements {
		if a.Name == "" {
			return model.UnlockOrder{}, errors.New("achievement name is required")
		}
		if _, dup := seen[a.Name]; dup {
			return model.UnlockOrder{}, fmt.Errorf("duplicate achievement %q", a.Name)
		}
		seen[a.Name] = struct{}{}
		if a.DelayNextUnlock < 0 {
			return model.UnlockOrder{}, fmt.Errorf("negative delay for %q", a.Name)
		}
	}
	if order.Achievements == nil {
		order.Achievements = []model.UnlockOrderEntry{}
	}
	b, err := json.Marshal(order.Achievements)
	if err != nil {
		return model.UnlockOrder{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO achievement_orders (steam_id, app_id, order_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(steam_id, app_id) DO UPDATE SET
			order_json = excluded.order_json,
			updated_at = excluded.updated_at
	`, steamID, order.AppID, string(b), time.Now().UnixMilli())
	if err != nil {
		return model.UnlockOrder{}, err
	}
	got, _, err := s.GetUnlockOrder(ctx, steamID, order.AppID)
	return got, err
}

func (s *Store) DeleteUnlockOrder(ctx context.Context, steamID string, appID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM achievement_orders WHERE steam_id = ? AND app_id = ?
	`, steamID, appID)
	return err
}
