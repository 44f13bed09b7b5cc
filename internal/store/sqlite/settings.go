package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"idle_engine/internal/model"
)

const emailSettingsKey = "email_settings"

func userSettingsKey(steamID string) string {
	return "user_settings:" + steamID
}

// getSetting decodes the stored value into out. Missing keys leave out untouched.
func (s *Store) getSetting(ctx context.Context, key string, out any) (bool, error) {
	var valueJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT value_json FROM settings WHERE key = ?
	`, key).Scan(&valueJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(valueJSON), out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) upsertSetting(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`, key, string(b), time.Now().UnixMilli())
	return err
}

// GetUserSettings returns the stored settings layered over the defaults.
func (s *Store) GetUserSettings(ctx context.Context, steamID string) (model.UserSettings, error) {
	out := model.DefaultUserSettings()
	if _, err := s.getSetting(ctx, userSettingsKey(steamID), &out); err != nil {
		return model.UserSettings{}, err
	}
	if out.GameSettings == nil {
		out.GameSettings = map[string]model.GameSettings{}
	}
	if out.CardFarming.Blacklist == nil {
		out.CardFarming.Blacklist = []int64{}
	}
	return out, nil
}

func (s *Store) UpsertUserSettings(ctx context.Context, steamID string, v model.UserSettings) (model.UserSettings, error) {
	if err := s.upsertSetting(ctx, userSettingsKey(steamID), v); err != nil {
		return model.UserSettings{}, err
	}
	return s.GetUserSettings(ctx, steamID)
}

// UpdateUserSettings applies fn to the current settings and stores the result.
func (s *Store) UpdateUserSettings(ctx context.Context, steamID string, fn func(*model.UserSettings)) (model.UserSettings, error) {
	cur, err := s.GetUserSettings(ctx, steamID)
	if err != nil {
		return model.UserSettings{}, err
	}
	fn(&cur)
	return s.UpsertUserSettings(ctx, steamID, cur)
}

func (s *Store) GetEmailSettings(ctx context.Context) (model.EmailSettings, bool, error) {
	var out model.EmailSettings
	ok, err := s.getSetting(ctx, emailSettingsKey, &out)
	if err != nil {
		return model.EmailSettings{}, false, err
	}
	return out, ok, nil
}

func (s *Store) UpsertEmailSettings(ctx context.Context, v model.EmailSettings) (model.EmailSettings, error) {
	if err := s.upsertSetting(ctx, emailSettingsKey, v); err != nil {
		return model.EmailSettings{}, err
	}
	return v, nil
}
