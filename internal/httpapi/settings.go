package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"idle_engine/internal/model"
	"idle_engine/internal/notify"
	"idle_engine/internal/pacing"
)

const maskedSecret = "******"

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	steamID := s.engine.SteamID()
	switch r.Method {
	case http.MethodGet:
		v, err := s.store.GetUserSettings(r.Context(), steamID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": redactSettings(v)})
	case http.MethodPut:
		var req model.UserSettings
		if err := readJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if err := validateSettings(req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		saved, err := s.store.UpdateUserSettings(r.Context(), steamID, func(cur *model.UserSettings) {
			creds := cur.CardFarming.Credentials
			*cur = req
			// Credentials only change through the credentials endpoints.
			cur.CardFarming.Credentials = creds
			if cur.GameSettings == nil {
				cur.GameSettings = map[string]model.GameSettings{}
			}
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		if err := s.engine.SyncAntiAway(r.Context()); err != nil {
			s.bus.Log("warn", "anti-away sync failed", map[string]any{"error": err.Error()})
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": redactSettings(saved)})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func validateSettings(v model.UserSettings) error {
	if !v.CardFarming.NextTask.Valid() || !v.AchievementUnlocker.NextTask.Valid() {
		return errors.New("invalid nextTask")
	}
	if v.CardFarming.NextTask == model.NextTaskCardFarming {
		return errors.New("card farming cannot hand off to itself")
	}
	if v.AchievementUnlocker.NextTask == model.NextTaskAchievementUnlocker {
		return errors.New("achievement unlocker cannot hand off to itself")
	}
	iv := v.AchievementUnlocker.Interval
	if iv[0] < 0 || iv[1] < 0 || iv[0] > iv[1] {
		return errors.New("interval must be a non-negative [min, max] range")
	}
	if v.AchievementUnlocker.Schedule {
		if _, err := pacing.ParseWindow(v.AchievementUnlocker.ScheduleFrom, v.AchievementUnlocker.ScheduleTo); err != nil {
			return err
		}
	}
	if v.GlobalMaxIdleTime < 0 {
		return errors.New("globalMaxIdleTime must be >= 0")
	}
	for key, gs := range v.GameSettings {
		if _, err := strconv.ParseInt(key, 10, 64); err != nil {
			return errors.New("gameSettings keys must be app ids")
		}
		if err := validateGameSettings(gs); err != nil {
			return err
		}
	}
	return nil
}

func validateGameSettings(gs model.GameSettings) error {
	if gs.MaxCardDrops < 0 || gs.MaxAchievementUnlocks < 0 || gs.MaxIdleTime < 0 {
		return errors.New("game limits must be >= 0")
	}
	return nil
}

func redactSettings(v model.UserSettings) model.UserSettings {
	c := &v.CardFarming.Credentials
	if c.SID != "" {
		c.SID = maskedSecret
	}
	if c.SLS != "" {
		c.SLS = maskedSecret
	}
	if c.SMA != "" {
		c.SMA = maskedSecret
	}
	return v
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		var req model.SessionCredentials
		if err := readJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if err := s.engine.SetCredentials(r.Context(), req); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ok": true}})
	case http.MethodDelete:
		if err := s.engine.ClearCredentials(r.Context()); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ok": true}})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCredentialsHarvest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.engine.HarvestCredentials(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ok": true}})
}

func (s *Server) handleEmailSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		v, _, err := s.store.GetEmailSettings(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": maskEmail(v)})
	case http.MethodPut, http.MethodPost:
		var req struct {
			Enabled  *bool   `json:"enabled"`
			Email    *string `json:"email"`
			AuthCode *string `json:"authCode"`
		}
		if err := readJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		cur, _, err := s.store.GetEmailSettings(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		if req.Enabled != nil {
			cur.Enabled = *req.Enabled
		}
		if req.Email != nil {
			cur.Email = strings.TrimSpace(*req.Email)
		}
		if req.AuthCode != nil && *req.AuthCode != maskedSecret {
			cur.AuthCode = strings.TrimSpace(*req.AuthCode)
		}
		if cur.Enabled {
			if err := notify.ValidateEmailSettings(cur); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
				return
			}
		}
		saved, err := s.store.UpsertEmailSettings(r.Context(), cur)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": maskEmail(saved)})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func maskEmail(v model.EmailSettings) model.EmailSettings {
	if v.AuthCode != "" {
		v.AuthCode = maskedSecret
	}
	return v
}

func (s *Server) handleEmailTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	v, ok, err := s.store.GetEmailSettings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "email settings are not configured"})
		return
	}
	if err := notify.ValidateEmailSettings(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	evt := notify.AutomationEvent{
		AtMs:    time.Now().UnixMilli(),
		Kind:    notify.EventTaskComplete,
		Task:    "test",
		Message: "This is a test notification.",
	}
	if err := notify.SendSummaryEmail(ctx, s.cfg.Notify.SMTP, v, []notify.AutomationEvent{evt}); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ok": true}})
}

func (s *Server) handleGameSettings(w http.ResponseWriter, r *http.Request) {
	appID, err := parseAppID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	key := strconv.FormatInt(appID, 10)
	steamID := s.engine.SteamID()

	switch r.Method {
	case http.MethodGet:
		v, err := s.store.GetUserSettings(r.Context(), steamID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": v.Game(appID)})
	case http.MethodPut:
		var req model.GameSettings
		if err := readJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if err := validateGameSettings(req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		saved, err := s.store.UpdateUserSettings(r.Context(), steamID, func(cur *model.UserSettings) {
			if cur.GameSettings == nil {
				cur.GameSettings = map[string]model.GameSettings{}
			}
			cur.GameSettings[key] = req
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": saved.Game(appID)})
	case http.MethodDelete:
		if _, err := s.store.UpdateUserSettings(r.Context(), steamID, func(cur *model.UserSettings) {
			delete(cur.GameSettings, key)
		}); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ok": true}})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
