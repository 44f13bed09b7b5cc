package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"idle_engine/internal/model"
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !model.ValidListName(name) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown list"})
		return
	}
	steamID := s.engine.SteamID()

	switch r.Method {
	case http.MethodGet:
		games, err := s.store.GetQueue(r.Context(), steamID, name)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": games})
	case http.MethodPut:
		var req []model.Game
		if err := readJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		for _, g := range req {
			if g.AppID <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid appid"})
				return
			}
		}
		if err := s.store.SetQueue(r.Context(), steamID, name, req); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		s.writeQueue(w, r, name)
	case http.MethodPost:
		var req model.Game
		if err := readJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if req.AppID <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid appid"})
			return
		}
		if err := s.store.AddToQueue(r.Context(), steamID, name, req); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		s.writeQueue(w, r, name)
	case http.MethodDelete:
		appID, err := parseAppID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if err := s.store.RemoveFromQueue(r.Context(), steamID, name, appID); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		s.writeQueue(w, r, name)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) writeQueue(w http.ResponseWriter, r *http.Request, name string) {
	games, err := s.store.GetQueue(r.Context(), s.engine.SteamID(), name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": games})
}

// handleAchievementOrder manages per-game unlock orders. Orders can be
// exchanged as YAML with ?format=yaml or a YAML content type.
func (s *Server) handleAchievementOrder(w http.ResponseWriter, r *http.Request) {
	appID, err := parseAppID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	steamID := s.engine.SteamID()
	asYAML := strings.EqualFold(r.URL.Query().Get("format"), "yaml")

	switch r.Method {
	case http.MethodGet:
		order, ok, err := s.store.GetUnlockOrder(r.Context(), steamID, appID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "no custom order"})
			return
		}
		if asYAML {
			writeYAML(w, order)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": order})
	case http.MethodPut:
		var req model.UnlockOrder
		if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
			err = readYAML(r, &req)
		} else {
			err = readJSON(r, &req)
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		req.AppID = appID
		if err := validateUnlockOrder(req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		saved, err := s.store.UpsertUnlockOrder(r.Context(), steamID, req)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		if asYAML {
			writeYAML(w, saved)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": saved})
	case http.MethodDelete:
		if err := s.store.DeleteUnlockOrder(r.Context(), steamID, appID); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ok": true}})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func validateUnlockOrder(o model.UnlockOrder) error {
	seen := make(map[string]bool, len(o.Achievements))
	for _, a := range o.Achievements {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return errors.New("achievement name is required")
		}
		if seen[name] {
			return errors.New("duplicate achievement " + name)
		}
		seen[name] = true
		if a.DelayNextUnlock < 0 {
			return errors.New("delayNextUnlock must be >= 0")
		}
	}
	return nil
}

func writeYAML(w http.ResponseWriter, v any) {
	out, err := yaml.Marshal(v)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func readYAML(r *http.Request, v any) error {
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return errors.New("request body is empty")
	}
	return yaml.Unmarshal(raw, v)
}
