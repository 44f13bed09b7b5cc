package httpapi

import (
	"context"
	"net/http"
	"time"

	"idle_engine/internal/model"
)

const stopTimeout = 30 * time.Second

func (s *Server) handleCardFarmingStart(w http.ResponseWriter, r *http.Request) {
	s.startTask(w, r, s.engine.StartCardFarming)
}

func (s *Server) handleCardFarmingStop(w http.ResponseWriter, r *http.Request) {
	s.stopTask(w, r, s.engine.StopCardFarming)
}

func (s *Server) handleUnlockerStart(w http.ResponseWriter, r *http.Request) {
	s.startTask(w, r, s.engine.StartAchievementUnlocker)
}

func (s *Server) handleUnlockerStop(w http.ResponseWriter, r *http.Request) {
	s.stopTask(w, r, s.engine.StopAchievementUnlocker)
}

func (s *Server) handleAutoIdleStart(w http.ResponseWriter, r *http.Request) {
	s.startTask(w, r, s.engine.StartAutoIdle)
}

func (s *Server) startTask(w http.ResponseWriter, r *http.Request, start func(context.Context) (string, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	runID, err := start(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"data": map[string]any{"runId": runID}})
}

func (s *Server) stopTask(w http.ResponseWriter, r *http.Request, stop func(context.Context) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), stopTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ok": true}})
}

func (s *Server) handleIdleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req model.Game
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if req.AppID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid appid"})
		return
	}
	if err := s.engine.StartManualIdle(r.Context(), req); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": req})
}

func (s *Server) handleIdleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AppID int64 `json:"appid"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if req.AppID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid appid"})
		return
	}
	if err := s.engine.StopManualIdle(r.Context(), req.AppID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ok": true}})
}
