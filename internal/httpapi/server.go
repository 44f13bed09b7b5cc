package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"idle_engine/internal/config"
	"idle_engine/internal/engine"
	"idle_engine/internal/logbus"
	"idle_engine/internal/store/sqlite"
	"idle_engine/internal/ws"
)

type Options struct {
	Cfg    config.Config
	Bus    *logbus.Bus
	Store  *sqlite.Store
	Engine *engine.Engine
}

type Server struct {
	cfg    config.Config
	bus    *logbus.Bus
	store  *sqlite.Store
	engine *engine.Engine
	ws     *ws.Handler
}

func New(opts Options) *Server {
	return &Server{
		cfg:    opts.Cfg,
		bus:    opts.Bus,
		store:  opts.Store,
		engine: opts.Engine,
		ws:     ws.NewHandler(opts.Bus, opts.Cfg.Server.Cors.AllowOrigins),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/ws", s.ws)

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/settings", s.handleSettings)
	api.HandleFunc("/api/v1/settings/credentials", s.handleCredentials)
	api.HandleFunc("/api/v1/settings/credentials/harvest", s.handleCredentialsHarvest)
	api.HandleFunc("/api/v1/settings/email", s.handleEmailSettings)
	api.HandleFunc("/api/v1/settings/email/test", s.handleEmailTest)
	api.HandleFunc("/api/v1/game-settings", s.handleGameSettings)
	api.HandleFunc("/api/v1/lists/{name}", s.handleList)
	api.HandleFunc("/api/v1/achievement-order", s.handleAchievementOrder)
	api.HandleFunc("/api/v1/card-farming/start", s.handleCardFarmingStart)
	api.HandleFunc("/api/v1/card-farming/stop", s.handleCardFarmingStop)
	api.HandleFunc("/api/v1/achievement-unlocker/start", s.handleUnlockerStart)
	api.HandleFunc("/api/v1/achievement-unlocker/stop", s.handleUnlockerStop)
	api.HandleFunc("/api/v1/auto-idle/start", s.handleAutoIdleStart)
	api.HandleFunc("/api/v1/idle/start", s.handleIdleStart)
	api.HandleFunc("/api/v1/idle/stop", s.handleIdleStop)
	api.HandleFunc("/api/v1/engine/state", s.handleEngineState)
	api.HandleFunc("/api/v1/events", s.handleEvents)

	mux.Handle("/api/", corsMiddleware(s.cfg.Server.Cors, api))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleEngineState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": s.engine.State(r.Context())})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit, err := parseInt(r.URL.Query().Get("limit"), 200)
	if err != nil || limit <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
		return
	}
	if limit > 1000 {
		limit = 1000
	}
	events, err := s.store.ListEvents(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": events})
}

// writeEngineError maps engine sentinel errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrTaskRunning),
		errors.Is(err, engine.ErrSteamNotRunning),
		errors.Is(err, engine.ErrAlreadyIdling),
		errors.Is(err, engine.ErrIdleLimit):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrMissingCredentials),
		errors.Is(err, engine.ErrOutdatedCredentials),
		errors.Is(err, engine.ErrEmptyFarmingList),
		errors.Is(err, engine.ErrEmptyUnlockerList):
		status = http.StatusPreconditionFailed
	case errors.Is(err, engine.ErrIdleNotStarted):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

func parseInt(v string, def int) (int, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	return strconv.Atoi(strings.TrimSpace(v))
}

func parseAppID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("appId"))
	if raw == "" {
		return 0, errors.New("appId is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid appId")
	}
	return id, nil
}
