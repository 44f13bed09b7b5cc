package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"idle_engine/internal/config"
	"idle_engine/internal/engine"
	"idle_engine/internal/logbus"
	"idle_engine/internal/model"
	"idle_engine/internal/store/sqlite"
)

type stubProvider struct {
	steamRunning bool
}

func (p *stubProvider) Name() string { return "stub" }
func (p *stubProvider) IsSteamRunning(context.Context) (bool, error) {
	return p.steamRunning, nil
}
func (p *stubProvider) RunningProcesses(context.Context) ([]model.IdleProcess, error) {
	return nil, nil
}
func (p *stubProvider) StartIdle(context.Context, model.Game) (bool, error) { return true, nil }
func (p *stubProvider) StopIdle(context.Context, int64) error { return nil }
func (p *stubProvider) StartFarmIdle(context.Context, []model.Game) (bool, error) { return true, nil }
func (p *stubProvider) StopFarmIdle(context.Context, []model.Game) error { return nil }
func (p *stubProvider) ValidateSession(context.Context, string, model.SessionCredentials) (bool, error) {
	return true, nil
}
func (p *stubProvider) GetDropsRemaining(context.Context, string, int64, model.SessionCredentials) (int, error) {
	return 0, nil
}
func (p *stubProvider) GetGamesWithDrops(context.Context, string, model.SessionCredentials) ([]model.GameDrops, error) {
	return nil, nil
}
func (p *stubProvider) GetAchievementData(context.Context, string, int64, bool) (model.AchievementData, error) {
	return model.AchievementData{}, nil
}
func (p *stubProvider) UnlockAchievement(context.Context, string, int64, string) error { return nil }
func (p *stubProvider) AntiAway(context.Context) error { return nil }

type testServer struct {
	handler  http.Handler
	store    *sqlite.Store
	provider *stubProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "idle.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	bus := logbus.New(100)
	p := &stubProvider{steamRunning: true}
	cfg := config.Config{
		Server: config.ServerConfig{Cors: config.CorsConfig{AllowOrigins: []string{"http://localhost:5173"}}},
		Steam:  config.SteamConfig{SteamID: "76561198000000000"},
	}
	eng := engine.New(engine.Options{
		Store:    st,
		Provider: p,
		Bus:      bus,
		Steam:    cfg.Steam,
	})
	t.Cleanup(func() {
		_ = eng.StopAll(context.Background())
		bus.Close()
		_ = st.Close()
	})
	srv := New(Options{Cfg: cfg, Bus: bus, Store: st, Engine: eng})
	return &testServer{handler: srv.Handler(), store: st, provider: p}
}

func (ts *testServer) do(t *testing.T, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	if env.Error != "" {
		t.Fatalf("unexpected error %q", env.Error)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSettingsRoundTripKeepsCredentials(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPut, "/api/v1/settings/credentials", "application/json", `{"sid":"abc","sls":"def"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set credentials: %d %s", rec.Code, rec.Body.String())
	}

	body := `{"general":{"antiAway":false},"cardFarming":{"allGames":false,"listGames":true,"nextTaskCheckbox":true,"nextTask":"autoIdle","credentials":{"sid":"","sls":""},"blacklist":[5],"autoRevalidate":false},` +
		`"achievementUnlocker":{"nextTaskCheckbox":false,"nextTask":"","idle":true,"hidden":true,"schedule":true,"scheduleFrom":"09:00","scheduleTo":"17:00","interval":[5,10]},` +
		`"gameSettings":{"440":{"maxCardDrops":2}},"globalMaxIdleTime":60}`
	rec = ts.do(t, http.MethodPut, "/api/v1/settings", "application/json", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("put settings: %d %s", rec.Code, rec.Body.String())
	}
	var got model.UserSettings
	decodeData(t, rec, &got)
	if got.CardFarming.Credentials.SID != maskedSecret || got.CardFarming.Credentials.SLS != maskedSecret {
		t.Fatalf("credentials should survive and be masked, got %+v", got.CardFarming.Credentials)
	}
	if got.CardFarming.NextTask != model.NextTaskAutoIdle || got.Game(440).MaxCardDrops != 2 {
		t.Fatalf("settings not applied: %+v", got)
	}

	stored, err := ts.store.GetUserSettings(context.Background(), "76561198000000000")
	if err != nil {
		t.Fatalf("GetUserSettings: %v", err)
	}
	if stored.CardFarming.Credentials.SID != "abc" {
		t.Fatalf("stored credentials changed: %+v", stored.CardFarming.Credentials)
	}
}

func TestSettingsRejectsInvalidPayloads(t *testing.T) {
	ts := newTestServer(t)
	cases := []string{
		`{"cardFarming":{"nextTask":"bogus"}}`,
		`{"cardFarming":{"nextTask":"cardFarming"}}`,
		`{"achievementUnlocker":{"interval":[10,5]}}`,
		`{"achievementUnlocker":{"schedule":true,"scheduleFrom":"25:00","scheduleTo":"10:00"}}`,
		`{"gameSettings":{"abc":{}}}`,
	}
	for _, body := range cases {
		rec := ts.do(t, http.MethodPut, "/api/v1/settings", "application/json", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestListEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/lists/"+model.ListCardFarming, "application/json", `{"appid":10,"name":"Ten"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add: %d %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodPost, "/api/v1/lists/"+model.ListCardFarming, "application/json", `{"appid":20,"name":"Twenty"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add: %d %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodDelete, "/api/v1/lists/"+model.ListCardFarming+"?appId=10", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("remove: %d %s", rec.Code, rec.Body.String())
	}
	var games []model.Game
	decodeData(t, rec, &games)
	if len(games) != 1 || games[0].AppID != 20 {
		t.Fatalf("unexpected queue %+v", games)
	}

	if rec := ts.do(t, http.MethodGet, "/api/v1/lists/nope", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown list: expected 404, got %d", rec.Code)
	}
}

func TestAchievementOrderYAML(t *testing.T) {
	ts := newTestServer(t)

	body := "achievements:\n  - name: First\n    skip: true\n  - name: Second\n    delayNextUnlock: 3\n"
	rec := ts.do(t, http.MethodPut, "/api/v1/achievement-order?appId=440", "application/yaml", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("put order: %d %s", rec.Code, rec.Body.String())
	}
	var saved model.UnlockOrder
	decodeData(t, rec, &saved)
	if saved.AppID != 440 || len(saved.Achievements) != 2 || saved.Achievements[1].DelayNextUnlock != 3 {
		t.Fatalf("unexpected saved order %+v", saved)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/achievement-order?appId=440&format=yaml", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get order: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "yaml") {
		t.Fatalf("expected yaml content type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "name: Second") {
		t.Fatalf("unexpected yaml body %q", rec.Body.String())
	}

	rec = ts.do(t, http.MethodPut, "/api/v1/achievement-order?appId=440", "application/json", `{"achievements":[{"name":"A"},{"name":"A"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate names: expected 400, got %d", rec.Code)
	}

	if rec := ts.do(t, http.MethodDelete, "/api/v1/achievement-order?appId=440", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete order: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/v1/achievement-order?appId=440", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted order: expected 404, got %d", rec.Code)
	}
}

func TestTaskStartMapsEngineErrors(t *testing.T) {
	ts := newTestServer(t)

	ts.provider.steamRunning = false
	if rec := ts.do(t, http.MethodPost, "/api/v1/card-farming/start", "", ""); rec.Code != http.StatusConflict {
		t.Fatalf("steam down: expected 409, got %d", rec.Code)
	}

	ts.provider.steamRunning = true
	if rec := ts.do(t, http.MethodPost, "/api/v1/achievement-unlocker/start", "", ""); rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("empty list: expected 412, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/v1/card-farming/start", "", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET start: expected 405, got %d", rec.Code)
	}
}

func TestEmailSettingsMasksAuthCode(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPut, "/api/v1/settings/email", "application/json", `{"enabled":true,"email":"me@qq.com","authCode":"secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put email: %d %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodPut, "/api/v1/settings/email", "application/json", `{"authCode":"******"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put masked: %d %s", rec.Code, rec.Body.String())
	}
	var got model.EmailSettings
	decodeData(t, rec, &got)
	if got.AuthCode != maskedSecret {
		t.Fatalf("auth code should be masked, got %q", got.AuthCode)
	}
	stored, _, err := ts.store.GetEmailSettings(context.Background())
	if err != nil {
		t.Fatalf("GetEmailSettings: %v", err)
	}
	if stored.AuthCode != "secret" {
		t.Fatalf("masked placeholder must not overwrite the code, got %q", stored.AuthCode)
	}
}

func TestCorsPreflight(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/settings", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/settings", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin should not be allowed, got %q", got)
	}
}
