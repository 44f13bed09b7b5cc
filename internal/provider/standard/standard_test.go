package standard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"idle_engine/internal/config"
	"idle_engine/internal/model"
	"idle_engine/internal/provider"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *StandardProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(config.ProviderConfig{BaseURL: srv.URL, TimeoutMs: 2000}, nil)
}

func writeEnvelope(w http.ResponseWriter, status int, v map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGetAchievementDataMapsAccountMismatch(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/achievements/data" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   "Failed to initialize Steam API: wrong user",
		})
	})
	_, err := p.GetAchievementData(context.Background(), "76561198000000000", 440, true)
	if !errors.Is(err, provider.ErrAccountMismatch) {
		t.Fatalf("expected ErrAccountMismatch, got %v", err)
	}
}

func TestGetAchievementDataDecodesPayload(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body achievementReq
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.AppID != 440 || !body.Refetch || body.SteamID != "s1" {
			t.Errorf("unexpected request body %+v", body)
		}
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"achievements": []map[string]any{
					{"id": "ACH_1", "name": "First", "percent": 12.5, "achieved": false, "hidden": true},
					{"id": "ACH_2", "name": "Second", "percent": 80, "achieved": true, "protected_achievement": false},
				},
			},
		})
	})
	data, err := p.GetAchievementData(context.Background(), "s1", 440, true)
	if err != nil {
		t.Fatalf("GetAchievementData: %v", err)
	}
	if len(data.Achievements) != 2 || !data.Achievements[0].Hidden || data.Achievements[1].Percent != 80 {
		t.Fatalf("unexpected achievements %+v", data.Achievements)
	}
}

func TestStartFarmIdleSendsAllGames(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body farmReq
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Games) != 2 || body.Games[1].AppID != 730 {
			t.Errorf("unexpected farm request %+v", body)
		}
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"started": true}})
	})
	ok, err := p.StartFarmIdle(context.Background(), []model.Game{{AppID: 440, Name: "TF2"}, {AppID: 730, Name: "CS"}})
	if err != nil || !ok {
		t.Fatalf("StartFarmIdle = %v, %v", ok, err)
	}
}

func TestServerErrorSurfacesMessage(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusBadGateway, map[string]any{"success": false, "error": "steam unavailable"})
	})
	_, err := p.GetDropsRemaining(context.Background(), "s1", 440, model.SessionCredentials{SID: "a", SLS: "b"})
	if err == nil || err.Error() != "steam unavailable" {
		t.Fatalf("expected backend error, got %v", err)
	}
}
