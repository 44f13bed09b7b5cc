package standard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"idle_engine/internal/config"
	"idle_engine/internal/logbus"
	"idle_engine/internal/model"
	"idle_engine/internal/provider"
)

// StandardProvider talks to the local automation helper over its JSON API.
type StandardProvider struct {
	cfg    config.ProviderConfig
	bus    *logbus.Bus
	client *resty.Client
}

func New(cfg config.ProviderConfig, bus *logbus.Bus) *StandardProvider {
	p := &StandardProvider{cfg: cfg, bus: bus}
	p.client = p.newClient()
	return p
}

func (p *StandardProvider) Name() string { return "standard" }

type apiEnvelope[T any] struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

type gameReq struct {
	AppID int64  `json:"appid"`
	Name  string `json:"name,omitempty"`
}

type farmReq struct {
	Games []gameReq `json:"games"`
}

type sessionReq struct {
	SteamID string `json:"steamId"`
	AppID   int64  `json:"appid,omitempty"`
	SID     string `json:"sid"`
	SLS     string `json:"sls"`
	SMA     string `json:"sma,omitempty"`
}

type achievementReq struct {
	SteamID       string `json:"steamId"`
	AppID         int64  `json:"appid"`
	Refetch       bool   `json:"refetch,omitempty"`
	AchievementID string `json:"achievementId,omitempty"`
}

type startedResp struct {
	Started bool `json:"started"`
}

func (p *StandardProvider) IsSteamRunning(ctx context.Context) (bool, error) {
	out, err := do[struct {
		Running bool `json:"running"`
	}](ctx, p, http.MethodGet, "/steam/status", nil)
	if err != nil {
		return false, err
	}
	return out.Running, nil
}

func (p *StandardProvider) RunningProcesses(ctx context.Context) ([]model.IdleProcess, error) {
	return do[[]model.IdleProcess](ctx, p, http.MethodGet, "/idle/processes", nil)
}

func (p *StandardProvider) StartIdle(ctx context.Context, game model.Game) (bool, error) {
	out, err := do[startedResp](ctx, p, http.MethodPost, "/idle/start", gameReq{AppID: game.AppID, Name: game.Name})
	if err != nil {
		return false, err
	}
	return out.Started, nil
}

func (p *StandardProvider) StopIdle(ctx context.Context, appID int64) error {
	_, err := do[struct{}](ctx, p, http.MethodPost, "/idle/stop", gameReq{AppID: appID})
	return err
}

func (p *StandardProvider) StartFarmIdle(ctx context.Context, games []model.Game) (bool, error) {
	out, err := do[startedResp](ctx, p, http.MethodPost, "/idle/farm/start", toFarmReq(games))
	if err != nil {
		return false, err
	}
	return out.Started, nil
}

func (p *StandardProvider) StopFarmIdle(ctx context.Context, games []model.Game) error {
	_, err := do[struct{}](ctx, p, http.MethodPost, "/idle/farm/stop", toFarmReq(games))
	return err
}

func (p *StandardProvider) GetDropsRemaining(ctx context.Context, steamID string, appID int64, creds model.SessionCredentials) (int, error) {
	req := newSessionReq(steamID, creds)
	req.AppID = appID
	out, err := do[struct {
		Remaining int `json:"remaining"`
	}](ctx, p, http.MethodPost, "/drops/remaining", req)
	if err != nil {
		return 0, err
	}
	return out.Remaining, nil
}

func (p *StandardProvider) GetGamesWithDrops(ctx context.Context, steamID string, creds model.SessionCredentials) ([]model.GameDrops, error) {
	return do[[]model.GameDrops](ctx, p, http.MethodPost, "/drops/games", newSessionReq(steamID, creds))
}

func (p *StandardProvider) ValidateSession(ctx context.Context, steamID string, creds model.SessionCredentials) (bool, error) {
	out, err := do[struct {
		Valid bool `json:"valid"`
	}](ctx, p, http.MethodPost, "/session/validate", newSessionReq(steamID, creds))
	if err != nil {
		return false, err
	}
	return out.Valid, nil
}

func (p *StandardProvider) GetAchievementData(ctx context.Context, steamID string, appID int64, refetch bool) (model.AchievementData, error) {
	out, err := do[model.AchievementData](ctx, p, http.MethodPost, "/achievements/data", achievementReq{
		SteamID: steamID,
		AppID:   appID,
		Refetch: refetch,
	})
	if err != nil {
		if strings.Contains(err.Error(), provider.AccountMismatchMarker) {
			return model.AchievementData{}, fmt.Errorf("%w: %s", provider.ErrAccountMismatch, err.Error())
		}
		return model.AchievementData{}, err
	}
	return out, nil
}

func (p *StandardProvider) UnlockAchievement(ctx context.Context, steamID string, appID int64, achievementID string) error {
	_, err := do[struct{}](ctx, p, http.MethodPost, "/achievements/unlock", achievementReq{
		SteamID:       steamID,
		AppID:         appID,
		AchievementID: achievementID,
	})
	return err
}

func (p *StandardProvider) AntiAway(ctx context.Context) error {
	_, err := do[struct{}](ctx, p, http.MethodPost, "/anti-away", nil)
	return err
}

func do[T any](ctx context.Context, p *StandardProvider, method, path string, body any) (T, error) {
	var zero T
	var env apiEnvelope[T]
	req := p.client.R().
		SetContext(ctx).
		SetResult(&env).
		SetError(&env)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return zero, err
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = fmt.Sprintf("%s %s failed with status %d", method, path, resp.StatusCode())
		}
		return zero, errors.New(msg)
	}
	return env.Data, nil
}

func toFarmReq(games []model.Game) farmReq {
	out := farmReq{Games: make([]gameReq, 0, len(games))}
	for _, g := range games {
		out.Games = append(out.Games, gameReq{AppID: g.AppID, Name: g.Name})
	}
	return out
}

func newSessionReq(steamID string, creds model.SessionCredentials) sessionReq {
	return sessionReq{SteamID: steamID, SID: creds.SID, SLS: creds.SLS, SMA: creds.SMA}
}

func (p *StandardProvider) newClient() *resty.Client {
	client := resty.New().
		SetBaseURL(p.cfg.BaseURL).
		SetTimeout(p.cfg.Timeout()).
		SetRetryCount(p.cfg.Retry.Count).
		SetRetryWaitTime(p.cfg.Retry.Wait()).
		SetRetryMaxWaitTime(p.cfg.Retry.MaxWait()).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			if r == nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	if p.cfg.Token != "" {
		client.SetHeader("Authorization", "Bearer "+p.cfg.Token)
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if p.bus != nil {
			p.bus.Log("debug", "backend request", map[string]any{
				"method": req.Method,
				"url":    req.URL,
			})
		}
		return nil
	})
	return client
}
