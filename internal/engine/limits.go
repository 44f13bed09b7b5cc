package engine

import (
	"context"

	"golang.org/x/time/rate"

	"idle_engine/internal/config"
	"idle_engine/internal/model"
	"idle_engine/internal/provider"
)

// limitedProvider paces every backend call through one engine-wide limiter.
type limitedProvider struct {
	next    provider.Provider
	limiter *rate.Limiter
}

func newLimitedProvider(p provider.Provider, limits config.LimitsConfig) *limitedProvider {
	qps := rate.Inf
	if limits.BackendQPS > 0 {
		qps = rate.Limit(limits.BackendQPS)
	}
	burst := limits.BackendBurst
	if burst <= 0 {
		burst = 10
	}
	return &limitedProvider{next: p, limiter: rate.NewLimiter(qps, burst)}
}

func (p *limitedProvider) Name() string { return p.next.Name() }

func (p *limitedProvider) IsSteamRunning(ctx context.Context) (bool, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return false, err
	}
	return p.next.IsSteamRunning(ctx)
}

func (p *limitedProvider) RunningProcesses(ctx context.Context) ([]model.IdleProcess, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.next.RunningProcesses(ctx)
}

func (p *limitedProvider) StartIdle(ctx context.Context, game model.Game) (bool, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return false, err
	}
	return p.next.StartIdle(ctx, game)
}

func (p *limitedProvider) StopIdle(ctx context.Context, appID int64) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return p.next.StopIdle(ctx, appID)
}

func (p *limitedProvider) StartFarmIdle(ctx context.Context, games []model.Game) (bool, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return false, err
	}
	return p.next.StartFarmIdle(ctx, games)
}

func (p *limitedProvider) StopFarmIdle(ctx context.Context, games []model.Game) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return p.next.StopFarmIdle(ctx, games)
}

func (p *limitedProvider) GetDropsRemaining(ctx context.Context, steamID string, appID int64, creds model.SessionCredentials) (int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return p.next.GetDropsRemaining(ctx, steamID, appID, creds)
}

func (p *limitedProvider) GetGamesWithDrops(ctx context.Context, steamID string, creds model.SessionCredentials) ([]model.GameDrops, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.next.GetGamesWithDrops(ctx, steamID, creds)
}

func (p *limitedProvider) ValidateSession(ctx context.Context, steamID string, creds model.SessionCredentials) (bool, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return false, err
	}
	return p.next.ValidateSession(ctx, steamID, creds)
}

func (p *limitedProvider) GetAchievementData(ctx context.Context, steamID string, appID int64, refetch bool) (model.AchievementData, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return model.AchievementData{}, err
	}
	return p.next.GetAchievementData(ctx, steamID, appID, refetch)
}

func (p *limitedProvider) UnlockAchievement(ctx context.Context, steamID string, appID int64, achievementID string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return p.next.UnlockAchievement(ctx, steamID, appID, achievementID)
}

func (p *limitedProvider) AntiAway(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return p.next.AntiAway(ctx)
}
