package provider

import (
	"context"
	"errors"

	"idle_engine/internal/model"
)

// AccountMismatchMarker is what the backend reports when the running Steam
// client is signed into a different account than the configured one.
const AccountMismatchMarker = "Failed to initialize Steam API"

var ErrAccountMismatch = errors.New("account mismatch between Steam and idle engine")

// Provider is the external automation backend. Calls are fallible and may be slow.
type Provider interface {
	Name() string

	IsSteamRunning(ctx context.Context) (bool, error)
	RunningProcesses(ctx context.Context) ([]model.IdleProcess, error)

	StartIdle(ctx context.Context, game model.Game) (bool, error)
	StopIdle(ctx context.Context, appID int64) error
	StartFarmIdle(ctx context.Context, games []model.Game) (bool, error)
	StopFarmIdle(ctx context.Context, games []model.Game) error

	GetDropsRemaining(ctx context.Context, steamID string, appID int64, creds model.SessionCredentials) (int, error)
	GetGamesWithDrops(ctx context.Context, steamID string, creds model.SessionCredentials) ([]model.GameDrops, error)
	ValidateSession(ctx context.Context, steamID string, creds model.SessionCredentials) (bool, error)

	GetAchievementData(ctx context.Context, steamID string, appID int64, refetch bool) (model.AchievementData, error)
	UnlockAchievement(ctx context.Context, steamID string, appID int64, achievementID string) error

	AntiAway(ctx context.Context) error
}
