package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"idle_engine/internal/model"
)

const (
	autoIdleSettle = 2 * time.Second
	autoIdleRetry  = 5 * time.Second
)

// StartManualIdle idles one game on user request, honoring its max idle time.
func (e *Engine) StartManualIdle(ctx context.Context, game model.Game) error {
	if err := e.steamRunning(ctx, "idle"); err != nil {
		return err
	}
	settings, err := e.store.GetUserSettings(ctx, e.steam.SteamID)
	if err != nil {
		return err
	}
	maxIdle := time.Duration(settings.MaxIdleMinutes(game.AppID)) * time.Minute
	return e.idle.StartIdle(ctx, game, maxIdle)
}

func (e *Engine) StopManualIdle(ctx context.Context, appID int64) error {
	return e.idle.StopIdle(ctx, appID)
}

// StartAutoIdle idles the auto-idle list in the background.
func (e *Engine) StartAutoIdle(ctx context.Context) (string, error) {
	if err := e.steamRunning(ctx, string(model.TaskAutoIdle)); err != nil {
		return "", err
	}
	return e.runTask(model.TaskAutoIdle, func(ctx context.Context, runID string) model.NextTask {
		if err := e.runAutoIdle(ctx); err != nil {
			e.handleError("startAutoIdleGames", err)
		}
		return model.NextTaskNone
	})
}

func (e *Engine) runAutoIdle(ctx context.Context) error {
	settings, err := e.store.GetUserSettings(ctx, e.steam.SteamID)
	if err != nil {
		return err
	}
	list, err := e.store.GetQueue(ctx, e.steam.SteamID, model.ListAutoIdle)
	if err != nil {
		return err
	}
	if len(list) > model.MaxConcurrentGames {
		list = list[:model.MaxConcurrentGames]
	}

	running, err := e.runningSet(ctx)
	if err != nil {
		return err
	}
	var pending []model.Game
	for _, g := range list {
		if !running[g.AppID] {
			pending = append(pending, g)
		}
	}
	if len(pending) == 0 {
		e.log("info", "[Auto Idle] Nothing to start", nil)
		return nil
	}

	attempts := e.automation.AutoIdleAttempts
	if attempts <= 0 {
		attempts = 3
	}
	for attempt := 1; len(pending) > 0 && attempt <= attempts; attempt++ {
		var wg sync.WaitGroup
		for _, g := range pending {
			wg.Add(1)
			go func(g model.Game) {
				defer wg.Done()
				maxIdle := time.Duration(settings.MaxIdleMinutes(g.AppID)) * time.Minute
				if err := e.idle.StartIdle(ctx, g, maxIdle); err != nil && !errors.Is(err, ErrAlreadyIdling) {
					e.handleError("startIdle", err)
				}
			}(g)
		}
		wg.Wait()

		if err := e.sleep(ctx, autoIdleSettle); err != nil {
			return err
		}
		running, err := e.runningSet(ctx)
		if err != nil {
			return err
		}
		still := pending[:0]
		for _, g := range pending {
			if !running[g.AppID] {
				still = append(still, g)
			}
		}
		pending = still

		if len(pending) > 0 && attempt < attempts {
			if err := e.sleep(ctx, autoIdleRetry); err != nil {
				return err
			}
		}
	}

	if len(pending) > 0 {
		e.log("warn", fmt.Sprintf("[Auto Idle] Failed to start %d games after %d attempts", len(pending), attempts), map[string]any{"failed": len(pending)})
		return nil
	}
	e.log("info", "[Auto Idle] Started idling auto idle games", map[string]any{"games": len(list)})
	return nil
}

func (e *Engine) runningSet(ctx context.Context) (map[int64]bool, error) {
	procs, err := e.provider.RunningProcesses(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(procs))
	for _, p := range procs {
		out[p.AppID] = true
	}
	return out, nil
}
