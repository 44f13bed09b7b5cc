package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"idle_engine/internal/model"
	"idle_engine/internal/notify"
	"idle_engine/internal/pacing"
	"idle_engine/internal/provider"
)

// StartAchievementUnlocker launches the unlocker loop over the unlocker list.
func (e *Engine) StartAchievementUnlocker(ctx context.Context) (string, error) {
	if active := e.Active(); active != model.TaskNone {
		return "", fmt.Errorf("%w: %s", ErrTaskRunning, active)
	}
	if err := e.steamRunning(ctx, string(model.TaskAchievementUnlocker)); err != nil {
		return "", err
	}
	queue, err := e.store.GetQueue(ctx, e.steam.SteamID, model.ListAchievementUnlocker)
	if err != nil {
		return "", err
	}
	if len(queue) == 0 {
		return "", ErrEmptyUnlockerList
	}
	return e.runTask(model.TaskAchievementUnlocker, e.runAchievementUnlocker)
}

func (e *Engine) StopAchievementUnlocker(ctx context.Context) error {
	return e.stopTask(ctx, model.TaskAchievementUnlocker)
}

// unlockerRun is the per-run state of the achievement unlocker.
type unlockerRun struct {
	e     *Engine
	runID string

	// idling is the game this run started idling, if any.
	idling *model.Game
}

func (e *Engine) runAchievementUnlocker(ctx context.Context, runID string) model.NextTask {
	r := &unlockerRun{e: e, runID: runID}
	e.updateUnlocker(func(s *model.AchievementUnlockerState) {
		*s = model.AchievementUnlockerState{RunID: runID, Running: true, Phase: model.PhaseInitialDelay}
	})
	e.log("info", "[Achievement Unlocker] Started", map[string]any{"runId": runID})

	defer func() {
		if ctx.Err() != nil {
			r.stopIdling(context.Background())
			e.finishUnlocker(model.PhaseIdle, "")
			e.log("info", "[Achievement Unlocker] Stopped", map[string]any{"runId": runID})
		}
	}()

	if err := e.wait(ctx, e.automation.InitialDelay(), e.unlockerCountdown); err != nil {
		return model.NextTaskNone
	}

	for ctx.Err() == nil {
		next, done := r.pass(ctx)
		if done {
			return next
		}
	}
	return model.NextTaskNone
}

// pass handles the head of the queue once. done is true when the run is over.
func (r *unlockerRun) pass(ctx context.Context) (next model.NextTask, done bool) {
	e := r.e
	settings, err := e.store.GetUserSettings(ctx, e.steam.SteamID)
	if err != nil {
		e.handleError("startAchievementUnlocker", err)
		return model.NextTaskNone, e.sleep(ctx, e.automation.RetryDelay()) != nil
	}
	queue, err := e.store.GetQueue(ctx, e.steam.SteamID, model.ListAchievementUnlocker)
	if err != nil {
		e.handleError("startAchievementUnlocker", err)
		return model.NextTaskNone, e.sleep(ctx, e.automation.RetryDelay()) != nil
	}

	if len(queue) == 0 {
		r.stopIdling(ctx)
		e.log("info", "[Achievement Unlocker] No games left - stopping", map[string]any{"runId": r.runID})
		e.finishUnlocker(model.PhaseComplete, "")
		e.notify(ctx, notify.AutomationEvent{Kind: notify.EventTaskComplete, Task: string(model.TaskAchievementUnlocker), RunID: r.runID})
		return settings.NextAchievementUnlockerTask(), true
	}

	game := queue[0]
	e.updateUnlocker(func(s *model.AchievementUnlockerState) {
		g := game
		s.CurrentGame = &g
		s.Phase = model.PhaseUnlocking
		s.Countdown = ""
	})

	achievements, err := e.fetchAchievements(ctx, settings, game)
	if errors.Is(err, provider.ErrAccountMismatch) {
		r.stopIdling(ctx)
		e.updateUnlocker(func(s *model.AchievementUnlockerState) { s.AccountMismatch = true })
		e.finishUnlocker(model.PhaseFailed, err.Error())
		return model.NextTaskNone, true
	}
	if err != nil {
		if ctx.Err() != nil {
			return model.NextTaskNone, true
		}
		e.handleError("fetchAchievements", err)
		return model.NextTaskNone, e.sleep(ctx, e.automation.RetryDelay()) != nil
	}

	if len(achievements) == 0 {
		r.stopIdling(ctx)
		e.removeFromQueue(ctx, model.ListAchievementUnlocker, game.AppID)
		e.log("info", fmt.Sprintf("[Achievement Unlocker] No achievements left for %s - removed from list", game.Name), map[string]any{"appid": game.AppID})
		return model.NextTaskNone, false
	}

	r.unlockAchievements(ctx, settings, game, achievements)
	return model.NextTaskNone, false
}

// fetchAchievements returns the ordered achievements to unlock for game. It
// returns provider.ErrAccountMismatch untouched so the caller can stop.
func (e *Engine) fetchAchievements(ctx context.Context, settings model.UserSettings, game model.Game) ([]model.AchievementToUnlock, error) {
	data, err := e.provider.GetAchievementData(ctx, e.steam.SteamID, game.AppID, true)
	if errors.Is(err, provider.ErrAccountMismatch) {
		e.log("error", "[Achievement Unlocker] Account mismatch between Steam and idle engine", map[string]any{"appid": game.AppID})
		e.notify(ctx, notify.AutomationEvent{
			Kind:     notify.EventAccountMismatch,
			Task:     string(model.TaskAchievementUnlocker),
			AppID:    game.AppID,
			GameName: game.Name,
			Message:  "Steam is signed into a different account",
		})
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if hasProtectedAchievements(data.Achievements) {
		e.log("info", fmt.Sprintf("[Achievement Unlocker] %s contains protected achievements - skipping", game.Name), map[string]any{"appid": game.AppID})
		return nil, nil
	}

	var order *model.UnlockOrder
	custom, ok, err := e.store.GetUnlockOrder(ctx, e.steam.SteamID, game.AppID)
	if err != nil {
		e.handleError("getCustomUnlockOrder", err)
	} else if ok {
		order = &custom
	}
	return orderAchievements(game, data.Achievements, settings.AchievementUnlocker.Hidden, order), nil
}

func (r *unlockerRun) unlockAchievements(ctx context.Context, settings model.UserSettings, game model.Game, achievements []model.AchievementToUnlock) {
	e := r.e
	cfg := settings.AchievementUnlocker
	total := len(achievements)
	maxUnlocks := settings.Game(game.AppID).MaxAchievementUnlocks

	shown := total
	if maxUnlocks > 0 && maxUnlocks < total {
		shown = maxUnlocks
	}
	e.updateUnlocker(func(s *model.AchievementUnlockerState) { s.AchievementCount = shown })

	var window *pacing.Window
	if cfg.Schedule {
		w, err := pacing.ParseWindow(cfg.ScheduleFrom, cfg.ScheduleTo)
		if err != nil {
			e.handleError("checkSchedule", err)
		} else {
			window = &w
		}
	}

	remaining := total
	for _, ach := range achievements {
		if ctx.Err() != nil {
			return
		}

		if window != nil && !window.Contains(e.now()) {
			if err := r.waitForSchedule(ctx, *window); err != nil {
				return
			}
		}
		if cfg.Idle && (r.idling == nil || r.idling.AppID != game.AppID) {
			r.startIdling(ctx, game)
		}

		if err := e.provider.UnlockAchievement(ctx, e.steam.SteamID, game.AppID, ach.ID); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.handleError("unlockAchievement", err)
		} else {
			remaining--
			e.log("info", fmt.Sprintf("[Achievement Unlocker] Unlocked %s for %s", ach.Name, game.Name), map[string]any{"appid": game.AppID, "achievement": ach.ID})
		}

		processed := total - remaining
		e.updateUnlocker(func(s *model.AchievementUnlockerState) {
			s.AchievementCount = shown - processed
			if s.AchievementCount < 0 {
				s.AchievementCount = 0
			}
		})

		if remaining == 0 || (maxUnlocks > 0 && processed >= maxUnlocks) {
			r.stopIdling(ctx)
			e.removeFromQueue(ctx, model.ListAchievementUnlocker, game.AppID)
			e.log("info", fmt.Sprintf("[Achievement Unlocker] Unlocked %d/%d achievements for %s - removed from list", processed, total, game.Name), map[string]any{"appid": game.AppID})
			return
		}

		delay := e.randomDelay(cfg.Interval[0], cfg.Interval[1])
		if ach.DelayNextUnlock > 0 {
			delay = time.Duration(ach.DelayNextUnlock) * time.Minute
		}
		e.updateUnlocker(func(s *model.AchievementUnlockerState) { s.Phase = model.PhaseWaiting })
		if err := e.wait(ctx, delay, e.unlockerCountdown); err != nil {
			return
		}
		e.updateUnlocker(func(s *model.AchievementUnlockerState) {
			s.Phase = model.PhaseUnlocking
			s.Countdown = ""
		})
	}
}

func (r *unlockerRun) waitForSchedule(ctx context.Context, w pacing.Window) error {
	e := r.e
	r.stopIdling(ctx)
	e.updateUnlocker(func(s *model.AchievementUnlockerState) {
		s.Phase = model.PhaseWaitingForSchedule
		s.WaitingForSchedule = true
		s.Countdown = ""
	})
	e.log("info", fmt.Sprintf("[Achievement Unlocker] Outside schedule %s-%s - waiting", w.From, w.To), nil)

	err := pacing.WaitUntil(ctx, e.sleep, e.automation.SchedulePoll(), func() bool {
		return w.Contains(e.now())
	})

	e.updateUnlocker(func(s *model.AchievementUnlockerState) {
		s.Phase = model.PhaseUnlocking
		s.WaitingForSchedule = false
	})
	return err
}

func (r *unlockerRun) startIdling(ctx context.Context, game model.Game) {
	if r.idling != nil {
		r.stopIdling(ctx)
	}
	err := r.e.idle.StartIdle(ctx, game, 0)
	if err != nil && !errors.Is(err, ErrAlreadyIdling) {
		r.e.handleError("startIdle", err)
		return
	}
	g := game
	r.idling = &g
}

func (r *unlockerRun) stopIdling(ctx context.Context) {
	if r.idling == nil {
		return
	}
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}
	if err := r.e.idle.StopIdle(ctx, r.idling.AppID); err != nil {
		r.e.handleError("stopIdle", err)
	}
	r.idling = nil
}

func (e *Engine) finishUnlocker(phase model.Phase, lastError string) {
	e.updateUnlocker(func(s *model.AchievementUnlockerState) {
		s.Running = false
		s.Phase = phase
		s.Countdown = ""
		s.WaitingForSchedule = false
		s.Complete = phase == model.PhaseComplete || phase == model.PhaseFailed
		if lastError != "" {
			s.LastError = lastError
		}
	})
}

func (e *Engine) unlockerCountdown(v string) {
	e.updateUnlocker(func(s *model.AchievementUnlockerState) { s.Countdown = v })
}
