package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"idle_engine/internal/model"
	"idle_engine/internal/notify"
)

type cycleStep struct {
	start bool
	delay time.Duration
}

// farmingCycle alternates short and long sessions. The values are tuned to
// look like ordinary play and must not be changed casually.
var farmingCycle = []cycleStep{
	{start: true, delay: 5 * time.Minute},
	{start: false, delay: time.Minute},
	{start: true, delay: 15 * time.Second},
	{start: false, delay: time.Minute},
	{start: true, delay: 30 * time.Minute},
	{start: false, delay: time.Minute},
	{start: true, delay: 15 * time.Second},
	{start: false, delay: time.Minute},
}

// StartCardFarming checks preconditions and launches the card farming loop.
func (e *Engine) StartCardFarming(ctx context.Context) (string, error) {
	if active := e.Active(); active != model.TaskNone {
		return "", fmt.Errorf("%w: %s", ErrTaskRunning, active)
	}
	if err := e.steamRunning(ctx, string(model.TaskCardFarming)); err != nil {
		return "", err
	}
	settings, err := e.store.GetUserSettings(ctx, e.steam.SteamID)
	if err != nil {
		return "", err
	}
	if _, err := e.checkCredentials(ctx, settings); err != nil {
		return "", err
	}
	if !settings.CardFarming.AllGames {
		queue, err := e.store.GetQueue(ctx, e.steam.SteamID, model.ListCardFarming)
		if err != nil {
			return "", err
		}
		if len(queue) == 0 {
			return "", ErrEmptyFarmingList
		}
	}
	return e.runTask(model.TaskCardFarming, e.runCardFarming)
}

func (e *Engine) StopCardFarming(ctx context.Context) error {
	return e.stopTask(ctx, model.TaskCardFarming)
}

func (e *Engine) runCardFarming(ctx context.Context, runID string) model.NextTask {
	e.updateCardFarming(func(s *model.CardFarmingState) {
		*s = model.CardFarmingState{RunID: runID, Running: true, Phase: model.PhaseDiscovering}
	})
	e.log("info", "[Card Farming] Started", map[string]any{"runId": runID})

	// retired holds games that reached their drop budget during this run.
	retired := make(map[int64]bool)
	for {
		if ctx.Err() != nil {
			e.finishCardFarming(model.PhaseIdle, "")
			e.log("info", "[Card Farming] Stopped", map[string]any{"runId": runID})
			return model.NextTaskNone
		}

		settings, err := e.store.GetUserSettings(ctx, e.steam.SteamID)
		if err != nil {
			e.handleError("startCardFarming", err)
			e.failCardFarming(ctx, runID, err)
			return model.NextTaskNone
		}

		e.updateCardFarming(func(s *model.CardFarmingState) {
			s.Phase = model.PhaseDiscovering
			s.CycleStep = 0
			s.Countdown = ""
		})
		games := e.discoverGames(ctx, settings, retired, model.MaxConcurrentGames)
		if ctx.Err() != nil {
			continue
		}
		e.publishFarmingSet(games)

		if len(games) == 0 {
			e.log("info", "[Card Farming] No games left - stopping", map[string]any{"runId": runID})
			e.finishCardFarming(model.PhaseComplete, "")
			e.notify(ctx, notify.AutomationEvent{Kind: notify.EventTaskComplete, Task: string(model.TaskCardFarming), RunID: runID})
			return settings.NextCardFarmingTask()
		}

		if ok := e.beginFarmingCycle(ctx, games, retired); !ok {
			if ctx.Err() != nil {
				continue
			}
			e.log("warn", "[Card Farming] An error occurred - stopping", map[string]any{"runId": runID})
			e.failCardFarming(ctx, runID, fmt.Errorf("farming cycle failed"))
			return model.NextTaskNone
		}
	}
}

func (e *Engine) finishCardFarming(phase model.Phase, lastError string) {
	e.updateCardFarming(func(s *model.CardFarmingState) {
		s.Running = false
		s.Phase = phase
		s.Countdown = ""
		s.CycleStep = 0
		s.Complete = phase == model.PhaseComplete || phase == model.PhaseFailed
		s.LastError = lastError
	})
}

func (e *Engine) failCardFarming(ctx context.Context, runID string, err error) {
	e.finishCardFarming(model.PhaseFailed, err.Error())
	e.notify(ctx, notify.AutomationEvent{
		Kind:    notify.EventTaskFailed,
		Task:    string(model.TaskCardFarming),
		RunID:   runID,
		Message: err.Error(),
	})
}

func (e *Engine) publishFarmingSet(games []model.GameWithDrops) {
	total := 0
	for _, g := range games {
		total += g.DropsToCount
	}
	e.updateCardFarming(func(s *model.CardFarmingState) {
		s.GamesWithDrops = append([]model.GameWithDrops{}, games...)
		s.TotalDropsRemaining = total
	})
}

// newFarmingCandidate clamps the drop budget to the per-game override.
func newFarmingCandidate(game model.Game, remaining int, gs model.GameSettings) model.GameWithDrops {
	dropsToCount := remaining
	if gs.MaxCardDrops > 0 && gs.MaxCardDrops < remaining {
		dropsToCount = gs.MaxCardDrops
	}
	return model.GameWithDrops{
		AppID:        game.AppID,
		Name:         game.Name,
		DropsToCount: dropsToCount,
		InitialDrops: remaining,
	}
}

// discoverGames returns up to room games with drops left, skipping exclude.
func (e *Engine) discoverGames(ctx context.Context, settings model.UserSettings, exclude map[int64]bool, room int) []model.GameWithDrops {
	if room <= 0 {
		return nil
	}
	creds, err := e.openCredentials(settings)
	if err != nil {
		e.handleError("checkGamesForDrops", err)
		return nil
	}

	var out []model.GameWithDrops
	add := func(g model.Game, remaining int) bool {
		if len(out) >= room {
			return false
		}
		c := newFarmingCandidate(g, remaining, settings.Game(g.AppID))
		out = append(out, c)
		e.log("info", fmt.Sprintf("[Card Farming] %d drops remaining for %s - starting", c.DropsToCount, g.Name), map[string]any{"appid": g.AppID})
		return true
	}

	if settings.CardFarming.AllGames {
		all, err := e.provider.GetGamesWithDrops(ctx, e.steam.SteamID, creds)
		if err != nil {
			e.handleError("checkGamesForDrops", err)
			return nil
		}
		for _, d := range all {
			if d.Remaining <= 0 || exclude[d.AppID] || settings.CardFarming.Blacklisted(d.AppID) {
				continue
			}
			if !add(model.Game{AppID: d.AppID, Name: d.Name}, d.Remaining) {
				break
			}
		}
		return out
	}

	queue, err := e.store.GetQueue(ctx, e.steam.SteamID, model.ListCardFarming)
	if err != nil {
		e.handleError("checkGamesForDrops", err)
		return nil
	}
	var candidates []model.Game
	for _, g := range queue {
		if exclude[g.AppID] || settings.CardFarming.Blacklisted(g.AppID) {
			continue
		}
		candidates = append(candidates, g)
	}

	remaining := e.probeDrops(ctx, creds, candidates)
	for i, g := range candidates {
		r := remaining[i]
		if r.err != nil {
			e.handleError("checkGame", r.err)
			continue
		}
		if r.drops <= 0 {
			e.log("info", fmt.Sprintf("[Card Farming] %d drops remaining for %s - removed from list", r.drops, g.Name), map[string]any{"appid": g.AppID})
			e.removeFromQueue(ctx, model.ListCardFarming, g.AppID)
			continue
		}
		add(g, r.drops)
	}
	return out
}

type probeResult struct {
	drops int
	err   error
}

// probeDrops queries every game in parallel, each bounded by the probe timeout.
func (e *Engine) probeDrops(ctx context.Context, creds model.SessionCredentials, games []model.Game) []probeResult {
	out := make([]probeResult, len(games))
	timeout := e.automation.ProbeTimeout()
	var wg sync.WaitGroup
	for i, g := range games {
		wg.Add(1)
		go func(i int, g model.Game) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			drops, err := e.provider.GetDropsRemaining(pctx, e.steam.SteamID, g.AppID, creds)
			out[i] = probeResult{drops: drops, err: err}
		}(i, g)
	}
	wg.Wait()
	return out
}

// beginFarmingCycle runs the eight start/stop steps once. It returns false when
// a start or stop call fails or the run is cancelled.
func (e *Engine) beginFarmingCycle(ctx context.Context, games []model.GameWithDrops, retired map[int64]bool) bool {
	idling := false
	defer func() {
		if idling {
			e.stopFarmIdle(games)
		}
	}()

	for i, step := range farmingCycle {
		if ctx.Err() != nil {
			return false
		}
		if len(games) == 0 {
			return true
		}
		e.updateCardFarming(func(s *model.CardFarmingState) {
			s.Phase = model.PhaseFarming
			s.CycleStep = i + 1
		})

		set := farmingGames(games)
		if step.start {
			ok, err := e.provider.StartFarmIdle(ctx, set)
			if err != nil || !ok {
				if err == nil {
					err = fmt.Errorf("backend did not start %d games", len(set))
				}
				e.handleError("beginFarmingCycle", err)
				return false
			}
			idling = true
		} else {
			if err := e.provider.StopFarmIdle(ctx, set); err != nil {
				e.handleError("beginFarmingCycle", err)
				return false
			}
			idling = false
		}

		if err := e.wait(ctx, step.delay, e.cardCountdown); err != nil {
			return false
		}

		if !step.start {
			games = e.checkDropsRemaining(ctx, games, retired)
			if ctx.Err() != nil {
				return false
			}
			if len(games) < model.MaxConcurrentGames {
				games = e.topUpFarmingSet(ctx, games, retired)
			}
			e.publishFarmingSet(games)
		}
	}
	return true
}

func (e *Engine) cardCountdown(v string) {
	e.updateCardFarming(func(s *model.CardFarmingState) { s.Countdown = v })
}

func (e *Engine) stopFarmIdle(games []model.GameWithDrops) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.provider.StopFarmIdle(ctx, farmingGames(games)); err != nil {
		e.handleError("stopFarmIdle", err)
	}
}

// checkDropsRemaining drops games that are farmed out or reached their budget.
func (e *Engine) checkDropsRemaining(ctx context.Context, games []model.GameWithDrops, retired map[int64]bool) []model.GameWithDrops {
	creds, err := e.currentCredentials(ctx)
	if err != nil {
		e.handleError("checkDropsRemaining", err)
		return games
	}

	plain := make([]model.Game, len(games))
	for i, g := range games {
		plain[i] = g.Game()
	}
	results := e.probeDrops(ctx, creds, plain)

	kept := make([]model.GameWithDrops, 0, len(games))
	for i, g := range games {
		r := results[i]
		if r.err != nil {
			e.handleError("checkDropsRemaining", r.err)
			kept = append(kept, g)
			continue
		}
		farmed := g.InitialDrops - r.drops
		switch {
		case r.drops <= 0:
			e.removeFromQueue(ctx, model.ListCardFarming, g.AppID)
			e.log("info", fmt.Sprintf("[Card Farming] Farmed all drops for %s - removed from list", g.Name), map[string]any{"appid": g.AppID})
		case farmed >= g.DropsToCount:
			retired[g.AppID] = true
			e.removeFromQueue(ctx, model.ListCardFarming, g.AppID)
			e.log("info", fmt.Sprintf("[Card Farming] Farmed %d/%d cards for %s - removed from list", farmed, g.DropsToCount, g.Name), map[string]any{"appid": g.AppID})
		default:
			kept = append(kept, g)
		}
	}
	return kept
}

func (e *Engine) topUpFarmingSet(ctx context.Context, games []model.GameWithDrops, retired map[int64]bool) []model.GameWithDrops {
	settings, err := e.store.GetUserSettings(ctx, e.steam.SteamID)
	if err != nil {
		e.handleError("topUpFarmingSet", err)
		return games
	}
	exclude := make(map[int64]bool, len(games)+len(retired))
	for id := range retired {
		exclude[id] = true
	}
	for _, g := range games {
		exclude[g.AppID] = true
	}
	more := e.discoverGames(ctx, settings, exclude, model.MaxConcurrentGames-len(games))
	return append(games, more...)
}

func farmingGames(games []model.GameWithDrops) []model.Game {
	out := make([]model.Game, len(games))
	for i, g := range games {
		out[i] = g.Game()
	}
	return out
}
