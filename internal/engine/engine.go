package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"idle_engine/internal/config"
	"idle_engine/internal/logbus"
	"idle_engine/internal/model"
	"idle_engine/internal/notify"
	"idle_engine/internal/pacing"
	"idle_engine/internal/provider"
)

var (
	ErrTaskRunning         = errors.New("another automation task is running")
	ErrSteamNotRunning     = errors.New("steam is not running")
	ErrMissingCredentials  = errors.New("card farming credentials are missing")
	ErrOutdatedCredentials = errors.New("card farming credentials are outdated")
	ErrEmptyFarmingList    = errors.New("card farming list is empty")
	ErrEmptyUnlockerList   = errors.New("achievement unlocker list is empty")
)

// Store is the subset of the sqlite store the schedulers use.
type Store interface {
	GetUserSettings(ctx context.Context, steamID string) (model.UserSettings, error)
	UpdateUserSettings(ctx context.Context, steamID string, fn func(*model.UserSettings)) (model.UserSettings, error)
	GetQueue(ctx context.Context, steamID, list string) ([]model.Game, error)
	RemoveFromQueue(ctx context.Context, steamID, list string, appID int64) error
	GetUnlockOrder(ctx context.Context, steamID string, appID int64) (model.UnlockOrder, bool, error)
}

// Harvester produces fresh session cookies, usually from a browser login window.
type Harvester interface {
	Harvest(ctx context.Context) (model.SessionCredentials, error)
}

type Options struct {
	Store      Store
	Provider   provider.Provider
	Bus        *logbus.Bus
	Notifier   notify.Notifier
	Harvester  Harvester
	Steam      config.SteamConfig
	Limits     config.LimitsConfig
	Automation config.AutomationConfig

	// Sleep, Now and Rand default to the real clock and a time-seeded source.
	Sleep pacing.SleepFunc
	Now   func() time.Time
	Rand  *rand.Rand
}

type Engine struct {
	store     Store
	provider  provider.Provider
	bus       *logbus.Bus
	notifier  notify.Notifier
	harvester Harvester

	steam      config.SteamConfig
	automation config.AutomationConfig

	sleep pacing.SleepFunc
	now   func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	idle     *IdleManager
	antiAway *AntiAway

	mu     sync.Mutex
	active model.TaskKind
	cancel context.CancelFunc
	done   chan struct{}

	cardState     model.CardFarmingState
	unlockerState model.AchievementUnlockerState
}

func New(opts Options) *Engine {
	p := newLimitedProvider(opts.Provider, opts.Limits)

	sleep := opts.Sleep
	if sleep == nil {
		sleep = pacing.Sleep
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	e := &Engine{
		store:         opts.Store,
		provider:      p,
		bus:           opts.Bus,
		notifier:      opts.Notifier,
		harvester:     opts.Harvester,
		steam:         opts.Steam,
		automation:    opts.Automation,
		sleep:         sleep,
		now:           now,
		rng:           rng,
		cardState:     model.CardFarmingState{Phase: model.PhaseIdle},
		unlockerState: model.AchievementUnlockerState{Phase: model.PhaseIdle},
	}
	e.idle = NewIdleManager(p, opts.Bus)
	e.antiAway = NewAntiAway(p, opts.Bus, opts.Automation.AntiAwaySchedule)
	return e
}

func (e *Engine) Idle() *IdleManager { return e.idle }

func (e *Engine) SteamID() string { return e.steam.SteamID }

// Active reports which automation task currently owns the backend.
func (e *Engine) Active() model.TaskKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) State(ctx context.Context) model.EngineState {
	e.mu.Lock()
	out := model.EngineState{
		Active:              e.active,
		SteamID:             e.steam.SteamID,
		CardFarming:         cloneCardState(e.cardState),
		AchievementUnlocker: e.unlockerState,
	}
	e.mu.Unlock()

	out.AntiAway = e.antiAway.Enabled()
	games, err := e.idle.Running(ctx)
	if err != nil {
		e.handleError("State", err)
	}
	out.IdlingGames = games
	if out.IdlingGames == nil {
		out.IdlingGames = []model.Game{}
	}
	return out
}

// runTask starts fn as the single active task. fn returns the follow-up task
// to hand off to once it finishes on its own.
func (e *Engine) runTask(kind model.TaskKind, fn func(ctx context.Context, runID string) model.NextTask) (string, error) {
	e.mu.Lock()
	if e.active != model.TaskNone {
		active := e.active
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrTaskRunning, active)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	runID := uuid.NewString()
	e.active = kind
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	go func() {
		next := fn(ctx, runID)
		cancelled := ctx.Err() != nil

		e.mu.Lock()
		if e.done == done {
			e.active = model.TaskNone
			e.cancel = nil
			e.done = nil
		}
		e.mu.Unlock()
		cancel()
		close(done)

		if !cancelled && next != model.NextTaskNone {
			e.startNext(kind, next)
		}
	}()
	return runID, nil
}

func (e *Engine) startNext(from model.TaskKind, next model.NextTask) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	e.log("info", fmt.Sprintf("[Next Task] %s finished - starting %s", from, next), map[string]any{"from": string(from), "next": string(next)})

	var err error
	switch next {
	case model.NextTaskAchievementUnlocker:
		_, err = e.StartAchievementUnlocker(ctx)
	case model.NextTaskCardFarming:
		_, err = e.StartCardFarming(ctx)
	case model.NextTaskAutoIdle:
		_, err = e.StartAutoIdle(ctx)
	}
	if err != nil {
		e.handleError("startNext", err)
	}
}

// stopTask cancels kind if it is the active task and waits for it to wind down.
func (e *Engine) stopTask(ctx context.Context, kind model.TaskKind) error {
	e.mu.Lock()
	if e.active != kind || e.cancel == nil {
		e.mu.Unlock()
		return nil
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopAll cancels the active task, stops the anti-away job and manual idle timers.
func (e *Engine) StopAll(ctx context.Context) error {
	e.mu.Lock()
	kind := e.active
	e.mu.Unlock()

	var err error
	if kind != model.TaskNone {
		err = e.stopTask(ctx, kind)
	}
	e.antiAway.Close()
	e.idle.Close()
	return err
}

func (e *Engine) steamRunning(ctx context.Context, task string) error {
	running, err := e.provider.IsSteamRunning(ctx)
	if err != nil {
		return fmt.Errorf("check steam status: %w", err)
	}
	if !running {
		e.notify(ctx, notify.AutomationEvent{
			Kind:    notify.EventSteamNotRunning,
			Task:    task,
			Message: "Start Steam and try again",
		})
		return ErrSteamNotRunning
	}
	return nil
}

func (e *Engine) wait(ctx context.Context, d time.Duration, onTick func(string)) error {
	cd := pacing.StartCountdown(ctx, d, onTick)
	defer cd.Stop()
	return e.sleep(ctx, d)
}

func (e *Engine) randomDelay(minMinutes, maxMinutes int) time.Duration {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return pacing.RandomDelay(minMinutes, maxMinutes, e.rng)
}

func (e *Engine) removeFromQueue(ctx context.Context, list string, appID int64) {
	if err := e.store.RemoveFromQueue(ctx, e.steam.SteamID, list, appID); err != nil {
		e.handleError("removeFromQueue", err)
	}
}

func (e *Engine) notify(ctx context.Context, evt notify.AutomationEvent) {
	if e.notifier == nil {
		return
	}
	if evt.AtMs == 0 {
		evt.AtMs = e.now().UnixMilli()
	}
	e.notifier.NotifyAutomationEvent(ctx, evt)
}

func (e *Engine) log(level, msg string, fields map[string]any) {
	if e.bus != nil {
		e.bus.Log(level, msg, fields)
	}
}

// handleError records err against the function that produced it.
func (e *Engine) handleError(fn string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	e.log("error", fmt.Sprintf("[Error] in (%s)", fn), map[string]any{"fn": fn, "error": err.Error()})
}

func (e *Engine) updateCardFarming(fn func(*model.CardFarmingState)) {
	e.mu.Lock()
	fn(&e.cardState)
	st := cloneCardState(e.cardState)
	e.mu.Unlock()
	if e.bus != nil {
		e.bus.Publish(logbus.TypeCardFarmingState, st)
	}
}

func (e *Engine) updateUnlocker(fn func(*model.AchievementUnlockerState)) {
	e.mu.Lock()
	fn(&e.unlockerState)
	st := e.unlockerState
	e.mu.Unlock()
	if e.bus != nil {
		e.bus.Publish(logbus.TypeAchievementUnlockerState, st)
	}
}

func cloneCardState(st model.CardFarmingState) model.CardFarmingState {
	st.GamesWithDrops = append([]model.GameWithDrops{}, st.GamesWithDrops...)
	return st
}
