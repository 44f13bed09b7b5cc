package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"idle_engine/internal/logbus"
	"idle_engine/internal/model"
	"idle_engine/internal/provider"
)

var (
	ErrIdleLimit      = fmt.Errorf("cannot idle more than %d games at once", model.MaxConcurrentGames)
	ErrAlreadyIdling  = errors.New("game is already idling")
	ErrIdleNotStarted = errors.New("backend refused to start idling")
)

// IdleManager starts and stops single-game idle processes and owns the
// max-idle-time timers of manually started ones, keyed by app id.
type IdleManager struct {
	provider provider.Provider
	bus      *logbus.Bus

	mu     sync.Mutex
	timers map[int64]*time.Timer
}

func NewIdleManager(p provider.Provider, bus *logbus.Bus) *IdleManager {
	return &IdleManager{
		provider: p,
		bus:      bus,
		timers:   make(map[int64]*time.Timer),
	}
}

// StartIdle idles game. A positive maxIdle stops it again after that long.
func (m *IdleManager) StartIdle(ctx context.Context, game model.Game, maxIdle time.Duration) error {
	procs, err := m.provider.RunningProcesses(ctx)
	if err != nil {
		return fmt.Errorf("list running processes: %w", err)
	}
	for _, p := range procs {
		if p.AppID == game.AppID {
			return ErrAlreadyIdling
		}
	}
	if len(procs) >= model.MaxConcurrentGames {
		return ErrIdleLimit
	}

	ok, err := m.provider.StartIdle(ctx, game)
	if err != nil {
		return err
	}
	if !ok {
		return ErrIdleNotStarted
	}
	m.log("info", fmt.Sprintf("[Idle] Started idling %s", game.Name), map[string]any{"appid": game.AppID})

	if maxIdle > 0 {
		m.armTimer(game, maxIdle)
	}
	return nil
}

func (m *IdleManager) armTimer(game model.Game, maxIdle time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.timers[game.AppID]; t != nil {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(maxIdle, func() {
		m.mu.Lock()
		if m.timers[game.AppID] != timer {
			m.mu.Unlock()
			return
		}
		delete(m.timers, game.AppID)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.provider.StopIdle(ctx, game.AppID); err != nil {
			m.log("error", "[Error] in (idleTimeout)", map[string]any{"appid": game.AppID, "error": err.Error()})
			return
		}
		m.log("info", fmt.Sprintf("[Idle] Stopped idling %s after %s", game.Name, maxIdle), map[string]any{"appid": game.AppID})
	})
	m.timers[game.AppID] = timer
}

// StopIdle stops idling appID and cancels its timer, if any.
func (m *IdleManager) StopIdle(ctx context.Context, appID int64) error {
	m.cancelTimer(appID)
	return m.provider.StopIdle(ctx, appID)
}

func (m *IdleManager) cancelTimer(appID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.timers[appID]; t != nil {
		t.Stop()
		delete(m.timers, appID)
	}
}

// HasTimer reports whether appID has a pending max-idle timer.
func (m *IdleManager) HasTimer(appID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[appID]
	return ok
}

func (m *IdleManager) Running(ctx context.Context) ([]model.Game, error) {
	procs, err := m.provider.RunningProcesses(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Game, 0, len(procs))
	for _, p := range procs {
		out = append(out, model.Game{AppID: p.AppID, Name: p.Name})
	}
	return out, nil
}

// Close cancels every pending timer. Running idle processes are left alone.
func (m *IdleManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

func (m *IdleManager) log(level, msg string, fields map[string]any) {
	if m.bus != nil {
		m.bus.Log(level, msg, fields)
	}
}
