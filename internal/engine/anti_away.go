package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"idle_engine/internal/logbus"
	"idle_engine/internal/provider"
)

const defaultAntiAwaySchedule = "@every 3m"

// AntiAway keeps the Steam status online by poking the backend on a cron
// schedule while enabled.
type AntiAway struct {
	provider provider.Provider
	bus      *logbus.Bus
	schedule string

	mu   sync.Mutex
	cron *cron.Cron
}

func NewAntiAway(p provider.Provider, bus *logbus.Bus, schedule string) *AntiAway {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		schedule = defaultAntiAwaySchedule
	}
	return &AntiAway{provider: p, bus: bus, schedule: schedule}
}

func (a *AntiAway) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cron != nil
}

// SetEnabled starts or stops the job. Enabling runs one tick right away.
func (a *AntiAway) SetEnabled(enabled bool) error {
	a.mu.Lock()
	if enabled == (a.cron != nil) {
		a.mu.Unlock()
		return nil
	}
	if !enabled {
		c := a.cron
		a.cron = nil
		a.mu.Unlock()
		<-c.Stop().Done()
		a.log("info", "[Anti-Away] Disabled", nil)
		return nil
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(busPrintf{a.bus}))))
	if _, err := c.AddFunc(a.schedule, a.tick); err != nil {
		a.mu.Unlock()
		return fmt.Errorf("anti-away schedule %q: %w", a.schedule, err)
	}
	c.Start()
	a.cron = c
	a.mu.Unlock()

	a.log("info", "[Anti-Away] Enabled", map[string]any{"schedule": a.schedule})
	go a.tick()
	return nil
}

func (a *AntiAway) Close() {
	_ = a.SetEnabled(false)
}

func (a *AntiAway) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.provider.AntiAway(ctx); err != nil {
		a.log("error", "[Error] in (antiAway)", map[string]any{"error": err.Error()})
		return
	}
	a.log("debug", "[Anti-Away] Status refreshed", nil)
}

func (a *AntiAway) log(level, msg string, fields map[string]any) {
	if a.bus != nil {
		a.bus.Log(level, msg, fields)
	}
}

// busPrintf routes cron's own messages to the bus.
type busPrintf struct{ bus *logbus.Bus }

func (p busPrintf) Printf(format string, args ...interface{}) {
	if p.bus != nil {
		p.bus.Log("warn", fmt.Sprintf(format, args...), nil)
	}
}

// SyncAntiAway applies the stored anti-away preference.
func (e *Engine) SyncAntiAway(ctx context.Context) error {
	settings, err := e.store.GetUserSettings(ctx, e.steam.SteamID)
	if err != nil {
		return err
	}
	return e.antiAway.SetEnabled(settings.General.AntiAway)
}
