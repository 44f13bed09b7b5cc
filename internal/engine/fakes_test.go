package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"idle_engine/internal/config"
	"idle_engine/internal/logbus"
	"idle_engine/internal/model"
	"idle_engine/internal/notify"
)

type fakeStore struct {
	mu       sync.Mutex
	settings model.UserSettings
	queues   map[string][]model.Game
	orders   map[int64]model.UnlockOrder
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		settings: model.DefaultUserSettings(),
		queues:   make(map[string][]model.Game),
		orders:   make(map[int64]model.UnlockOrder),
	}
}

func (s *fakeStore) GetUserSettings(_ context.Context, _ string) (model.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

func (s *fakeStore) UpdateUserSettings(_ context.Context, _ string, fn func(*model.UserSettings)) (model.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.settings)
	return s.settings, nil
}

func (s *fakeStore) GetQueue(_ context.Context, _, list string) ([]model.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Game{}, s.queues[list]...), nil
}

func (s *fakeStore) RemoveFromQueue(_ context.Context, _, list string, appID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.queues[list][:0]
	for _, g := range s.queues[list] {
		if g.AppID != appID {
			kept = append(kept, g)
		}
	}
	s.queues[list] = kept
	return nil
}

func (s *fakeStore) GetUnlockOrder(_ context.Context, _ string, appID int64) (model.UnlockOrder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[appID]
	return o, ok, nil
}

func (s *fakeStore) queue(list string) []model.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Game{}, s.queues[list]...)
}

type fakeProvider struct {
	mu sync.Mutex

	steamDown    bool
	invalid      bool
	drops        map[int64]int
	dropErrs     map[int64]error
	bulk         []model.GameDrops
	achievements map[int64]model.AchievementData
	achErr       error
	running      map[int64]model.Game
	onStopFarm   func(p *fakeProvider)
	farmStartErr error
	farmRefused  bool

	farmStarts [][]int64
	farmStops  int
	unlocked   []string
	idleStarts []int64
	idleStops  []int64
	antiAways  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		drops:        make(map[int64]int),
		dropErrs:     make(map[int64]error),
		achievements: make(map[int64]model.AchievementData),
		running:      make(map[int64]model.Game),
	}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) IsSteamRunning(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.steamDown, nil
}

func (p *fakeProvider) RunningProcesses(context.Context) ([]model.IdleProcess, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.IdleProcess, 0, len(p.running))
	for _, g := range p.running {
		out = append(out, model.IdleProcess{AppID: g.AppID, Name: g.Name, PID: int(g.AppID)})
	}
	return out, nil
}

func (p *fakeProvider) StartIdle(_ context.Context, game model.Game) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idleStarts = append(p.idleStarts, game.AppID)
	p.running[game.AppID] = game
	return true, nil
}

func (p *fakeProvider) StopIdle(_ context.Context, appID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idleStops = append(p.idleStops, appID)
	delete(p.running, appID)
	return nil
}

func (p *fakeProvider) StartFarmIdle(_ context.Context, games []model.Game) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int64, len(games))
	for i, g := range games {
		ids[i] = g.AppID
	}
	p.farmStarts = append(p.farmStarts, ids)
	if p.farmStartErr != nil {
		return false, p.farmStartErr
	}
	return !p.farmRefused, nil
}

func (p *fakeProvider) StopFarmIdle(context.Context, []model.Game) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.farmStops++
	if p.onStopFarm != nil {
		p.onStopFarm(p)
	}
	return nil
}

func (p *fakeProvider) GetDropsRemaining(_ context.Context, _ string, appID int64, _ model.SessionCredentials) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.dropErrs[appID]; err != nil {
		return 0, err
	}
	return p.drops[appID], nil
}

func (p *fakeProvider) GetGamesWithDrops(context.Context, string, model.SessionCredentials) ([]model.GameDrops, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.GameDrops{}, p.bulk...), nil
}

func (p *fakeProvider) ValidateSession(context.Context, string, model.SessionCredentials) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.invalid, nil
}

func (p *fakeProvider) GetAchievementData(_ context.Context, _ string, appID int64, _ bool) (model.AchievementData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.achErr != nil {
		return model.AchievementData{}, p.achErr
	}
	data := p.achievements[appID]
	// Unlocked achievements come back achieved on the next fetch.
	out := model.AchievementData{Stats: data.Stats}
	for _, a := range data.Achievements {
		for _, id := range p.unlocked {
			if id == a.ID {
				a.Achieved = true
			}
		}
		out.Achievements = append(out.Achievements, a)
	}
	return out, nil
}

func (p *fakeProvider) UnlockAchievement(_ context.Context, _ string, _ int64, achievementID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlocked = append(p.unlocked, achievementID)
	return nil
}

func (p *fakeProvider) AntiAway(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.antiAways++
	return nil
}

func (p *fakeProvider) snapshot(fn func(p *fakeProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.AutomationEvent
}

func (n *recordingNotifier) NotifyAutomationEvent(_ context.Context, evt notify.AutomationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
}

func (n *recordingNotifier) kinds() []notify.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.EventKind, len(n.events))
	for i, e := range n.events {
		out[i] = e.Kind
	}
	return out
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration{}, r.sleeps...)
}

type harness struct {
	engine   *Engine
	store    *fakeStore
	provider *fakeProvider
	notifier *recordingNotifier
	sleeps   *sleepRecorder
	bus      *logbus.Bus
}

func newHarness(t *testing.T, opts ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		store:    newFakeStore(),
		provider: newFakeProvider(),
		notifier: &recordingNotifier{},
		sleeps:   &sleepRecorder{},
		bus:      logbus.New(5000),
	}
	h.store.settings.CardFarming.Credentials = model.SessionCredentials{SID: "sid", SLS: "sls"}
	o := Options{
		Store:      h.store,
		Provider:   h.provider,
		Bus:        h.bus,
		Notifier:   h.notifier,
		Steam:      config.SteamConfig{SteamID: "76561198000000000"},
		Automation: config.AutomationConfig{},
		Sleep:      h.sleeps.sleep,
		Now: func() time.Time {
			return time.Date(2024, 3, 10, 12, 0, 0, 0, time.Local)
		},
	}
	for _, fn := range opts {
		fn(&o)
	}
	h.engine = New(o)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.engine.StopAll(ctx)
	})
	return h
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) waitInactive(t *testing.T) {
	t.Helper()
	waitFor(t, "engine to go inactive", func() bool { return h.engine.Active() == model.TaskNone })
}

func (h *harness) cardStates() []model.CardFarmingState {
	var out []model.CardFarmingState
	for _, m := range h.bus.Snapshot(logbus.TypeCardFarmingState) {
		if st, ok := m.Data.(model.CardFarmingState); ok {
			out = append(out, st)
		}
	}
	return out
}

func (h *harness) unlockerStates() []model.AchievementUnlockerState {
	var out []model.AchievementUnlockerState
	for _, m := range h.bus.Snapshot(logbus.TypeAchievementUnlockerState) {
		if st, ok := m.Data.(model.AchievementUnlockerState); ok {
			out = append(out, st)
		}
	}
	return out
}

var errBackend = errors.New("backend unavailable")
