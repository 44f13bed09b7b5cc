package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"idle_engine/internal/logbus"
	"idle_engine/internal/model"
)

const testSteamID = "76561198000000000"

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestQueueOrderAndIdempotentRemoval(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	games := []model.Game{{AppID: 730, Name: "CS"}, {AppID: 440, Name: "TF2"}, {AppID: 730, Name: "dup"}}
	if err := s.SetQueue(ctx, testSteamID, model.ListCardFarming, games); err != nil {
		t.Fatalf("SetQueue: %v", err)
	}
	if err := s.AddToQueue(ctx, testSteamID, model.ListCardFarming, model.Game{AppID: 570, Name: "Dota"}); err != nil {
		t.Fatalf("AddToQueue: %v", err)
	}
	if err := s.AddToQueue(ctx, testSteamID, model.ListCardFarming, model.Game{AppID: 440, Name: "TF2"}); err != nil {
		t.Fatalf("AddToQueue duplicate: %v", err)
	}

	got, err := s.GetQueue(ctx, testSteamID, model.ListCardFarming)
	if err != nil {
		t.Fatalf("GetQueue: %v", err)
	}
	if len(got) != 3 || got[0].AppID != 730 || got[1].AppID != 440 || got[2].AppID != 570 {
		t.Fatalf("unexpected queue %+v", got)
	}

	for i := 0; i < 2; i++ {
		if err := s.RemoveFromQueue(ctx, testSteamID, model.ListCardFarming, 440); err != nil {
			t.Fatalf("RemoveFromQueue #%d: %v", i, err)
		}
	}
	got, _ = s.GetQueue(ctx, testSteamID, model.ListCardFarming)
	if len(got) != 2 {
		t.Fatalf("expected 2 games after removal, got %+v", got)
	}

	other, _ := s.GetQueue(ctx, testSteamID, model.ListAchievementUnlocker)
	if len(other) != 0 {
		t.Fatalf("lists should be independent, got %+v", other)
	}
}

func TestUserSettingsDefaultsAndUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cur, err := s.GetUserSettings(ctx, testSteamID)
	if err != nil {
		t.Fatalf("GetUserSettings: %v", err)
	}
	if !cur.CardFarming.AllGames || cur.AchievementUnlocker.Interval != [2]int{30, 130} {
		t.Fatalf("defaults not applied: %+v", cur)
	}

	updated, err := s.UpdateUserSettings(ctx, testSteamID, func(us *model.UserSettings) {
		us.CardFarming.AllGames = false
		us.GameSettings["440"] = model.GameSettings{MaxCardDrops: 3}
	})
	if err != nil {
		t.Fatalf("UpdateUserSettings: %v", err)
	}
	if updated.CardFarming.AllGames || updated.Game(440).MaxCardDrops != 3 {
		t.Fatalf("update not persisted: %+v", updated)
	}
	if updated.AchievementUnlocker.ScheduleFrom != "08:30" {
		t.Fatalf("untouched defaults lost: %+v", updated.AchievementUnlocker)
	}
}

func TestUnlockOrderRoundTripAndValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetUnlockOrder(ctx, testSteamID, 440); err != nil || ok {
		t.Fatalf("expected no order, got ok=%v err=%v", ok, err)
	}
	order := model.UnlockOrder{AppID: 440, Achievements: []model.UnlockOrderEntry{
		{Name: "A", Skip: true},
		{Name: "B"},
		{Name: "C", DelayNextUnlock: 2},
	}}
	saved, err := s.UpsertUnlockOrder(ctx, testSteamID, order)
	if err != nil {
		t.Fatalf("UpsertUnlockOrder: %v", err)
	}
	if len(saved.Achievements) != 3 || saved.Achievements[2].DelayNextUnlock != 2 || !saved.Achievements[0].Skip {
		t.Fatalf("unexpected saved order %+v", saved)
	}

	dup := model.UnlockOrder{AppID: 440, Achievements: []model.UnlockOrderEntry{{Name: "A"}, {Name: "A"}}}
	if _, err := s.UpsertUnlockOrder(ctx, testSteamID, dup); err == nil {
		t.Fatalf("expected duplicate name error")
	}

	if err := s.DeleteUnlockOrder(ctx, testSteamID, 440); err != nil {
		t.Fatalf("DeleteUnlockOrder: %v", err)
	}
	if _, ok, _ := s.GetUnlockOrder(ctx, testSteamID, 440); ok {
		t.Fatalf("order should be gone")
	}
}

func TestEventRetentionAndSink(t *testing.T) {
	s := openTestStore(t, WithEventRetention(3))
	ctx := context.Background()

	bus := logbus.New(10)
	bus.SetSink(s)
	bus.Log("debug", "ignored", nil)
	for i := 0; i < 5; i++ {
		bus.Log("info", "tick", map[string]any{"i": i})
		time.Sleep(2 * time.Millisecond)
	}

	events, err := s.ListEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected retention of 3 events, got %d", len(events))
	}
	if events[0].Fields["i"].(float64) != 4 {
		t.Fatalf("expected newest first, got %+v", events[0])
	}
	for _, e := range events {
		if e.Level == "debug" {
			t.Fatalf("debug logs should not be persisted")
		}
	}
}
