package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockBackend simulates the local automation helper so the engine can run
// without Steam. Drops fall while games are farmed and achievements unlock
// on request.
type mockBackend struct {
	mu           sync.Mutex
	rng          *rand.Rand
	steamRunning bool
	mismatch     bool
	idling       map[int64]string
	farming      map[int64]bool
	drops        map[int64]int
	names        map[int64]string
	achievements map[int64][]mockAchievement
}

type mockAchievement struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Percent  float64 `json:"percent"`
	Achieved bool    `json:"achieved"`
	Hidden   bool    `json:"hidden"`
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	games := flag.Int("games", 5, "number of games with card drops")
	mismatch := flag.Bool("mismatch", false, "report an account mismatch for achievement data")
	flag.Parse()

	b := newMockBackend(*games, *mismatch)

	mux := http.NewServeMux()
	mux.HandleFunc("/mock/health", func(w http.ResponseWriter, _ *http.Request) {
		writeOK(w, map[string]any{"ok": true})
	})
	mux.HandleFunc("/steam/status", b.handleSteamStatus)
	mux.HandleFunc("/idle/processes", b.handleProcesses)
	mux.HandleFunc("/idle/start", b.handleIdleStart)
	mux.HandleFunc("/idle/stop", b.handleIdleStop)
	mux.HandleFunc("/idle/farm/start", b.handleFarmStart)
	mux.HandleFunc("/idle/farm/stop", b.handleFarmStop)
	mux.HandleFunc("/drops/remaining", b.handleDropsRemaining)
	mux.HandleFunc("/drops/games", b.handleDropsGames)
	mux.HandleFunc("/session/validate", b.handleValidate)
	mux.HandleFunc("/achievements/data", b.handleAchievementData)
	mux.HandleFunc("/achievements/unlock", b.handleUnlock)
	mux.HandleFunc("/anti-away", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeOK(w, struct{}{})
	})

	log.Printf("mock automation backend listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}

func newMockBackend(games int, mismatch bool) *mockBackend {
	b := &mockBackend{
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		steamRunning: true,
		mismatch:     mismatch,
		idling:       map[int64]string{},
		farming:      map[int64]bool{},
		drops:        map[int64]int{},
		names:        map[int64]string{},
		achievements: map[int64][]mockAchievement{},
	}
	for i := 0; i < games; i++ {
		appID := int64(1000 + i*10)
		b.names[appID] = fmt.Sprintf("Mock Game %d", i+1)
		b.drops[appID] = 1 + b.rng.Intn(5)
	}
	return b
}

type gameBody struct {
	AppID int64  `json:"appid"`
	Name  string `json:"name"`
}

type sessionBody struct {
	SteamID string `json:"steamId"`
	AppID   int64  `json:"appid"`
	SID     string `json:"sid"`
	SLS     string `json:"sls"`
}

type achievementBody struct {
	SteamID       string `json:"steamId"`
	AppID         int64  `json:"appid"`
	AchievementID string `json:"achievementId"`
}

func (b *mockBackend) handleSteamStatus(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeOK(w, map[string]any{"running": b.steamRunning})
}

func (b *mockBackend) handleProcesses(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, 0, len(b.idling))
	pid := 4000
	for appID, name := range b.idling {
		pid++
		out = append(out, map[string]any{"appid": appID, "name": name, "pid": pid})
	}
	writeOK(w, out)
}

func (b *mockBackend) handleIdleStart(w http.ResponseWriter, r *http.Request) {
	var body gameBody
	if !decode(w, r, &body) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.idling[body.AppID] = body.Name
	writeOK(w, map[string]any{"started": true})
}

func (b *mockBackend) handleIdleStop(w http.ResponseWriter, r *http.Request) {
	var body gameBody
	if !decode(w, r, &body) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.idling, body.AppID)
	writeOK(w, struct{}{})
}

func (b *mockBackend) handleFarmStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Games []gameBody `json:"games"`
	}
	if !decode(w, r, &body) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, g := range body.Games {
		b.farming[g.AppID] = true
		b.idling[g.AppID] = g.Name
	}
	writeOK(w, map[string]any{"started": true})
}

// handleFarmStop ends a farming burst. Each farmed game has a chance to drop a card.
func (b *mockBackend) handleFarmStop(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Games []gameBody `json:"games"`
	}
	if !decode(w, r, &body) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, g := range body.Games {
		if b.farming[g.AppID] && b.drops[g.AppID] > 0 && b.rng.Intn(2) == 0 {
			b.drops[g.AppID]--
		}
		delete(b.farming, g.AppID)
		delete(b.idling, g.AppID)
	}
	writeOK(w, struct{}{})
}

func (b *mockBackend) handleDropsRemaining(w http.ResponseWriter, r *http.Request) {
	var body sessionBody
	if !decode(w, r, &body) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	writeOK(w, map[string]any{"remaining": b.drops[body.AppID]})
}

func (b *mockBackend) handleDropsGames(w http.ResponseWriter, r *http.Request) {
	var body sessionBody
	if !decode(w, r, &body) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, 0, len(b.drops))
	for appID, n := range b.drops {
		if n > 0 {
			out = append(out, map[string]any{"id": appID, "name": b.names[appID], "remaining": n})
		}
	}
	writeOK(w, out)
}

func (b *mockBackend) handleValidate(w http.ResponseWriter, r *http.Request) {
	var body sessionBody
	if !decode(w, r, &body) {
		return
	}
	writeOK(w, map[string]any{"valid": body.SID != "" && body.SLS != ""})
}

func (b *mockBackend) handleAchievementData(w http.ResponseWriter, r *http.Request) {
	var body achievementBody
	if !decode(w, r, &body) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mismatch {
		writeFail(w, http.StatusOK, "Failed to initialize Steam API")
		return
	}
	writeOK(w, map[string]any{"achievements": b.achievementsFor(body.AppID)})
}

func (b *mockBackend) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var body achievementBody
	if !decode(w, r, &body) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.achievementsFor(body.AppID)
	for i := range list {
		if list[i].ID == body.AchievementID {
			list[i].Achieved = true
			writeOK(w, struct{}{})
			return
		}
	}
	writeFail(w, http.StatusNotFound, "unknown achievement "+body.AchievementID)
}

func (b *mockBackend) achievementsFor(appID int64) []mockAchievement {
	if list, ok := b.achievements[appID]; ok {
		return list
	}
	n := 3 + b.rng.Intn(5)
	list := make([]mockAchievement, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, mockAchievement{
			ID:      fmt.Sprintf("ACH_%d_%d", appID, i),
			Name:    fmt.Sprintf("Achievement %d", i+1),
			Percent: float64(b.rng.Intn(1000)) / 10,
			Hidden:  b.rng.Intn(5) == 0,
		})
	}
	b.achievements[appID] = list
	return list
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeFail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
