package model

type TaskKind string

const (
	TaskNone                TaskKind = ""
	TaskCardFarming         TaskKind = "cardFarming"
	TaskAchievementUnlocker TaskKind = "achievementUnlocker"
	TaskAutoIdle            TaskKind = "autoIdle"
)

type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseInitialDelay       Phase = "initialDelay"
	PhaseDiscovering        Phase = "discovering"
	PhaseFarming            Phase = "farming"
	PhaseUnlocking          Phase = "unlocking"
	PhaseWaiting            Phase = "waiting"
	PhaseWaitingForSchedule Phase = "waitingForSchedule"
	PhaseComplete           Phase = "complete"
	PhaseFailed             Phase = "failed"
)

type CardFarmingState struct {
	RunID               string          `json:"runId,omitempty"`
	Running             bool            `json:"running"`
	Phase               Phase           `json:"phase"`
	GamesWithDrops      []GameWithDrops `json:"gamesWithDrops"`
	TotalDropsRemaining int             `json:"totalDropsRemaining"`
	CycleStep           int             `json:"cycleStep,omitempty"`
	Countdown           string          `json:"countdown,omitempty"`
	Complete            bool            `json:"complete"`
	LastError           string          `json:"lastError,omitempty"`
}

type AchievementUnlockerState struct {
	RunID              string `json:"runId,omitempty"`
	Running            bool   `json:"running"`
	Phase              Phase  `json:"phase"`
	CurrentGame        *Game  `json:"currentGame,omitempty"`
	AchievementCount   int    `json:"achievementCount"`
	Countdown          string `json:"countdown,omitempty"`
	WaitingForSchedule bool   `json:"waitingForSchedule"`
	AccountMismatch    bool   `json:"accountMismatch,omitempty"`
	Complete           bool   `json:"complete"`
	LastError          string `json:"lastError,omitempty"`
}

type EngineState struct {
	Active              TaskKind                 `json:"active"`
	SteamID             string                   `json:"steamId"`
	AntiAway            bool                     `json:"antiAway"`
	IdlingGames         []Game                   `json:"idlingGames"`
	CardFarming         CardFarmingState         `json:"cardFarming"`
	AchievementUnlocker AchievementUnlockerState `json:"achievementUnlocker"`
}

type Event struct {
	ID     string         `json:"id"`
	AtMs   int64          `json:"atMs"`
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Fields map[string]any `json:"fields,omitempty"`
}
