package model

import "strconv"

type EmailSettings struct {
	Enabled  bool   `json:"enabled"`
	Email    string `json:"email"`
	AuthCode string `json:"authCode,omitempty"`
}

type NextTask string

const (
	NextTaskNone                NextTask = ""
	NextTaskAchievementUnlocker NextTask = "achievementUnlocker"
	NextTaskCardFarming         NextTask = "cardFarming"
	NextTaskAutoIdle            NextTask = "autoIdle"
)

func (t NextTask) Valid() bool {
	switch t {
	case NextTaskNone, NextTaskAchievementUnlocker, NextTaskCardFarming, NextTaskAutoIdle:
		return true
	default:
		return false
	}
}

type GeneralSettings struct {
	AntiAway bool `json:"antiAway"`
}

type CardFarmingSettings struct {
	AllGames         bool               `json:"allGames"`
	ListGames        bool               `json:"listGames"`
	NextTaskCheckbox bool               `json:"nextTaskCheckbox"`
	NextTask         NextTask           `json:"nextTask"`
	Credentials      SessionCredentials `json:"credentials"`
	Blacklist        []int64            `json:"blacklist"`
	// AutoRevalidate refreshes credentials from the browser login window before each start.
	AutoRevalidate bool `json:"autoRevalidate"`
}

func (s CardFarmingSettings) Blacklisted(appID int64) bool {
	for _, id := range s.Blacklist {
		if id == appID {
			return true
		}
	}
	return false
}

type AchievementUnlockerSettings struct {
	NextTaskCheckbox bool     `json:"nextTaskCheckbox"`
	NextTask         NextTask `json:"nextTask"`
	Idle             bool     `json:"idle"`
	Hidden           bool     `json:"hidden"`
	Schedule         bool     `json:"schedule"`
	ScheduleFrom     string   `json:"scheduleFrom"`
	ScheduleTo       string   `json:"scheduleTo"`
	// Interval is the random delay range between unlocks, in minutes.
	Interval [2]int `json:"interval"`
}

type GameSettings struct {
	MaxCardDrops          int `json:"maxCardDrops,omitempty"`
	MaxAchievementUnlocks int `json:"maxAchievementUnlocks,omitempty"`
	MaxIdleTime           int `json:"maxIdleTime,omitempty"` // minutes
}

type UserSettings struct {
	General             GeneralSettings             `json:"general"`
	CardFarming         CardFarmingSettings         `json:"cardFarming"`
	AchievementUnlocker AchievementUnlockerSettings `json:"achievementUnlocker"`
	// GameSettings is keyed by the decimal app id.
	GameSettings      map[string]GameSettings `json:"gameSettings"`
	GlobalMaxIdleTime int                     `json:"globalMaxIdleTime"`
}

func DefaultUserSettings() UserSettings {
	return UserSettings{
		CardFarming: CardFarmingSettings{
			AllGames:  true,
			Blacklist: []int64{},
		},
		AchievementUnlocker: AchievementUnlockerSettings{
			Idle:         true,
			ScheduleFrom: "08:30",
			ScheduleTo:   "23:00",
			Interval:     [2]int{30, 130},
		},
		GameSettings: map[string]GameSettings{},
	}
}

// NextCardFarmingTask returns the configured follow-up, or NextTaskNone.
func (s UserSettings) NextCardFarmingTask() NextTask {
	if !s.CardFarming.NextTaskCheckbox {
		return NextTaskNone
	}
	switch s.CardFarming.NextTask {
	case NextTaskAchievementUnlocker, NextTaskAutoIdle:
		return s.CardFarming.NextTask
	}
	return NextTaskNone
}

func (s UserSettings) NextAchievementUnlockerTask() NextTask {
	if !s.AchievementUnlocker.NextTaskCheckbox {
		return NextTaskNone
	}
	switch s.AchievementUnlocker.NextTask {
	case NextTaskCardFarming, NextTaskAutoIdle:
		return s.AchievementUnlocker.NextTask
	}
	return NextTaskNone
}

func (s UserSettings) Game(appID int64) GameSettings {
	if s.GameSettings == nil {
		return GameSettings{}
	}
	return s.GameSettings[strconv.FormatInt(appID, 10)]
}

// MaxIdleMinutes is the per-game limit, falling back to the global one. Zero means unlimited.
func (s UserSettings) MaxIdleMinutes(appID int64) int {
	if v := s.Game(appID).MaxIdleTime; v > 0 {
		return v
	}
	if s.GlobalMaxIdleTime > 0 {
		return s.GlobalMaxIdleTime
	}
	return 0
}
