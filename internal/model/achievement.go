package model

// Achievement is the raw per-achievement record returned by the automation backend.
type Achievement struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Percent   float64 `json:"percent"`
	Achieved  bool    `json:"achieved"`
	Hidden    bool    `json:"hidden"`
	Protected bool    `json:"protected_achievement"`
}

type Stat struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type AchievementData struct {
	Achievements []Achievement `json:"achievements"`
	Stats        []Stat        `json:"stats"`
}

type AchievementToUnlock struct {
	AppID           int64   `json:"appId"`
	ID              string  `json:"id"`
	GameName        string  `json:"gameName"`
	Percentage      float64 `json:"percentage"`
	Name            string  `json:"name,omitempty"`
	Hidden          bool    `json:"hidden,omitempty"`
	Skip            bool    `json:"skip,omitempty"`
	DelayNextUnlock int     `json:"delayNextUnlock,omitempty"` // minutes
}

// UnlockOrderEntry is matched against achievements by Name.
type UnlockOrderEntry struct {
	Name            string `json:"name" yaml:"name"`
	Skip            bool   `json:"skip,omitempty" yaml:"skip,omitempty"`
	DelayNextUnlock int    `json:"delayNextUnlock,omitempty" yaml:"delayNextUnlock,omitempty"`
}

type UnlockOrder struct {
	AppID        int64              `json:"appId" yaml:"appId"`
	Achievements []UnlockOrderEntry `json:"achievements" yaml:"achievements"`
	UpdatedAtMs  int64              `json:"updatedAtMs,omitempty" yaml:"-"`
}
