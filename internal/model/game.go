package model

// MaxConcurrentGames is the platform limit on simultaneously idled games.
const MaxConcurrentGames = 32

type Game struct {
	AppID int64  `json:"appid"`
	Name  string `json:"name"`
}

// GameWithDrops is a farming candidate. DropsToCount is the budget for this run,
// InitialDrops the remaining count observed when the game entered the set.
type GameWithDrops struct {
	AppID        int64  `json:"appid"`
	Name         string `json:"name"`
	DropsToCount int    `json:"dropsToCount"`
	InitialDrops int    `json:"initialDrops"`
}

func (g GameWithDrops) Game() Game {
	return Game{AppID: g.AppID, Name: g.Name}
}

// GameDrops is one row of the bulk drops endpoint.
type GameDrops struct {
	AppID     int64  `json:"id"`
	Name      string `json:"name"`
	Remaining int    `json:"remaining"`
}

type IdleProcess struct {
	AppID int64  `json:"appid"`
	Name  string `json:"name"`
	PID   int    `json:"pid"`
}

// Queue names in the list store.
const (
	ListCardFarming         = "cardFarmingList"
	ListAchievementUnlocker = "achievementUnlockerList"
	ListAutoIdle            = "autoIdleList"
	ListFavorites           = "favoritesList"
)

func ValidListName(name string) bool {
	switch name {
	case ListCardFarming, ListAchievementUnlocker, ListAutoIdle, ListFavorites:
		return true
	default:
		return false
	}
}
