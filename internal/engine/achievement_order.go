package engine

import (
	"sort"

	"idle_engine/internal/model"
)

func hasProtectedAchievements(raw []model.Achievement) bool {
	for _, a := range raw {
		if a.Protected {
			return true
		}
	}
	return false
}

// orderAchievements filters raw down to the locked achievements worth
// unlocking and puts them in unlock order. A custom order, when given, wins
// for the achievements it names; the rest follow by descending percentage.
func orderAchievements(game model.Game, raw []model.Achievement, hideHidden bool, order *model.UnlockOrder) []model.AchievementToUnlock {
	eligible := make([]model.AchievementToUnlock, 0, len(raw))
	for _, a := range raw {
		if a.Achieved || (hideHidden && a.Hidden) {
			continue
		}
		eligible = append(eligible, model.AchievementToUnlock{
			AppID:      game.AppID,
			ID:         a.ID,
			GameName:   game.Name,
			Percentage: a.Percent,
			Name:       a.Name,
			Hidden:     a.Hidden,
		})
	}

	if order == nil || len(order.Achievements) == 0 {
		sortByPercentDesc(eligible)
		return eligible
	}

	position := make(map[string]int, len(order.Achievements))
	for i, entry := range order.Achievements {
		if _, seen := position[entry.Name]; !seen {
			position[entry.Name] = i
		}
	}

	var ordered, rest []model.AchievementToUnlock
	for _, a := range eligible {
		i, ok := position[a.Name]
		if !ok {
			rest = append(rest, a)
			continue
		}
		entry := order.Achievements[i]
		if entry.Skip {
			continue
		}
		a.DelayNextUnlock = entry.DelayNextUnlock
		ordered = append(ordered, a)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return position[ordered[i].Name] < position[ordered[j].Name]
	})
	sortByPercentDesc(rest)
	return append(ordered, rest...)
}

func sortByPercentDesc(list []model.AchievementToUnlock) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Percentage > list[j].Percentage
	})
}
