package domain

import (
	"sort"
	"time"
)

// RankTeams orders teams by XP descending, then name ascending, and assigns 1-based ranks.
func RankTeams(teams []Team, now time.Time) Leaderboard {
	entries := make([]LeaderboardEntry, 0, len(teams))
	for _, t := range teams {
		entries = append(entries, LeaderboardEntry{ID: t.ID, Name: t.Name, XP: t.XP})
	}
	return Leaderboard{Kind: "teams", Entries: rank(entries), UpdatedAt: now}
}

// RankUsers applies the same ordering to users and fills in their level.
func RankUsers(users []User, leveling Leveling, now time.Time) Leaderboard {
	entries := make([]LeaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, LeaderboardEntry{ID: u.ID, Name: u.DisplayName, XP: u.XP, Level: leveling.Level(u.XP)})
	}
	return Leaderboard{Kind: "users", Entries: rank(entries), UpdatedAt: now}
}

func rank(entries []LeaderboardEntry) []LeaderboardEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].XP != entries[j].XP {
			return entries[i].XP > entries[j].XP
		}
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].ID < entries[j].ID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
