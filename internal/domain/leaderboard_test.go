package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRankTeamsOrdersAndRanks(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	board := RankTeams([]Team{
		{ID: "t1", Name: "Owls", XP: 40},
		{ID: "t2", Name: "Bats", XP: 90},
		{ID: "t3", Name: "Ants", XP: 40},
	}, now)

	require.Equal(t, "teams", board.Kind)
	require.Equal(t, now, board.UpdatedAt)
	require.Len(t, board.Entries, 3)
	ids := []string{board.Entries[0].ID, board.Entries[1].ID, board.Entries[2].ID}
	require.Equal(t, []string{"t2", "t3", "t1"}, ids)
	for i, e := range board.Entries {
		require.Equal(t, i+1, e.Rank)
	}
}

func TestRankUsersFillsLevel(t *testing.T) {
	board := RankUsers([]User{
		{ID: "u1", DisplayName: "Alice", XP: 120},
		{ID: "u2", DisplayName: "Bob", XP: 1100},
	}, NewLeveling(500), time.Now())

	require.Equal(t, "u2", board.Entries[0].ID)
	require.Equal(t, 3, board.Entries[0].Level)
	require.Equal(t, 1, board.Entries[1].Level)
}

func TestRankEmpty(t *testing.T) {
	board := RankTeams(nil, time.Now())
	require.Empty(t, board.Entries)
}
