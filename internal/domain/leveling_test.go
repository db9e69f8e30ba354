package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelingDefaults(t *testing.T) {
	l := NewLeveling(0)
	require.Equal(t, DefaultXPPerLevel, l.XPPerLevel)
	require.Equal(t, 1, l.Level(0))
	require.Equal(t, 1, l.Level(499))
	require.Equal(t, 2, l.Level(500))
	require.Equal(t, 1, l.Level(-10))
}

func TestLevelingConfigured(t *testing.T) {
	l := NewLeveling(200)
	require.Equal(t, 2, l.Level(350))
	into, remaining := l.Progress(350)
	require.Equal(t, 150, into)
	require.Equal(t, 50, remaining)
}

func TestLevelIsMonotonic(t *testing.T) {
	l := NewLeveling(DefaultXPPerLevel)
	prev := l.Level(0)
	for xp := 1; xp <= 5000; xp += 7 {
		level := l.Level(xp)
		require.GreaterOrEqual(t, level, prev)
		prev = level
	}
}

func TestLeveledUp(t *testing.T) {
	l := NewLeveling(500)
	from, to, ok := l.LeveledUp(480, 580)
	require.True(t, ok)
	require.Equal(t, 1, from)
	require.Equal(t, 2, to)

	_, _, ok = l.LeveledUp(100, 200)
	require.False(t, ok)
}
