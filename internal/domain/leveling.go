package domain

// DefaultXPPerLevel is the authoritative XP needed per level unless configured.
const DefaultXPPerLevel = 500

// Leveling maps cumulative XP to a level.
type Leveling struct {
	XPPerLevel int
}

// NewLeveling returns a Leveling; non-positive values fall back to DefaultXPPerLevel.
func NewLeveling(xpPerLevel int) Leveling {
	if xpPerLevel <= 0 {
		xpPerLevel = DefaultXPPerLevel
	}
	return Leveling{XPPerLevel: xpPerLevel}
}

func (l Leveling) per() int {
	if l.XPPerLevel <= 0 {
		return DefaultXPPerLevel
	}
	return l.XPPerLevel
}

// Level returns floor(xp / XPPerLevel) + 1. Negative XP counts as zero.
func (l Leveling) Level(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/l.per() + 1
}

// Progress returns XP earned inside the current level and XP still needed for the next.
func (l Leveling) Progress(xp int) (into, remaining int) {
	if xp < 0 {
		xp = 0
	}
	into = xp % l.per()
	return into, l.per() - into
}

// LeveledUp reports a one-way transition to a higher level between two XP values.
func (l Leveling) LeveledUp(prevXP, nextXP int) (from, to int, ok bool) {
	from, to = l.Level(prevXP), l.Level(nextXP)
	return from, to, to > from
}
