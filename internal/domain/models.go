package domain

import "time"

// User is a learner. Level is not stored; it is derived from XP with Leveling.
type User struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	Email        string    `json:"email,omitempty"`
	XP           int       `json:"xp"`
	TeamID       string    `json:"teamId,omitempty"`
	Completed    []string  `json:"completed"`
	Achievements []string  `json:"achievements"`
	Streak       int       `json:"streak"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is the profile handed over by the identity provider on sign-in.
type Identity struct {
	ID          string
	DisplayName string
	AvatarURL   string
	Email       string
}

// Team groups users under a join code. XP only grows with XP earned while a member.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatorID string    `json:"creatorId"`
	Members   []string  `json:"members"`
	XP        int       `json:"xp"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether userID is in the member set.
func (t Team) HasMember(userID string) bool {
	for _, id := range t.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// ActivityProgress is the per-activity entry of a progress record.
type ActivityProgress struct {
	Completed bool `json:"completed"`
	Score     *int `json:"score,omitempty"`
}

// ProgressRecord is a user's progress in one module.
// XP always equals the summed rewards of completed activities.
type ProgressRecord struct {
	UserID     string                      `json:"userId"`
	ModuleID   string                      `json:"moduleId"`
	Activities map[string]ActivityProgress `json:"activities"`
	XP         int                         `json:"xp"`
}

// NewProgressRecord returns an empty record for (userID, moduleID).
func NewProgressRecord(userID, moduleID string) ProgressRecord {
	return ProgressRecord{
		UserID:     userID,
		ModuleID:   moduleID,
		Activities: make(map[string]ActivityProgress),
	}
}

// IsCompleted reports whether activityID is marked completed.
func (p ProgressRecord) IsCompleted(activityID string) bool {
	return p.Activities[activityID].Completed
}

// LeaderboardEntry is one ranked row. Rank is 1-based and never stored.
type LeaderboardEntry struct {
	Rank  int    `json:"rank"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	XP    int    `json:"xp"`
	Level int    `json:"level,omitempty"`
}

// Leaderboard captures a ranked projection at read time.
type Leaderboard struct {
	Kind      string             `json:"kind"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Attempt carries the user's input for an activity. Answers holds one selected
// option index per quiz question, in question order; -1 means unanswered.
type Attempt struct {
	Answers []int `json:"answers,omitempty"`
}

// Outcome is the result of scoring an attempt.
type Outcome struct {
	Passed  bool `json:"passed"`
	Score   int  `json:"score"`
	Total   int  `json:"total"`
	XPAward int  `json:"xpAward"`
}

// Percentage returns round(100*score/total), or 100 for activities without questions.
func (o Outcome) Percentage() int {
	if o.Total == 0 {
		return 100
	}
	return RoundRatio(100*o.Score, o.Total)
}

// RoundRatio returns num/den rounded half away from zero for non-negative inputs.
func RoundRatio(num, den int) int {
	if den == 0 {
		return 0
	}
	return (2*num + den) / (2 * den)
}
