package domain

// Op is one keyed mutation inside an atomic batch. Stores apply a batch of ops
// all-or-nothing.
type Op interface {
	op()
}

// CreateUser inserts a user; it is a no-op when the user already exists.
type CreateUser struct {
	User User
}

// IncrementUserXP adds Delta to the user's XP.
type IncrementUserXP struct {
	UserID string
	Delta  int
}

// CompleteActivity marks an activity completed, stores its score and adds XP to
// the module roll-up. The whole batch fails with ErrAlreadyCompleted if the
// activity was already completed.
type CompleteActivity struct {
	UserID     string
	ModuleID   string
	ActivityID string
	Score      *int
	XP         int
}

// RecordScore merges a score into the activity entry without touching completion or XP.
type RecordScore struct {
	UserID     string
	ModuleID   string
	ActivityID string
	Score      *int
}

// IncrementTeamXP adds Delta to a team's aggregate XP.
type IncrementTeamXP struct {
	TeamID string
	Delta  int
}

// CreateTeam inserts a team with no members. The join code must be unique.
type CreateTeam struct {
	Team Team
}

// JoinTeam adds a user to a team. The batch fails with ErrAlreadyOnTeam if the
// user already belongs to a team.
type JoinTeam struct {
	UserID string
	TeamID string
}

// LeaveTeam removes a user from a team and deletes the team once its member set
// is empty. The batch fails with ErrNotOnTeam if the user is not a member.
// Team XP is left untouched.
type LeaveTeam struct {
	UserID string
	TeamID string
}

// DeleteTeam removes a team and clears the team reference of remaining members.
type DeleteTeam struct {
	TeamID string
}

func (CreateUser) op()       {}
func (IncrementUserXP) op()  {}
func (CompleteActivity) op() {}
func (RecordScore) op()      {}
func (IncrementTeamXP) op()  {}
func (CreateTeam) op()       {}
func (JoinTeam) op()         {}
func (LeaveTeam) op()        {}
func (DeleteTeam) op()       {}

// MirrorTeamXP returns the op that mirrors a member's XP delta onto their team,
// or nil when the user has no team or the delta is zero.
func MirrorTeamXP(user User, delta int) Op {
	if user.TeamID == "" || delta == 0 {
		return nil
	}
	return IncrementTeamXP{TeamID: user.TeamID, Delta: delta}
}
