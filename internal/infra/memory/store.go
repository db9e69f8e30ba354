package memory

import (
	"context"
	"sort"
	"sync"

	"vexcel-xp-service/internal/domain"
)

type progressKey struct {
	userID   string
	moduleID string
}

// Store is an in-memory implementation of app.Store. Batches are applied to a
// staged copy and swapped in only when every op succeeds.
type Store struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	teams    map[string]domain.Team
	progress map[progressKey]domain.ProgressRecord
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]domain.User),
		teams:    make(map[string]domain.Team),
		progress: make(map[progressKey]domain.ProgressRecord),
	}
}

func (s *Store) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (s *Store) GetTeam(_ context.Context, teamID string) (domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	team, ok := s.teams[teamID]
	if !ok {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	return cloneTeam(team), nil
}

func (s *Store) FindTeamByCode(_ context.Context, code string) (domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, team := range s.teams {
		if team.Code == code {
			return cloneTeam(team), nil
		}
	}
	return domain.Team{}, domain.ErrTeamNotFound
}

func (s *Store) GetProgress(_ context.Context, userID, moduleID string) (domain.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.progress[progressKey{userID, moduleID}]
	if !ok {
		return domain.NewProgressRecord(userID, moduleID), nil
	}
	return cloneProgress(rec), nil
}

func (s *Store) TopTeams(_ context.Context, limit int) ([]domain.Team, error) {
	s.mu.RLock()
	teams := make([]domain.Team, 0, len(s.teams))
	for _, t := range s.teams {
		teams = append(teams, cloneTeam(t))
	}
	s.mu.RUnlock()

	sort.Slice(teams, func(i, j int) bool {
		if teams[i].XP != teams[j].XP {
			return teams[i].XP > teams[j].XP
		}
		return teams[i].Name < teams[j].Name
	})
	if limit > 0 && len(teams) > limit {
		teams = teams[:limit]
	}
	return teams, nil
}

func (s *Store) TopUsers(_ context.Context, limit int) ([]domain.User, error) {
	s.mu.RLock()
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, cloneUser(u))
	}
	s.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		if users[i].XP != users[j].XP {
			return users[i].XP > users[j].XP
		}
		return users[i].DisplayName < users[j].DisplayName
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// Apply runs ops all-or-nothing.
func (s *Store) Apply(_ context.Context, ops ...domain.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stage := s.stageLocked()
	for _, op := range ops {
		if err := stage.apply(op); err != nil {
			return err
		}
	}
	s.users, s.teams, s.progress = stage.users, stage.teams, stage.progress
	return nil
}

type staged struct {
	users    map[string]domain.User
	teams    map[string]domain.Team
	progress map[progressKey]domain.ProgressRecord
}

func (s *Store) stageLocked() *staged {
	st := &staged{
		users:    make(map[string]domain.User, len(s.users)),
		teams:    make(map[string]domain.Team, len(s.teams)),
		progress: make(map[progressKey]domain.ProgressRecord, len(s.progress)),
	}
	for k, v := range s.users {
		st.users[k] = cloneUser(v)
	}
	for k, v := range s.teams {
		st.teams[k] = cloneTeam(v)
	}
	for k, v := range s.progress {
		st.progress[k] = cloneProgress(v)
	}
	return st
}

func (st *staged) apply(op domain.Op) error {
	switch o := op.(type) {
	case domain.CreateUser:
		if _, ok := st.users[o.User.ID]; ok {
			return nil
		}
		st.users[o.User.ID] = cloneUser(o.User)

	case domain.IncrementUserXP:
		user, ok := st.users[o.UserID]
		if !ok {
			return domain.ErrUserNotFound
		}
		user.XP += o.Delta
		st.users[o.UserID] = user

	case domain.CompleteActivity:
		user, ok := st.users[o.UserID]
		if !ok {
			return domain.ErrUserNotFound
		}
		rec := st.record(o.UserID, o.ModuleID)
		if rec.Activities[o.ActivityID].Completed {
			return domain.ErrAlreadyCompleted
		}
		rec.Activities[o.ActivityID] = domain.ActivityProgress{Completed: true, Score: copyScore(o.Score)}
		rec.XP += o.XP
		st.progress[progressKey{o.UserID, o.ModuleID}] = rec
		user.Completed = append(user.Completed, o.ActivityID)
		st.users[o.UserID] = user

	case domain.RecordScore:
		if _, ok := st.users[o.UserID]; !ok {
			return domain.ErrUserNotFound
		}
		rec := st.record(o.UserID, o.ModuleID)
		entry := rec.Activities[o.ActivityID]
		entry.Score = copyScore(o.Score)
		rec.Activities[o.ActivityID] = entry
		st.progress[progressKey{o.UserID, o.ModuleID}] = rec

	case domain.IncrementTeamXP:
		team, ok := st.teams[o.TeamID]
		if !ok {
			return domain.ErrTeamNotFound
		}
		team.XP += o.Delta
		st.teams[o.TeamID] = team

	case domain.CreateTeam:
		for _, t := range st.teams {
			if t.Code == o.Team.Code {
				return domain.ErrTeamCodeTaken
			}
		}
		team := cloneTeam(o.Team)
		team.Members = []string{}
		st.teams[team.ID] = team

	case domain.JoinTeam:
		user, ok := st.users[o.UserID]
		if !ok {
			return domain.ErrUserNotFound
		}
		team, ok := st.teams[o.TeamID]
		if !ok {
			return domain.ErrTeamNotFound
		}
		if user.TeamID != "" {
			return domain.ErrAlreadyOnTeam
		}
		user.TeamID = team.ID
		if !team.HasMember(user.ID) {
			team.Members = append(team.Members, user.ID)
		}
		st.users[user.ID] = user
		st.teams[team.ID] = team

	case domain.LeaveTeam:
		user, ok := st.users[o.UserID]
		if !ok {
			return domain.ErrUserNotFound
		}
		if user.TeamID != o.TeamID || o.TeamID == "" {
			return domain.ErrNotOnTeam
		}
		user.TeamID = ""
		st.users[user.ID] = user
		team, ok := st.teams[o.TeamID]
		if !ok {
			return nil
		}
		team.Members = without(team.Members, user.ID)
		if len(team.Members) == 0 {
			delete(st.teams, team.ID)
		} else {
			st.teams[team.ID] = team
		}

	case domain.DeleteTeam:
		team, ok := st.teams[o.TeamID]
		if !ok {
			return domain.ErrTeamNotFound
		}
		for _, memberID := range team.Members {
			if user, ok := st.users[memberID]; ok && user.TeamID == team.ID {
				user.TeamID = ""
				st.users[memberID] = user
			}
		}
		delete(st.teams, team.ID)

	default:
		return domain.ErrInvalidInput
	}
	return nil
}

func (st *staged) record(userID, moduleID string) domain.ProgressRecord {
	if rec, ok := st.progress[progressKey{userID, moduleID}]; ok {
		return rec
	}
	return domain.NewProgressRecord(userID, moduleID)
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func copyScore(score *int) *int {
	if score == nil {
		return nil
	}
	v := *score
	return &v
}

func cloneUser(u domain.User) domain.User {
	u.Completed = append([]string{}, u.Completed...)
	u.Achievements = append([]string{}, u.Achievements...)
	return u
}

func cloneTeam(t domain.Team) domain.Team {
	t.Members = append([]string{}, t.Members...)
	return t
}

func cloneProgress(p domain.ProgressRecord) domain.ProgressRecord {
	activities := make(map[string]domain.ActivityProgress, len(p.Activities))
	for k, v := range p.Activities {
		v.Score = copyScore(v.Score)
		activities[k] = v
	}
	p.Activities = activities
	return p
}
