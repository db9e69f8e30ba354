package app

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"vexcel-xp-service/internal/domain"
	"vexcel-xp-service/internal/metrics"
)

const (
	joinCodeLength   = 6
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	joinCodeAttempts = 5

	// DefaultLeaderboardLimit bounds leaderboard range reads when no limit is given.
	DefaultLeaderboardLimit = 50
)

// TeamService manages team membership, mirrors member XP and projects leaderboards.
type TeamService struct {
	deps    Deps
	newCode func() string
}

func NewTeamService(deps Deps) *TeamService {
	return &TeamService{deps: deps.withDefaults(), newCode: randomJoinCode}
}

// CreateTeam creates a team with a fresh join code; the creator becomes its first member.
func (s *TeamService) CreateTeam(ctx context.Context, userID, name string) (domain.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Team{}, domain.ErrEmptyTeamName
	}
	release, err := s.deps.Gate.Acquire(userID)
	if err != nil {
		return domain.Team{}, err
	}
	defer release()

	user, err := s.deps.Store.GetUser(ctx, userID)
	if err != nil {
		return domain.Team{}, err
	}
	if user.TeamID != "" {
		return domain.Team{}, domain.ErrAlreadyOnTeam
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return domain.Team{}, err
	}
	team := domain.Team{
		ID:        uuid.NewString(),
		Name:      name,
		Code:      code,
		CreatorID: userID,
		Members:   []string{},
		CreatedAt: s.deps.Now(),
	}
	if err := applyTimed(ctx, s.deps.Store,
		domain.CreateTeam{Team: team},
		domain.JoinTeam{UserID: userID, TeamID: team.ID},
	); err != nil {
		return domain.Team{}, err
	}
	log.WithFields(log.Fields{"team_id": team.ID, "user_id": userID}).Info("team created")
	return s.deps.Store.GetTeam(ctx, team.ID)
}

// JoinTeam adds the user to the team with the given join code. XP the user
// already holds is not added to the team.
func (s *TeamService) JoinTeam(ctx context.Context, userID, code string) (domain.Team, error) {
	release, err := s.deps.Gate.Acquire(userID)
	if err != nil {
		return domain.Team{}, err
	}
	defer release()

	user, err := s.deps.Store.GetUser(ctx, userID)
	if err != nil {
		return domain.Team{}, err
	}
	if user.TeamID != "" {
		return domain.Team{}, domain.ErrAlreadyOnTeam
	}
	team, err := s.deps.Store.FindTeamByCode(ctx, normalizeCode(code))
	if err != nil {
		return domain.Team{}, err
	}
	if err := applyTimed(ctx, s.deps.Store, domain.JoinTeam{UserID: userID, TeamID: team.ID}); err != nil {
		return domain.Team{}, err
	}
	return s.deps.Store.GetTeam(ctx, team.ID)
}

// LeaveTeam removes the user from their team. The team keeps its XP and is
// deleted when its last member leaves; deleted reports that case.
func (s *TeamService) LeaveTeam(ctx context.Context, userID string) (deleted bool, err error) {
	release, err := s.deps.Gate.Acquire(userID)
	if err != nil {
		return false, err
	}
	defer release()

	user, err := s.deps.Store.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if user.TeamID == "" {
		return false, domain.ErrNotOnTeam
	}
	if err := applyTimed(ctx, s.deps.Store, domain.LeaveTeam{UserID: userID, TeamID: user.TeamID}); err != nil {
		return false, err
	}
	if _, err := s.deps.Store.GetTeam(ctx, user.TeamID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.WithField("team_id", user.TeamID).Info("team deleted after last member left")
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// DeleteTeam removes every member and then the team. Only the creator may do it.
func (s *TeamService) DeleteTeam(ctx context.Context, userID, teamID string) error {
	release, err := s.deps.Gate.Acquire(userID)
	if err != nil {
		return err
	}
	defer release()

	team, err := s.deps.Store.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if team.CreatorID != userID {
		return domain.ErrNotTeamCreator
	}
	return applyTimed(ctx, s.deps.Store, domain.DeleteTeam{TeamID: teamID})
}

// MirrorXP adds delta to the team's aggregate XP on its own. Completions mirror
// inside their own batch instead; this is for callers that award XP outside one.
func (s *TeamService) MirrorXP(ctx context.Context, teamID string, delta int) error {
	if delta == 0 {
		return nil
	}
	if _, err := s.deps.Store.GetTeam(ctx, teamID); err != nil {
		return err
	}
	if err := applyTimed(ctx, s.deps.Store, domain.IncrementTeamXP{TeamID: teamID, Delta: delta}); err != nil {
		return err
	}
	metrics.TeamXPMirrored.Add(float64(delta))
	return nil
}

// Team returns a team by ID.
func (s *TeamService) Team(ctx context.Context, teamID string) (domain.Team, error) {
	return s.deps.Store.GetTeam(ctx, teamID)
}

// Leaderboard ranks the top teams by XP; ranks are recomputed on every read.
func (s *TeamService) Leaderboard(ctx context.Context, limit int) (domain.Leaderboard, error) {
	teams, err := s.deps.Store.TopTeams(ctx, clampLimit(limit))
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return domain.RankTeams(teams, s.deps.Now()), nil
}

// UserLeaderboard ranks the top users by XP.
func (s *TeamService) UserLeaderboard(ctx context.Context, limit int) (domain.Leaderboard, error) {
	users, err := s.deps.Store.TopUsers(ctx, clampLimit(limit))
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return domain.RankUsers(users, s.deps.Leveling, s.deps.Now()), nil
}

// BroadcastLeaderboard pushes the current team leaderboard to every connected user.
func (s *TeamService) BroadcastLeaderboard(ctx context.Context) {
	if s.deps.Events == nil {
		return
	}
	board, err := s.Leaderboard(ctx, DefaultLeaderboardLimit)
	if err != nil {
		log.WithError(err).Warn("leaderboard broadcast skipped")
		return
	}
	s.deps.Events.Broadcast(Event{Type: EventLeaderboard, Payload: board})
}

func (s *TeamService) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < joinCodeAttempts; i++ {
		code := s.newCode()
		_, err := s.deps.Store.FindTeamByCode(ctx, code)
		if errors.Is(err, domain.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", domain.ErrTeamCodeTaken
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > DefaultLeaderboardLimit {
		return DefaultLeaderboardLimit
	}
	return limit
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// randomJoinCode draws the code from a random UUID's bytes.
func randomJoinCode() string {
	id := uuid.New()
	code := make([]byte, joinCodeLength)
	for i := range code {
		code[i] = joinCodeAlphabet[int(id[i])%len(joinCodeAlphabet)]
	}
	return string(code)
}
