package app

import (
	"context"

	"vexcel-xp-service/internal/domain"
)

// Store is the document store contract: point reads, ranked range reads and
// one all-or-nothing batch write per cross-entity mutation.
type Store interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	GetTeam(ctx context.Context, teamID string) (domain.Team, error)
	FindTeamByCode(ctx context.Context, code string) (domain.Team, error)
	// GetProgress returns an empty record when the user has no progress in the module.
	GetProgress(ctx context.Context, userID, moduleID string) (domain.ProgressRecord, error)
	// TopTeams returns at most limit teams ordered by XP desc, name asc.
	TopTeams(ctx context.Context, limit int) ([]domain.Team, error)
	// TopUsers returns at most limit users ordered by XP desc, display name asc.
	TopUsers(ctx context.Context, limit int) ([]domain.User, error)
	Apply(ctx context.Context, ops ...domain.Op) error
}

// ContentRepository serves read-only learning content (from cache/backing store).
type ContentRepository interface {
	GetModule(ctx context.Context, moduleID string) (domain.Module, error)
	ChallengeBank(ctx context.Context) ([]domain.Question, error)
}

// ChallengeRepository abstracts where live challenge sessions are kept (in-memory, Redis, etc).
type ChallengeRepository interface {
	Put(userID string, session *ChallengeSession)
	Get(userID string) (*ChallengeSession, bool)
	Delete(userID string)
}
