package app

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"vexcel-xp-service/internal/domain"
)

// UserView is a user plus the level figures derived from XP.
type UserView struct {
	domain.User
	Level       int `json:"level"`
	LevelXP     int `json:"levelXp"`
	NextLevelIn int `json:"nextLevelIn"`
}

// UserService provisions users from the identity provider and reads their progress.
type UserService struct {
	deps Deps
}

func NewUserService(deps Deps) *UserService {
	return &UserService{deps: deps.withDefaults()}
}

// SignIn returns the user for identity, creating it on first sign-in.
func (s *UserService) SignIn(ctx context.Context, identity domain.Identity) (UserView, error) {
	if identity.ID == "" {
		return UserView{}, domain.Wrap(domain.ErrInvalidInput, "user.SignIn", errors.New("missing user id"))
	}
	user, err := s.deps.Store.GetUser(ctx, identity.ID)
	if err == nil {
		return s.view(user), nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return UserView{}, err
	}

	user = domain.User{
		ID:           identity.ID,
		DisplayName:  identity.DisplayName,
		AvatarURL:    identity.AvatarURL,
		Email:        identity.Email,
		Completed:    []string{},
		Achievements: []string{},
		CreatedAt:    s.deps.Now(),
	}
	if err := s.deps.Store.Apply(ctx, domain.CreateUser{User: user}); err != nil {
		return UserView{}, err
	}
	log.WithField("user_id", user.ID).Info("user created on first sign-in")

	// Re-read so a concurrent first sign-in resolves to the stored record.
	user, err = s.deps.Store.GetUser(ctx, identity.ID)
	if err != nil {
		return UserView{}, err
	}
	return s.view(user), nil
}

// Profile returns the user with derived level figures.
func (s *UserService) Profile(ctx context.Context, userID string) (UserView, error) {
	user, err := s.deps.Store.GetUser(ctx, userID)
	if err != nil {
		return UserView{}, err
	}
	return s.view(user), nil
}

// Progress returns the user's progress record for a module.
func (s *UserService) Progress(ctx context.Context, userID, moduleID string) (domain.ProgressRecord, error) {
	if _, err := s.deps.Store.GetUser(ctx, userID); err != nil {
		return domain.ProgressRecord{}, err
	}
	if _, err := s.deps.Content.GetModule(ctx, moduleID); err != nil {
		return domain.ProgressRecord{}, err
	}
	return s.deps.Store.GetProgress(ctx, userID, moduleID)
}

func (s *UserService) view(user domain.User) UserView {
	into, remaining := s.deps.Leveling.Progress(user.XP)
	return UserView{
		User:        user,
		Level:       s.deps.Leveling.Level(user.XP),
		LevelXP:     into,
		NextLevelIn: remaining,
	}
}
