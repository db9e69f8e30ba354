package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vexcel-xp-service/internal/app"
	"vexcel-xp-service/internal/domain"
	"vexcel-xp-service/internal/infra/memory"
)

type fixture struct {
	store    *flakyStore
	deps     app.Deps
	users    *app.UserService
	progress *app.ProgressService
	teams    *app.TeamService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loader, err := memory.NewStaticContentLoader(sampleContent())
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	store := &flakyStore{Store: memory.NewStore()}
	deps := app.Deps{
		Store:    store,
		Content:  memory.NewContentRepository(loader, time.Minute),
		Leveling: domain.NewLeveling(500),
		Events:   app.NewHub(),
		Gate:     app.NewGate(),
	}
	return &fixture{
		store:    store,
		deps:     deps,
		users:    app.NewUserService(deps),
		progress: app.NewProgressService(deps),
		teams:    app.NewTeamService(deps),
	}
}

func (f *fixture) signIn(t *testing.T, userID string) {
	t.Helper()
	if _, err := f.users.SignIn(context.Background(), domain.Identity{ID: userID, DisplayName: userID}); err != nil {
		t.Fatalf("sign in %s: %v", userID, err)
	}
}

func (f *fixture) user(t *testing.T, userID string) domain.User {
	t.Helper()
	u, err := f.deps.Store.GetUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("get user %s: %v", userID, err)
	}
	return u
}

func (f *fixture) team(t *testing.T, teamID string) domain.Team {
	t.Helper()
	team, err := f.deps.Store.GetTeam(context.Background(), teamID)
	if err != nil {
		t.Fatalf("get team %s: %v", teamID, err)
	}
	return team
}

// flakyStore fails every Apply while fail is set.
type flakyStore struct {
	app.Store
	mu   sync.Mutex
	fail bool
}

func (s *flakyStore) setFail(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

func (s *flakyStore) Apply(ctx context.Context, ops ...domain.Op) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return domain.Unavailable("test.Apply", errors.New("connection refused"))
	}
	return s.Store.Apply(ctx, ops...)
}

func sampleContent() domain.Content {
	return domain.Content{
		Modules: []domain.ModuleDoc{{
			ID:    "m1",
			Title: "Basics",
			Activities: []domain.ActivityDoc{
				{ID: "l1", Type: domain.TypeLesson, Title: "Intro", XP: 20},
				{ID: "q1", Type: domain.TypeQuiz, Title: "Check", XP: 50, Questions: []domain.Question{
					{ID: "q1-1", Prompt: "2 + 2?", Options: []string{"3", "4", "5"}, Correct: 1},
					{ID: "q1-2", Prompt: "3 + 3?", Options: []string{"6", "7", "8"}, Correct: 0},
					{ID: "q1-3", Prompt: "5 - 1?", Options: []string{"3", "5", "4"}, Correct: 2},
				}},
				{ID: "g1", Type: domain.TypeGame, Title: "Warm-up"},
			},
		}},
		Challenge: challengeBank(),
	}
}

func challengeBank() []domain.Question {
	return []domain.Question{
		{ID: "s1", Prompt: "H2O?", Options: []string{"water", "salt"}, Correct: 0, Category: "science"},
		{ID: "s2", Prompt: "Closest star?", Options: []string{"Vega", "Sun"}, Correct: 1, Category: "science"},
		{ID: "s3", Prompt: "Boiling point of water?", Options: []string{"100C", "50C"}, Correct: 0, Category: "science"},
		{ID: "s4", Prompt: "Red planet?", Options: []string{"Venus", "Mars"}, Correct: 1, Category: "science"},
		{ID: "s5", Prompt: "Gas we breathe?", Options: []string{"oxygen", "neon"}, Correct: 0, Category: "science"},
		{ID: "s6", Prompt: "Plants make food by?", Options: []string{"osmosis", "photosynthesis"}, Correct: 1, Category: "science"},
		{ID: "m1", Prompt: "7 x 6?", Options: []string{"42", "36"}, Correct: 0, Category: "math"},
		{ID: "m2", Prompt: "9 x 9?", Options: []string{"18", "81"}, Correct: 1, Category: "math"},
	}
}

func correctAnswers() map[string]int {
	out := make(map[string]int)
	for _, q := range challengeBank() {
		out[q.ID] = q.Correct
	}
	return out
}

// drain collects events already queued on ch.
func drain(ch <-chan app.Event) []app.Event {
	var out []app.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasEvent(events []app.Event, typ string) bool {
	for _, ev := range events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}
