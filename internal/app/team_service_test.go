package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vexcel-xp-service/internal/app"
	"vexcel-xp-service/internal/domain"
)

func TestCreateTeamMakesCreatorMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1")

	team, err := f.teams.CreateTeam(ctx, "u1", "  Owls  ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if team.Name != "Owls" || team.XP != 0 || team.CreatorID != "u1" {
		t.Fatalf("unexpected team %+v", team)
	}
	if len(team.Code) != 6 || strings.ToUpper(team.Code) != team.Code {
		t.Fatalf("expected 6 char uppercase code, got %q", team.Code)
	}
	if !team.HasMember("u1") || f.user(t, "u1").TeamID != team.ID {
		t.Fatalf("creator should be a member")
	}

	if _, err := f.teams.CreateTeam(ctx, "u1", "Bats"); !errors.Is(err, domain.ErrAlreadyOnTeam) {
		t.Fatalf("expected already on team, got %v", err)
	}
}

func TestCreateTeamRejectsEmptyName(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "u1")
	if _, err := f.teams.CreateTeam(context.Background(), "u1", "   "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestJoinTeamByCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1")
	f.signIn(t, "u2")

	team, err := f.teams.CreateTeam(ctx, "u1", "Owls")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	joined, err := f.teams.JoinTeam(ctx, "u2", " "+strings.ToLower(team.Code)+" ")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(joined.Members) != 2 {
		t.Fatalf("expected 2 members, got %v", joined.Members)
	}
	if _, err := f.teams.JoinTeam(ctx, "u2", team.Code); !errors.Is(err, domain.ErrAlreadyOnTeam) {
		t.Fatalf("expected already on team, got %v", err)
	}

	f.signIn(t, "u3")
	if _, err := f.teams.JoinTeam(ctx, "u3", "ZZZZZZ"); !errors.Is(err, domain.ErrTeamNotFound) {
		t.Fatalf("expected team not found, got %v", err)
	}
}

func TestLeaveTeamKeepsXPAndDeletesWhenEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1")
	f.signIn(t, "u2")

	team, _ := f.teams.CreateTeam(ctx, "u1", "Owls")
	if _, err := f.teams.JoinTeam(ctx, "u2", team.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := f.progress.CompleteActivity(ctx, "u2", "m1", "l1", domain.Attempt{}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	deleted, err := f.teams.LeaveTeam(ctx, "u2")
	if err != nil || deleted {
		t.Fatalf("leave: deleted=%v err=%v", deleted, err)
	}
	if got := f.team(t, team.ID).XP; got != 20 {
		t.Fatalf("expected team to keep 20 xp, got %d", got)
	}
	if _, err := f.teams.LeaveTeam(ctx, "u2"); !errors.Is(err, domain.ErrNotOnTeam) {
		t.Fatalf("expected not on team, got %v", err)
	}

	deleted, err = f.teams.LeaveTeam(ctx, "u1")
	if err != nil || !deleted {
		t.Fatalf("expected last leave to delete team: deleted=%v err=%v", deleted, err)
	}
	if _, err := f.teams.Team(ctx, team.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected team gone, got %v", err)
	}
}

func TestDeleteTeamCreatorOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1")
	f.signIn(t, "u2")

	team, _ := f.teams.CreateTeam(ctx, "u1", "Owls")
	if _, err := f.teams.JoinTeam(ctx, "u2", team.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := f.teams.DeleteTeam(ctx, "u2", team.ID); !errors.Is(err, domain.ErrNotTeamCreator) {
		t.Fatalf("expected not creator, got %v", err)
	}
	if err := f.teams.DeleteTeam(ctx, "u1", team.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if f.user(t, "u1").TeamID != "" || f.user(t, "u2").TeamID != "" {
		t.Fatalf("expected members detached")
	}
}

func TestMirrorXP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1")
	team, _ := f.teams.CreateTeam(ctx, "u1", "Owls")

	if err := f.teams.MirrorXP(ctx, team.ID, 15); err != nil {
		t.Fatalf("mirror: %v", err)
	}
	if err := f.teams.MirrorXP(ctx, team.ID, 0); err != nil {
		t.Fatalf("mirror zero: %v", err)
	}
	if got := f.team(t, team.ID).XP; got != 15 {
		t.Fatalf("expected 15, got %d", got)
	}
	if err := f.teams.MirrorXP(ctx, "missing", 5); !errors.Is(err, domain.ErrTeamNotFound) {
		t.Fatalf("expected team not found, got %v", err)
	}
}

func TestLeaderboards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, id := range []string{"u1", "u2", "u3"} {
		f.signIn(t, id)
	}
	owls, _ := f.teams.CreateTeam(ctx, "u1", "Owls")
	bats, _ := f.teams.CreateTeam(ctx, "u2", "Bats")
	if _, err := f.teams.JoinTeam(ctx, "u3", owls.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	for _, c := range []struct{ user, activity string }{{"u1", "l1"}, {"u3", "g1"}, {"u2", "l1"}} {
		if _, err := f.progress.CompleteActivity(ctx, c.user, "m1", c.activity, domain.Attempt{}); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	board, err := f.teams.Leaderboard(ctx, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board.Entries) != 2 || board.Entries[0].ID != owls.ID || board.Entries[1].ID != bats.ID {
		t.Fatalf("unexpected team order %+v", board.Entries)
	}
	if board.Entries[0].Rank != 1 || board.Entries[0].XP != 50 {
		t.Fatalf("unexpected leader %+v", board.Entries[0])
	}

	users, err := f.teams.UserLeaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("user leaderboard: %v", err)
	}
	if len(users.Entries) != 2 || users.Entries[0].ID != "u3" {
		t.Fatalf("unexpected user order %+v", users.Entries)
	}
}

func TestBroadcastLeaderboardReachesEveryone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, "u1")
	if _, err := f.teams.CreateTeam(ctx, "u1", "Owls"); err != nil {
		t.Fatalf("create: %v", err)
	}
	a, cancelA := f.deps.Events.Subscribe("u1")
	defer cancelA()
	b, cancelB := f.deps.Events.Subscribe("someone-else")
	defer cancelB()

	f.teams.BroadcastLeaderboard(ctx)

	for _, ch := range []<-chan app.Event{a, b} {
		if !hasEvent(drain(ch), app.EventLeaderboard) {
			t.Fatalf("expected leaderboard event")
		}
	}
}
