package memory

import (
	"testing"

	"vexcel-xp-service/internal/app"
)

func TestChallengeStoreLifecycle(t *testing.T) {
	store := NewChallengeStore()
	session := app.NewChallengeSession("s1", "u1", app.ChallengeSettings{})

	store.Put("u1", session)
	got, ok := store.Get("u1")
	if !ok || got.ID() != "s1" {
		t.Fatalf("expected session present")
	}

	store.Delete("u1")
	if _, ok := store.Get("u1"); ok {
		t.Fatalf("expected session removed")
	}
}
