package store

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestSQLiteStoreSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if err := store.CreateSession(ctx, "s1", time.Now()); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := store.CloseSession(ctx, "s1"); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
}

func TestSQLiteStoreAppendTurn(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if err := store.CreateSession(ctx, "s1", time.Now()); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	user := &TurnRecord{
		TurnID:    "t1",
		SessionID: "s1",
		Role:      "user",
		Prompt:    "make a greeter",
		Context:   []string{"the greeter speaks French"},
		CreatedAt: time.Now(),
	}
	if err := store.AppendTurn(ctx, user); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	agent := &TurnRecord{
		TurnID:    "t2",
		SessionID: "s1",
		Role:      "agent",
		Filename:  "greeter.based",
		Code:      "loop:\n  say(\"bonjour\")",
		CreatedAt: time.Now(),
	}
	if err := store.AppendTurn(ctx, agent); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	count, err := store.CountTurns(ctx, "s1")
	if err != nil {
		t.Fatalf("CountTurns failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 turns, got %d", count)
	}
}

func TestSQLiteStoreForeignKey(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	rec := &TurnRecord{TurnID: "t1", SessionID: "missing", Role: "user", CreatedAt: time.Now()}
	if err := store.AppendTurn(ctx, rec); err == nil {
		t.Fatal("expected foreign key violation for unknown session")
	}
}
