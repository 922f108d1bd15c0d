package facade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopmesh/identity/internal/apperror"
)

func TestMemoryStore_SaveGetDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess := NewSession("alice", "usk_abc", time.Hour)
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.APIKey != "usk_abc" || got.Username != "alice" {
		t.Errorf("Get() = %+v, want key usk_abc for alice", got)
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ExpiredSessionIsGone(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess := NewSession("alice", "usk_abc", -time.Minute) // already expired
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() on expired session error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_GetUnknownID(t *testing.T) {
	store := NewMemoryStore()

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrNotFound", err)
	}
}

func TestNewSession_UniqueIDs(t *testing.T) {
	a := NewSession("alice", "usk_a", time.Hour)
	b := NewSession("alice", "usk_b", time.Hour)
	if a.ID == b.ID {
		t.Error("NewSession() produced duplicate IDs")
	}
}
