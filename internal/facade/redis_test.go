package facade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/shopmesh/identity/internal/apperror"
)

// newTestRedisStore backs the store with an embedded miniredis instance.
func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore_SaveGetDelete(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	sess := NewSession("alice", "usk_abc", time.Hour)
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.APIKey != "usk_abc" {
		t.Errorf("APIKey = %q, want usk_abc", got.APIKey)
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
	}
}

func TestRedisStore_SessionExpiresWithTTL(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	sess := NewSession("alice", "usk_abc", time.Minute)
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// miniredis lets us advance its clock instead of sleeping.
	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() after TTL error = %v, want ErrNotFound", err)
	}
}

func TestRedisStore_RejectsAlreadyExpiredSession(t *testing.T) {
	store, _ := newTestRedisStore(t)

	sess := NewSession("alice", "usk_abc", -time.Minute)
	if err := store.Save(context.Background(), sess); err == nil {
		t.Error("Save() should reject a session that is already expired")
	}
}
