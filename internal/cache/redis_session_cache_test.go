package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chepyr/go-task-api/internal/models"
)

func setupTestCache(t *testing.T) (*RedisSessionCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSessionCache(client), srv
}

func newSession(ttl time.Duration) *models.Session {
	now := time.Now().UTC()
	return &models.Session{
		ID:        uuid.NewString(),
		UserID:    uuid.New(),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

func TestRedisSessionCache_SetGet(t *testing.T) {
	c, srv := setupTestCache(t)
	ctx := context.Background()
	session := newSession(time.Hour)

	if err := c.Set(ctx, session); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := srv.TTL(sessionKey(session.ID)); ttl <= 0 || ttl > time.Hour {
		t.Errorf("Expected TTL within an hour, got %v", ttl)
	}

	got, err := c.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != session.ID || got.UserID != session.UserID {
		t.Errorf("Expected %+v, got %+v", session, got)
	}
	if !got.ExpiresAt.Equal(session.ExpiresAt) {
		t.Errorf("Expected expiry %v, got %v", session.ExpiresAt, got.ExpiresAt)
	}
}

func TestRedisSessionCache_Miss(t *testing.T) {
	c, _ := setupTestCache(t)

	if _, err := c.Get(context.Background(), "unknown"); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss, got %v", err)
	}
}

func TestRedisSessionCache_EntriesExpire(t *testing.T) {
	c, srv := setupTestCache(t)
	ctx := context.Background()

	sessions := []*models.Session{newSession(time.Minute), newSession(time.Minute), newSession(time.Minute)}
	for _, s := range sessions {
		if err := c.Set(ctx, s); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	srv.FastForward(2 * time.Minute)

	if keys := srv.Keys(); len(keys) != 0 {
		t.Errorf("Expected no keys after expiry, got %v", keys)
	}
	for _, s := range sessions {
		if _, err := c.Get(ctx, s.ID); !errors.Is(err, ErrMiss) {
			t.Errorf("Expected ErrMiss for %s, got %v", s.ID, err)
		}
	}
}

func TestRedisSessionCache_SkipsExpiredSession(t *testing.T) {
	c, srv := setupTestCache(t)
	session := newSession(-time.Second)

	if err := c.Set(context.Background(), session); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if srv.Exists(sessionKey(session.ID)) {
		t.Error("expired session must not be stored")
	}
}

func TestRedisSessionCache_Delete(t *testing.T) {
	c, srv := setupTestCache(t)
	ctx := context.Background()
	session := newSession(time.Hour)

	if err := c.Set(ctx, session); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Delete(ctx, session.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if srv.Exists(sessionKey(session.ID)) {
		t.Error("Expected session hash to be removed")
	}
	if _, err := c.Get(ctx, session.ID); !errors.Is(err, ErrMiss) {
		t.Errorf("Expected ErrMiss after delete, got %v", err)
	}

	// deleting an absent session is not an error
	if err := c.Delete(ctx, session.ID); err != nil {
		t.Errorf("Delete of absent session: %v", err)
	}
}

func TestOpenRedis(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := OpenRedis(context.Background(), "redis://"+srv.Addr())
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	client.Close()

	if _, err := OpenRedis(context.Background(), "not a url"); err == nil {
		t.Error("Expected error for a malformed url")
	}
}
