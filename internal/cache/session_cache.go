package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chepyr/go-task-api/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrMiss = errors.New("session not cached")

// SessionCache is a read-through cache in front of the sessions table.
type SessionCache interface {
	Get(ctx context.Context, token string) (*models.Session, error)
	Set(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, token string) error
}

type RedisSessionCache struct {
	client *redis.Client
}

func NewRedisSessionCache(client *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{client: client}
}

// OpenRedis parses url, tunes the pool and pings the server.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.PoolSize = 20
	opt.MinIdleConns = 2
	opt.DialTimeout = 5 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func sessionKey(token string) string {
	return "session:" + token
}

func (c *RedisSessionCache) Get(ctx context.Context, token string) (*models.Session, error) {
	data, err := c.client.HGetAll(ctx, sessionKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall session: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrMiss
	}
	return decodeSession(token, data)
}

// Set stores the session until it expires. Already expired sessions are skipped.
func (c *RedisSessionCache) Set(ctx context.Context, session *models.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	key := sessionKey(session.ID)

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, encodeSession(session))
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (c *RedisSessionCache) Delete(ctx context.Context, token string) error {
	if err := c.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func encodeSession(session *models.Session) map[string]any {
	return map[string]any{
		"user_id":    session.UserID.String(),
		"expires_at": session.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"created_at": session.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeSession(token string, data map[string]string) (*models.Session, error) {
	userID, err := uuid.Parse(data["user_id"])
	if err != nil {
		return nil, fmt.Errorf("decode session user_id: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, data["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("decode session expires_at: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("decode session created_at: %w", err)
	}
	return &models.Session{
		ID:        token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}, nil
}
