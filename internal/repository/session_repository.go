package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"cyberchat-go/internal/model"
)

// ErrSessionNotMirrored is returned when redis holds no history for a session.
var ErrSessionNotMirrored = errors.New("session history not found")

// SessionRepository mirrors session histories in Redis so a session survives a restart.
type SessionRepository interface {
	SaveHistory(ctx context.Context, sessionID string, turns []model.Turn) error
	LoadHistory(ctx context.Context, sessionID string) ([]model.Turn, error)
	Delete(ctx context.Context, sessionID string) error
}

type redisSessionRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewSessionRepository creates a SessionRepository. Keys expire ttl after the last write.
func NewSessionRepository(redisClient *redis.Client, ttl time.Duration) SessionRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisSessionRepository{redisClient: redisClient, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:history", sessionID)
}

// SaveHistory replaces the mirrored history with turns.
func (r *redisSessionRepository) SaveHistory(ctx context.Context, sessionID string, turns []model.Turn) error {
	jsonData, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to marshal session history: %w", err)
	}
	if err := r.redisClient.Set(ctx, sessionKey(sessionID), jsonData, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session history: %w", err)
	}
	return nil
}

// LoadHistory returns the mirrored turns, or ErrSessionNotMirrored.
func (r *redisSessionRepository) LoadHistory(ctx context.Context, sessionID string) ([]model.Turn, error) {
	jsonData, err := r.redisClient.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotMirrored
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session history: %w", err)
	}
	var turns []model.Turn
	if err := json.Unmarshal([]byte(jsonData), &turns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session history: %w", err)
	}
	return turns, nil
}

func (r *redisSessionRepository) Delete(ctx context.Context, sessionID string) error {
	return r.redisClient.Del(ctx, sessionKey(sessionID)).Err()
}
