package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	sessionPresenceKey = "session:%s:online_users" // ZSet: userID -> last heartbeat (unix)
	sessionTTL         = 24 * time.Hour
	heartbeatWindow    = 60 * time.Second
)

// PresenceCache tracks which collaborators are live in a player
// session, scored by last heartbeat.
type PresenceCache struct {
	client *redis.Client
}

// NewPresenceCache creates a presence cache.
func NewPresenceCache() *PresenceCache {
	return &PresenceCache{client: RedisClient}
}

// UpdateUserPresence records a heartbeat for a user in a session.
func (c *PresenceCache) UpdateUserPresence(ctx context.Context, sessionID string, userID int64) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(sessionPresenceKey, sessionID)
	pipe := c.client.Pipeline()
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: strconv.FormatInt(userID, 10),
	})
	pipe.Expire(ctx, key, sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}
	return nil
}

// RemoveUserPresence drops a user from a session's online set.
func (c *PresenceCache) RemoveUserPresence(ctx context.Context, sessionID string, userID int64) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(sessionPresenceKey, sessionID)
	if err := c.client.ZRem(ctx, key, strconv.FormatInt(userID, 10)).Err(); err != nil {
		return fmt.Errorf("failed to remove presence: %w", err)
	}
	return nil
}

// GetActiveOnlineCount counts users whose heartbeat is within the
// liveness window.
func (c *PresenceCache) GetActiveOnlineCount(ctx context.Context, sessionID string) (int64, error) {
	if c.client == nil {
		return 0, fmt.Errorf("Redis client not initialized")
	}

	key := fmt.Sprintf(sessionPresenceKey, sessionID)
	cutoff := time.Now().Add(-heartbeatWindow).Unix()
	count, err := c.client.ZCount(ctx, key,
		strconv.FormatInt(cutoff, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count online users: %w", err)
	}
	return count, nil
}
