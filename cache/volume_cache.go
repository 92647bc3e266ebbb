package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const volumeMapKey = "volumes:%d" // Hash: versionID -> volume (0..1)

// VolumeCache persists a user's per-version volume map so it survives
// across player sessions. It backs the player engine's VolumeStore.
type VolumeCache struct {
	client *redis.Client
	userID int64
}

// NewVolumeCache creates a volume cache bound to one user.
func NewVolumeCache(userID int64) *VolumeCache {
	return &VolumeCache{client: RedisClient, userID: userID}
}

func (c *VolumeCache) key() string {
	return fmt.Sprintf(volumeMapKey, c.userID)
}

// Load reads the full volume map for the user. An absent key yields
// an empty map, not an error.
func (c *VolumeCache) Load(ctx context.Context) (map[int64]float64, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	entries, err := c.client.HGetAll(ctx, c.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load volume map: %w", err)
	}

	volumes := make(map[int64]float64, len(entries))
	for field, value := range entries {
		versionID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue // skip malformed fields rather than failing the load
		}
		volume, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		volumes[versionID] = volume
	}
	return volumes, nil
}

// Set stores one version's volume level.
func (c *VolumeCache) Set(ctx context.Context, versionID int64, volume float64) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	err := c.client.HSet(ctx, c.key(), strconv.FormatInt(versionID, 10),
		strconv.FormatFloat(volume, 'f', -1, 64)).Err()
	if err != nil {
		return fmt.Errorf("failed to store volume: %w", err)
	}
	return nil
}
