// Package cache keeps the hot, frequently-polled export state in Redis:
// job progress, job snapshots for read endpoints, and cancellation flags
// the worker polls mid-render.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipforge/clipforge/pkg/models"
)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// NewCacheWithClient wraps an existing client, used by tests
func NewCacheWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Export Job Operations

// SetJob caches an export job snapshot
func (c *Cache) SetJob(ctx context.Context, job *models.ExportJob, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal export job: %w", err)
	}

	key := fmt.Sprintf("export:job:%s", job.ID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetJob retrieves an export job snapshot from cache
func (c *Cache) GetJob(ctx context.Context, jobID string) (*models.ExportJob, error) {
	key := fmt.Sprintf("export:job:%s", jobID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get export job from cache: %w", err)
	}

	var job models.ExportJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal export job: %w", err)
	}

	return &job, nil
}

// DeleteJob removes an export job snapshot from cache
func (c *Cache) DeleteJob(ctx context.Context, jobID string) error {
	key := fmt.Sprintf("export:job:%s", jobID)
	return c.client.Del(ctx, key).Err()
}

// Progress Operations

// SetJobProgress stores the latest integer progress for quick polling
func (c *Cache) SetJobProgress(ctx context.Context, jobID string, progress int, ttl time.Duration) error {
	key := fmt.Sprintf("export:progress:%s", jobID)
	return c.client.Set(ctx, key, progress, ttl).Err()
}

// GetJobProgress retrieves the latest progress. Returns -1 on cache miss.
func (c *Cache) GetJobProgress(ctx context.Context, jobID string) (int, error) {
	key := fmt.Sprintf("export:progress:%s", jobID)
	progress, err := c.client.Get(ctx, key).Int()
	if err != nil {
		if err == redis.Nil {
			return -1, nil
		}
		return -1, fmt.Errorf("failed to get progress from cache: %w", err)
	}
	return progress, nil
}

// Cancellation Flags

// RequestCancel raises the cancellation flag the rendering worker polls
func (c *Cache) RequestCancel(ctx context.Context, jobID string, ttl time.Duration) error {
	key := fmt.Sprintf("export:cancel:%s", jobID)
	return c.client.Set(ctx, key, "1", ttl).Err()
}

// CancelRequested reports whether cancellation was requested for a job
func (c *Cache) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	key := fmt.Sprintf("export:cancel:%s", jobID)
	result, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cancel flag: %w", err)
	}
	return result > 0, nil
}

// ClearCancel removes the cancellation flag once the worker has acted on it
func (c *Cache) ClearCancel(ctx context.Context, jobID string) error {
	key := fmt.Sprintf("export:cancel:%s", jobID)
	return c.client.Del(ctx, key).Err()
}

// Media Info Operations

// SetMediaInfo caches probed metadata for an uploaded media file
func (c *Cache) SetMediaInfo(ctx context.Context, mediaID string, info interface{}, ttl time.Duration) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal media info: %w", err)
	}
	key := fmt.Sprintf("media:info:%s", mediaID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetMediaInfo retrieves probed media metadata. Returns false on cache miss.
func (c *Cache) GetMediaInfo(ctx context.Context, mediaID string, dest interface{}) (bool, error) {
	key := fmt.Sprintf("media:info:%s", mediaID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to get media info from cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal media info: %w", err)
	}
	return true, nil
}

// Locking Operations

// AcquireLock attempts to acquire a distributed lock, used to keep two
// workers off the same export job.
func (c *Cache) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.SetNX(ctx, key, "locked", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Cache) ReleaseLock(ctx context.Context, resource string) error {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.Del(ctx, key).Err()
}

// Health check
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
