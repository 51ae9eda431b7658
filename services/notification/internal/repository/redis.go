package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const processedKeyPrefix = "notification:processed:"

// RedisRepository remembers which broker messages already produced a mail.
type RedisRepository struct {
	Client *redis.Client
	ttl    time.Duration
}

// NewRedisRepository creates a new RedisRepository. Marks expire after ttl.
func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisRepository{Client: client, ttl: ttl}
}

// IsProcessed reports whether messageID was marked.
func (r *RedisRepository) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	if r == nil || r.Client == nil || messageID == "" {
		return false, nil
	}
	n, err := r.Client.Exists(ctx, processedKeyPrefix+messageID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed records messageID. It reports false when the id was already
// marked by someone else.
func (r *RedisRepository) MarkProcessed(ctx context.Context, messageID string) (bool, error) {
	if r == nil || r.Client == nil || messageID == "" {
		return true, nil
	}
	return r.Client.SetNX(ctx, processedKeyPrefix+messageID, time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
}
