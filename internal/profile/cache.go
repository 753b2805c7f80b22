package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is the key-value slice of the redis client the directory needs.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedDirectory wraps a Directory with a redis cache-aside layer.
// Profile records are owned by the external service and only read here,
// so entries simply expire; there is no invalidation path.
type CachedDirectory struct {
	next   Directory
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedDirectory(next Directory, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedDirectory {
	return &CachedDirectory{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func (d *CachedDirectory) Email(ctx context.Context, userID string) (string, error) {
	return d.lookup(ctx, userID, "email", d.next.Email)
}

func (d *CachedDirectory) PhoneNumber(ctx context.Context, userID string) (string, error) {
	return d.lookup(ctx, userID, "phone", d.next.PhoneNumber)
}

func (d *CachedDirectory) FCMToken(ctx context.Context, userID string) (string, error) {
	return d.lookup(ctx, userID, "fcm", d.next.FCMToken)
}

func (d *CachedDirectory) lookup(ctx context.Context, userID, kind string, fetch func(context.Context, string) (string, error)) (string, error) {
	key := fmt.Sprintf("profile:%s:%s", kind, userID)

	value, err := d.cache.Get(ctx, key).Result()
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, redis.Nil) {
		// Cache trouble degrades to a direct lookup.
		d.logger.Warn("profile cache read failed", zap.String("key", key), zap.Error(err))
	}

	value, err = fetch(ctx, userID)
	if err != nil {
		return "", err
	}

	if err := d.cache.Set(ctx, key, value, d.ttl).Err(); err != nil {
		d.logger.Warn("profile cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}
