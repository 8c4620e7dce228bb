package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fortuna/propline/internal/logging"
)

// DefaultPrefix namespaces cached upstream pages.
const DefaultPrefix = "propline:sgo:"

// RedisCache stores raw upstream responses so repeated backfills of the same window skip the API.
type RedisCache struct {
	client *redis.Client
	prefix string
	log    *logrus.Entry
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisCacheFromClient(client, DefaultPrefix), nil
}

// NewRedisCacheFromClient wraps an existing client. An empty prefix uses DefaultPrefix.
func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		log:    logging.For("cache"),
	}
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Client returns the underlying Redis client
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// HealthCheck pings Redis to verify connection
func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Lookup returns a cached body. Any Redis failure is a miss.
func (rc *RedisCache) Lookup(ctx context.Context, key string) ([]byte, bool) {
	body, err := rc.client.Get(ctx, rc.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		rc.log.WithError(err).Debug("cache lookup failed")
		return nil, false
	}
	return body, true
}

// Store caches body for ttl. A non-positive ttl stores nothing.
func (rc *RedisCache) Store(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return rc.client.Set(ctx, rc.prefix+key, body, ttl).Err()
}

// Invalidate removes cached entries.
func (rc *RedisCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = rc.prefix + k
	}
	return rc.client.Del(ctx, full...).Err()
}
