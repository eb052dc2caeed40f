package rates

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const cacheKey = "rates:oficial"

// CachedSource wraps another Source with a Redis cache so the upstream
// endpoint is hit at most once per TTL. Cache failures fall through to the
// inner source.
type CachedSource struct {
	inner  Source
	client *redis.Client
	ttl    time.Duration
}

func NewCachedSource(inner Source, addr string, password string, db int, ttl time.Duration) *CachedSource {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &CachedSource{inner: inner, client: client, ttl: ttl}
}

func (c *CachedSource) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *CachedSource) Close() error {
	return c.client.Close()
}

func (c *CachedSource) Rate(ctx context.Context) (decimal.Decimal, error) {
	val, err := c.client.Get(ctx, cacheKey).Result()
	if err == nil {
		if rate, perr := decimal.NewFromString(val); perr == nil && rate.IsPositive() {
			return rate, nil
		}
	}

	rate, err := c.inner.Rate(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	_ = c.client.Set(ctx, cacheKey, rate.String(), c.ttl).Err()
	return rate, nil
}
