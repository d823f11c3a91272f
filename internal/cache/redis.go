package cache

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var Client *redis.Client

var (
	newRedisClient = func(opts *redis.Options) *redis.Client {
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
	parseRedisURL = redis.ParseURL
)

const (
	signalDedupPrefix = "tradepilot:signal:ext:"
	regimeKey         = "tradepilot:regime:current"
)

func InitRedis(ctx context.Context) {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		addr = "localhost:6379"
	}

	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := parseRedisURL(addr)
		if err != nil {
			log.Fatalf("failed to parse REDIS_URL: %v", err)
		}
		opts = parsed
	}

	Client = newRedisClient(opts)
	if err := pingRedis(ctx, Client); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis")
}

// ClaimExternalID takes the dedup slot for a source-provided signal id.
// Returns false when another delivery already holds it. The database unique
// index remains the authority; this is only a fast path that spares a
// round-trip on hot re-deliveries.
func ClaimExternalID(ctx context.Context, externalID string, ttl time.Duration) (bool, error) {
	if Client == nil || externalID == "" {
		return true, nil
	}
	return Client.SetNX(ctx, signalDedupPrefix+externalID, 1, ttl).Result()
}

// ReleaseExternalID frees a claimed dedup slot after a failed persist so the
// source's retry is not swallowed.
func ReleaseExternalID(ctx context.Context, externalID string) {
	if Client == nil || externalID == "" {
		return
	}
	Client.Del(ctx, signalDedupPrefix+externalID)
}

// PublishRegime stores the current regime snapshot as JSON for out-of-process
// readers (dashboard, reporting). Best effort.
func PublishRegime(ctx context.Context, payload []byte, ttl time.Duration) error {
	if Client == nil {
		return nil
	}
	return Client.Set(ctx, regimeKey, payload, ttl).Err()
}
