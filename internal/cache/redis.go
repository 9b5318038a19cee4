package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aungmyo/thazin/internal/config"
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}

// PushTail appends ids to the tail of the list at key (queue refill order).
func (c *RedisCache) PushTail(ctx context.Context, key string, ids ...uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return c.Client.RPush(ctx, key, formatIDs(ids)...).Err()
}

// PushHead inserts ids at the head of the list so that ids[0] ends up first.
// LPUSH reverses its arguments, so they are pushed back-to-front.
func (c *RedisCache) PushHead(ctx context.Context, key string, ids ...uint64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		args = append(args, strconv.FormatUint(ids[i], 10))
	}
	return c.Client.LPush(ctx, key, args...).Err()
}

// PopHead removes and returns the first list element.
// Returns (0, false, nil) when the list is empty.
func (c *RedisCache) PopHead(ctx context.Context, key string) (uint64, bool, error) {
	val, err := c.Client.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt list entry %q: %w", val, err)
	}
	return id, true, nil
}

// FanOutHead LPUSHes value onto every listed key in one pipeline. The pipeline
// is not transactional: a partial fan-out on failure is acceptable, so the
// number of successful pushes is returned alongside the first error.
func (c *RedisCache) FanOutHead(ctx context.Context, keys []string, value uint64) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	pipe := c.Client.Pipeline()
	for _, key := range keys {
		pipe.LPush(ctx, key, strconv.FormatUint(value, 10))
	}
	cmds, err := pipe.Exec(ctx)

	delivered := 0
	for _, cmd := range cmds {
		if cmd.Err() == nil {
			delivered++
		}
	}
	return delivered, err
}

// GetDel atomically reads and clears a key via a MULTI/EXEC pipeline.
// Returns ("", false, nil) when the key is absent or expired.
func (c *RedisCache) GetDel(ctx context.Context, key string) (string, bool, error) {
	pipe := c.Client.TxPipeline()
	getCmd := pipe.Get(ctx, key)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return "", false, err
	}

	val, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// IncrementWindow bumps a fixed-window counter, starting the window TTL on the
// first hit. Returns the count and the remaining window.
//
// INCR, EXPIRE NX and TTL run in one MULTI/EXEC, so a counter can never be
// left behind without a TTL; EXPIRE NX also re-arms a key that somehow lost
// its expiry, instead of throttling that user forever.
func (c *RedisCache) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := c.Client.TxPipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttlCmd := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("increment window key: %w", err)
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}
	return incrCmd.Val(), ttl, nil
}

// KeyForQueue generates the Redis key for a viewer's discovery queue.
func (c *RedisCache) KeyForQueue(viewerID uint64) string {
	return fmt.Sprintf("discover:queue:%d", viewerID)
}

// KeyForRewind generates the Redis key for a user's rewind slot.
func (c *RedisCache) KeyForRewind(userID uint64) string {
	return fmt.Sprintf("discover:rewind:%d", userID)
}

// KeyForThrottle generates the Redis key for a user's request-spacing window.
func (c *RedisCache) KeyForThrottle(userID uint64) string {
	return fmt.Sprintf("throttle:user:%d", userID)
}

func formatIDs(ids []uint64) []interface{} {
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, strconv.FormatUint(id, 10))
	}
	return args
}
