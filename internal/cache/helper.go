package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	AppleKeyPrefix     = "apple:%s"
	AppleListKey       = "apples:list"
	AppleSearchPrefix  = "apples:search:%s"
	BlacklistKeyPrefix = "blacklist:%s"
)

const (
	AppleTTL     = 10 * time.Minute
	AppleListTTL = 2 * time.Minute
)

func AppleKey(id string) string {
	return fmt.Sprintf(AppleKeyPrefix, id)
}

func AppleSearchKey(term string) string {
	return fmt.Sprintf(AppleSearchPrefix, term)
}

func BlacklistKey(jti string) string {
	return fmt.Sprintf(BlacklistKeyPrefix, jti)
}

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found or no client.
func GetJSON(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	s, err := rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with TTL.
func SetJSON(ctx context.Context, rdb *redis.Client, key string, v any, ttl time.Duration) error {
	if rdb == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, b, ttl).Err()
}

// Aside tries Redis first; on miss it calls fetch (which must populate dest)
// and stores the result with ttl. Cache read and write failures fall through to fetch.
func Aside(ctx context.Context, rdb *redis.Client, key string, dest any, ttl time.Duration, fetch func() error) error {
	if found, err := GetJSON(ctx, rdb, key, dest); err == nil && found {
		return nil
	}

	if err := fetch(); err != nil {
		return err
	}

	_ = SetJSON(ctx, rdb, key, dest, ttl)
	return nil
}

// Invalidate deletes the given keys, ignoring errors.
func Invalidate(ctx context.Context, rdb *redis.Client, keys ...string) {
	if rdb == nil || len(keys) == 0 {
		return
	}
	rdb.Del(ctx, keys...)
}

// InvalidateApples drops the cached catalog entry, the list and all cached searches.
func InvalidateApples(ctx context.Context, rdb *redis.Client, id string) {
	if rdb == nil {
		return
	}
	keys := []string{AppleListKey}
	if id != "" {
		keys = append(keys, AppleKey(id))
	}
	iter := rdb.Scan(ctx, 0, fmt.Sprintf(AppleSearchPrefix, "*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	Invalidate(ctx, rdb, keys...)
}

// BlacklistToken marks a session token ID as revoked until ttl elapses.
func BlacklistToken(ctx context.Context, rdb *redis.Client, jti string, ttl time.Duration) error {
	if rdb == nil {
		return errors.New("redis client is nil")
	}
	if ttl <= 0 {
		return nil
	}
	return rdb.Set(ctx, BlacklistKey(jti), "1", ttl).Err()
}

// IsBlacklisted reports whether the session token ID was revoked.
func IsBlacklisted(ctx context.Context, rdb *redis.Client, jti string) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	n, err := rdb.Exists(ctx, BlacklistKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
