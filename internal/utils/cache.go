package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"strconv"       // Key formatting
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
)

// CacheTTL is how long read responses stay cached
const CacheTTL = 60 * time.Second

// Generation counters. Bumping one abandons every key built from it; the old keys expire
// on their own TTL.
const (
	BalanceGenerationKey = "gold:balance:generation" // All balance responses, bumped on rate changes
	AdminGenerationKey   = "admin:cache:generation"  // Admin listings, bumped on every ledger write
)

// BalanceCacheKey is the cache key of a user's balance response within a generation
func BalanceCacheKey(generation int64, userID uint) string {
	return "gold:balance:g" + strconv.FormatInt(generation, 10) + ":user:" + strconv.FormatUint(uint64(userID), 10)
}

// CacheGeneration reads a generation counter. Unset, unreadable or no Redis reads as zero.
func CacheGeneration(ctx context.Context, rdb *redis.Client, key string) int64 {
	if rdb == nil {
		return 0 // Caching disabled
	}
	gen, err := rdb.Get(ctx, key).Int64()
	if err != nil {
		return 0
	}
	return gen
}

// BumpCacheGeneration moves a counter on, abandoning every key built from the old value
func BumpCacheGeneration(ctx context.Context, rdb *redis.Client, key string) error {
	if rdb == nil {
		return nil // Caching disabled
	}
	return rdb.Incr(ctx, key).Err()
}

// GetCache retrieves a value from Redis and unmarshals it into dest. A nil client is a miss.
func GetCache(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil // Caching disabled
	}
	val, err := rdb.Get(ctx, key).Result() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCache sets a value in Redis with a specified TTL
func SetCache(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) error {
	if rdb == nil {
		return nil // Caching disabled
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// DeleteCache deletes keys from Redis
func DeleteCache(ctx context.Context, rdb *redis.Client, keys ...string) error {
	if rdb == nil || len(keys) == 0 {
		return nil // Nothing to invalidate
	}
	return rdb.Del(ctx, keys...).Err() // Delete keys from Redis
}
