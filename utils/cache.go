package utils

import (
	"context"
	"encoding/json"
	"time"
)

const (
	defaultCacheTTL = 10 * time.Minute
	cachePrefix     = "portal:cache:"
)

// CacheGetBytes returns cached bytes for key. The second result is false on miss,
// on any Redis error and when Redis is not configured.
func CacheGetBytes(key string) ([]byte, bool) {
	rc := GetRedis()
	if rc == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := rc.Get(ctx, cachePrefix+key).Bytes()
	if err != nil {
		Sugar.Debugf("cache miss key=%s err=%v", key, err)
		return nil, false
	}
	return b, true
}

// CacheGetJSON decodes a cached JSON value into out.
func CacheGetJSON(key string, out interface{}) bool {
	b, ok := CacheGetBytes(key)
	if !ok {
		return false
	}
	return json.Unmarshal(b, out) == nil
}

// CacheSetBytes stores bytes; a non-positive ttl uses the default.
func CacheSetBytes(key string, b []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Set(ctx, cachePrefix+key, b, ttl).Err(); err != nil {
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
}

// CacheSetJSON marshals v and stores JSON bytes.
func CacheSetJSON(key string, v interface{}, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	CacheSetBytes(key, b, ttl)
}

// InvalidateByPrefix deletes cached keys that start with prefix using SCAN.
func InvalidateByPrefix(prefix string) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var cursor uint64
	for i := 0; i < 10; i++ { // bounded rounds
		keys, cur, err := rc.Scan(ctx, cursor, cachePrefix+prefix+"*", 500).Result()
		if err != nil {
			return
		}
		cursor = cur
		if len(keys) > 0 {
			pipe := rc.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			_, _ = pipe.Exec(ctx)
		}
		if cursor == 0 {
			return
		}
	}
}

// RedisCache adapts the package cache helpers to an injectable value.
type RedisCache struct{}

func (RedisCache) GetJSON(key string, out any) bool { return CacheGetJSON(key, out) }

func (RedisCache) SetJSON(key string, v any, ttl time.Duration) { CacheSetJSON(key, v, ttl) }

func (RedisCache) Invalidate(prefix string) { InvalidateByPrefix(prefix) }
