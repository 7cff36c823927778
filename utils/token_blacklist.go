package utils

import (
	"context"
	"sync"
	"time"
)

const blacklistKeyPrefix = "portal:jwt:revoked:"

var (
	revoked   = map[string]time.Time{}
	revokedMu sync.RWMutex
)

// BlacklistToken revokes a session token until its natural expiry.
func BlacklistToken(token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, blacklistKeyPrefix+token, "1", ttl).Err(); err == nil {
			return
		}
	}
	revokedMu.Lock()
	revoked[token] = expiresAt
	revokedMu.Unlock()
}

// IsTokenBlacklisted reports whether token was revoked by a logout.
func IsTokenBlacklisted(token string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if n, err := rc.Exists(ctx, blacklistKeyPrefix+token).Result(); err == nil && n > 0 {
			return true
		}
	}

	revokedMu.RLock()
	expiresAt, ok := revoked[token]
	revokedMu.RUnlock()
	if !ok {
		return false
	}
	if time.Now().After(expiresAt) {
		revokedMu.Lock()
		delete(revoked, token)
		revokedMu.Unlock()
		return false
	}
	return true
}
