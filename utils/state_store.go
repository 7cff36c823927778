package utils

import (
	"context"
	"sync"
	"time"
)

const oauthStateKeyPrefix = "portal:oauth:state:"

var (
	oauthStates   = map[string]time.Time{}
	oauthStatesMu sync.Mutex
)

// SaveState remembers an OAuth state value for ttl so the callback can be matched to its login.
func SaveState(state string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, oauthStateKeyPrefix+state, "1", ttl).Err(); err == nil {
			return
		}
	}
	oauthStatesMu.Lock()
	oauthStates[state] = time.Now().Add(ttl)
	oauthStatesMu.Unlock()
}

// ConsumeState validates and removes a state value. Each state is accepted once.
func ConsumeState(state string) bool {
	if state == "" {
		return false
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if v, err := rc.GetDel(ctx, oauthStateKeyPrefix+state).Result(); err == nil && v != "" {
			return true
		}
	}

	oauthStatesMu.Lock()
	expiresAt, ok := oauthStates[state]
	if ok {
		delete(oauthStates, state)
	}
	oauthStatesMu.Unlock()
	return ok && time.Now().Before(expiresAt)
}
