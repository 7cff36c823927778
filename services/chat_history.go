package services

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swissaxa/portal/ai"
)

const (
	// ChatHistoryLimit is how many messages are kept per user, oldest first.
	ChatHistoryLimit = 10
	chatHistoryTTL   = 24 * time.Hour
)

// ChatHistory stores the recent conversation between a user and the assistant.
type ChatHistory interface {
	Recent(ctx context.Context, userID uint) ([]ai.ChatMessage, error)
	Append(ctx context.Context, userID uint, msgs ...ai.ChatMessage) error
	Clear(ctx context.Context, userID uint) error
}

// NewChatHistory picks Redis when rc is non-nil and memory otherwise.
func NewChatHistory(rc *redis.Client) ChatHistory {
	if rc == nil {
		return &memoryChatHistory{items: map[uint][]ai.ChatMessage{}}
	}
	return &redisChatHistory{rc: rc}
}

type memoryChatHistory struct {
	mu    sync.Mutex
	items map[uint][]ai.ChatMessage
}

func (m *memoryChatHistory) Recent(_ context.Context, userID uint) ([]ai.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ai.ChatMessage(nil), m.items[userID]...), nil
}

func (m *memoryChatHistory) Append(_ context.Context, userID uint, msgs ...ai.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.items[userID], msgs...)
	if len(list) > ChatHistoryLimit {
		list = append([]ai.ChatMessage(nil), list[len(list)-ChatHistoryLimit:]...)
	}
	m.items[userID] = list
	return nil
}

func (m *memoryChatHistory) Clear(_ context.Context, userID uint) error {
	m.mu.Lock()
	delete(m.items, userID)
	m.mu.Unlock()
	return nil
}

type redisChatHistory struct {
	rc *redis.Client
}

func chatKey(userID uint) string {
	return "portal:chat:" + strconv.FormatUint(uint64(userID), 10)
}

func (r *redisChatHistory) Recent(ctx context.Context, userID uint) ([]ai.ChatMessage, error) {
	raw, err := r.rc.LRange(ctx, chatKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ai.ChatMessage, 0, len(raw))
	for _, s := range raw {
		var m ai.ChatMessage
		if json.Unmarshal([]byte(s), &m) == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *redisChatHistory) Append(ctx context.Context, userID uint, msgs ...ai.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	vals := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		vals = append(vals, b)
	}
	key := chatKey(userID)
	_, err := r.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, vals...)
		p.LTrim(ctx, key, -ChatHistoryLimit, -1)
		p.Expire(ctx, key, chatHistoryTTL)
		return nil
	})
	return err
}

func (r *redisChatHistory) Clear(ctx context.Context, userID uint) error {
	return r.rc.Del(ctx, chatKey(userID)).Err()
}
