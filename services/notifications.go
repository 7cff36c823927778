package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MaxNotifications is how many notifications are kept per user; older ones drop off.
const MaxNotifications = 50

const markReadMaxAttempts = 5

// Notification types.
const (
	NotificationInfo    = "info"
	NotificationSuccess = "success"
	NotificationWarning = "warning"
	NotificationError   = "error"
)

// Notification is an in-app message shown in the portal's notification centre.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	ActionURL string    `json:"action_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// NotificationStore keeps per-user notifications, newest first.
type NotificationStore interface {
	Add(ctx context.Context, userID uint, n Notification) (Notification, error)
	List(ctx context.Context, userID uint, unreadOnly bool) ([]Notification, error)
	MarkRead(ctx context.Context, userID uint, id string) (bool, error)
	MarkAllRead(ctx context.Context, userID uint) (int, error)
}

// NewNotificationStore picks Redis when rc is non-nil and an in-process map otherwise.
func NewNotificationStore(rc *redis.Client) NotificationStore {
	if rc == nil {
		return NewMemoryNotificationStore()
	}
	return &RedisNotificationStore{rc: rc}
}

func prepareNotification(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Type == "" {
		n.Type = NotificationInfo
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	return n
}

// ClaimUpdatedNotification is sent when a claim moves to a new status.
func ClaimUpdatedNotification(claimNumber, status string) Notification {
	return Notification{
		Title:     fmt.Sprintf("Claim %s Updated", claimNumber),
		Message:   fmt.Sprintf("Your claim status has been updated to: %s", status),
		Type:      NotificationInfo,
		ActionURL: "/services/claims",
	}
}

// AppointmentConfirmedNotification is sent after a booking. agentName may be empty.
func AppointmentConfirmedNotification(when time.Time, agentName string) Notification {
	with := ""
	if agentName != "" {
		with = " with " + agentName
	}
	return Notification{
		Title:     "Appointment Confirmed",
		Message:   fmt.Sprintf("Your appointment%s is confirmed for %s", with, when.Format("2006-01-02 15:04")),
		Type:      NotificationSuccess,
		ActionURL: "/services/scheduling",
	}
}

// MemoryNotificationStore is a mutex guarded map; contents are lost on restart.
type MemoryNotificationStore struct {
	mu    sync.Mutex
	items map[uint][]Notification
}

func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{items: map[uint][]Notification{}}
}

func (m *MemoryNotificationStore) Add(_ context.Context, userID uint, n Notification) (Notification, error) {
	n = prepareNotification(n)
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append([]Notification{n}, m.items[userID]...)
	if len(list) > MaxNotifications {
		list = list[:MaxNotifications]
	}
	m.items[userID] = list
	return n, nil
}

func (m *MemoryNotificationStore) List(_ context.Context, userID uint, unreadOnly bool) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return filterUnread(m.items[userID], unreadOnly), nil
}

func (m *MemoryNotificationStore) MarkRead(_ context.Context, userID uint, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items[userID] {
		if m.items[userID][i].ID == id {
			m.items[userID][i].Read = true
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryNotificationStore) MarkAllRead(_ context.Context, userID uint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.items[userID] {
		if !m.items[userID][i].Read {
			m.items[userID][i].Read = true
			n++
		}
	}
	return n, nil
}

func filterUnread(list []Notification, unreadOnly bool) []Notification {
	out := make([]Notification, 0, len(list))
	for _, n := range list {
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out
}

// RedisNotificationStore keeps each user's notifications as a JSON list, newest at index 0.
type RedisNotificationStore struct {
	rc *redis.Client
}

func notificationKey(userID uint) string {
	return "portal:notifications:" + strconv.FormatUint(uint64(userID), 10)
}

func (r *RedisNotificationStore) Add(ctx context.Context, userID uint, n Notification) (Notification, error) {
	n = prepareNotification(n)
	b, err := json.Marshal(n)
	if err != nil {
		return n, err
	}
	key := notificationKey(userID)
	_, err = r.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, b)
		p.LTrim(ctx, key, 0, MaxNotifications-1)
		return nil
	})
	return n, err
}

func (r *RedisNotificationStore) load(ctx context.Context, userID uint) ([]Notification, error) {
	raw, err := r.rc.LRange(ctx, notificationKey(userID), 0, MaxNotifications-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(raw))
	for _, s := range raw {
		var n Notification
		if json.Unmarshal([]byte(s), &n) == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *RedisNotificationStore) List(ctx context.Context, userID uint, unreadOnly bool) ([]Notification, error) {
	list, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return filterUnread(list, unreadOnly), nil
}

// markReadUpdates returns the list positions to overwrite so that the matching notifications read as seen.
// Positions refer to raw, so entries that fail to decode keep their slot.
// An empty id marks every unread entry.
func markReadUpdates(raw []string, id string) (updates map[int64][]byte, found bool) {
	updates = map[int64][]byte{}
	for i, s := range raw {
		var n Notification
		if json.Unmarshal([]byte(s), &n) != nil {
			continue
		}
		if id != "" && n.ID != id {
			continue
		}
		found = true
		if !n.Read {
			n.Read = true
			b, err := json.Marshal(n)
			if err != nil {
				continue
			}
			updates[int64(i)] = b
		}
		if id != "" {
			break
		}
	}
	return updates, found
}

// markRead rewrites entries under WATCH so a concurrent Add cannot shift positions between read and write.
func (r *RedisNotificationStore) markRead(ctx context.Context, userID uint, id string) (int, bool, error) {
	key := notificationKey(userID)
	var (
		changed int
		found   bool
	)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, key, 0, MaxNotifications-1).Result()
		if err != nil {
			return err
		}
		var updates map[int64][]byte
		updates, found = markReadUpdates(raw, id)
		changed = len(updates)
		if changed == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for i, b := range updates {
				p.LSet(ctx, key, i, b)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < markReadMaxAttempts; attempt++ {
		err := r.rc.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return changed, found, err
	}
	return 0, false, fmt.Errorf("mark notifications read: %w", redis.TxFailedErr)
}

func (r *RedisNotificationStore) MarkRead(ctx context.Context, userID uint, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	_, found, err := r.markRead(ctx, userID, id)
	return found, err
}

func (r *RedisNotificationStore) MarkAllRead(ctx context.Context, userID uint) (int, error) {
	n, _, err := r.markRead(ctx, userID, "")
	return n, err
}
