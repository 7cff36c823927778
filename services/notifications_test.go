package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swissaxa/portal/ai"
)

func TestMemoryNotificationsNewestFirstAndCapped(t *testing.T) {
	store := NewNotificationStore(nil)
	ctx := context.Background()

	for i := 0; i < MaxNotifications+5; i++ {
		_, err := store.Add(ctx, 1, Notification{Title: fmt.Sprintf("n%d", i)})
		require.NoError(t, err)
	}
	list, err := store.List(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, list, MaxNotifications)
	assert.Equal(t, fmt.Sprintf("n%d", MaxNotifications+4), list[0].Title)
	assert.Equal(t, NotificationInfo, list[0].Type)
	assert.NotEmpty(t, list[0].ID)

	other, err := store.List(ctx, 2, false)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryNotificationsMarkRead(t *testing.T) {
	store := NewMemoryNotificationStore()
	ctx := context.Background()

	a, _ := store.Add(ctx, 1, ClaimUpdatedNotification("CLM-1", "in_review"))
	_, _ = store.Add(ctx, 1, AppointmentConfirmedNotification(time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC), "Max Müller"))
	_, _ = store.Add(ctx, 1, Notification{Title: "third"})

	ok, err := store.MarkRead(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.MarkRead(ctx, 1, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	unread, _ := store.List(ctx, 1, true)
	assert.Len(t, unread, 2)

	n, err := store.MarkAllRead(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	unread, _ = store.List(ctx, 1, true)
	assert.Empty(t, unread)
}

func encodeNotifications(t *testing.T, list ...Notification) []string {
	t.Helper()
	out := make([]string, 0, len(list))
	for _, n := range list {
		b, err := json.Marshal(n)
		require.NoError(t, err)
		out = append(out, string(b))
	}
	return out
}

func TestMarkReadUpdatesKeepRawPositions(t *testing.T) {
	raw := encodeNotifications(t,
		Notification{ID: "a", Title: "newest"},
		Notification{ID: "b", Read: true},
		Notification{ID: "c", Title: "target"},
	)
	// A corrupt entry ahead of the target must not shift the index written back.
	raw = append([]string{"{not json"}, raw...)

	updates, found := markReadUpdates(raw, "c")
	require.True(t, found)
	require.Len(t, updates, 1)
	b, ok := updates[3]
	require.True(t, ok, "target sits at raw index 3")
	var n Notification
	require.NoError(t, json.Unmarshal(b, &n))
	assert.Equal(t, "c", n.ID)
	assert.True(t, n.Read)

	updates, found = markReadUpdates(raw, "b")
	assert.True(t, found)
	assert.Empty(t, updates)

	_, found = markReadUpdates(raw, "missing")
	assert.False(t, found)

	updates, _ = markReadUpdates(raw, "")
	assert.Len(t, updates, 2)
	assert.Contains(t, updates, int64(1))
	assert.Contains(t, updates, int64(3))
}

func TestRedisNotificationsMarkReadAfterConcurrentAdd(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rc := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rc.Close() })
	ctx := context.Background()
	if err := rc.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	const userID = 987654
	t.Cleanup(func() { rc.Del(ctx, notificationKey(userID)) })
	rc.Del(ctx, notificationKey(userID))

	store := NewNotificationStore(rc)
	target, err := store.Add(ctx, userID, Notification{Title: "target"})
	require.NoError(t, err)
	require.NoError(t, rc.LPush(ctx, notificationKey(userID), "{not json").Err())
	_, err = store.Add(ctx, userID, Notification{Title: "later"})
	require.NoError(t, err)

	ok, err := store.MarkRead(ctx, userID, target.ID)
	require.NoError(t, err)
	require.True(t, ok)

	unread, err := store.List(ctx, userID, true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "later", unread[0].Title)

	n, err := store.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNotificationTemplates(t *testing.T) {
	n := ClaimUpdatedNotification("CLM-20241212001", "resolved")
	assert.Equal(t, "Claim CLM-20241212001 Updated", n.Title)
	assert.Equal(t, "Your claim status has been updated to: resolved", n.Message)
	assert.Equal(t, "/services/claims", n.ActionURL)

	when := time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "Your appointment with Max Müller is confirmed for 2025-03-04 09:30",
		AppointmentConfirmedNotification(when, "Max Müller").Message)
	assert.Equal(t, "Your appointment is confirmed for 2025-03-04 09:30",
		AppointmentConfirmedNotification(when, "").Message)
}

func TestMemoryChatHistoryKeepsLastTen(t *testing.T) {
	h := NewChatHistory(nil)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		require.NoError(t, h.Append(ctx, 5,
			ai.ChatMessage{Role: ai.RoleUser, Content: fmt.Sprintf("q%d", i)},
			ai.ChatMessage{Role: ai.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		))
	}
	got, err := h.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, ChatHistoryLimit)
	assert.Equal(t, "q2", got[0].Content)
	assert.Equal(t, "a6", got[len(got)-1].Content)

	require.NoError(t, h.Clear(ctx, 5))
	got, _ = h.Recent(ctx, 5)
	assert.Empty(t, got)
}
