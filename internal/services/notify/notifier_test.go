package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/models"
	tcommon "github.com/drewfallon/vigil/tests/common"
)

type recordedMessage struct {
	Channel models.Channel
	ChatID  string
	Text    string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []recordedMessage
	err  error
}

func (f *fakeSender) SendMessage(ctx context.Context, channel models.Channel, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, recordedMessage{channel, chatID, text})
	return nil
}

func newTestNotifier(store *tcommon.MemStore, sender *fakeSender) *Notifier {
	return New(store, sender, common.NewSilentLogger(), common.NotifyConfig{RatePerSecond: 100, Burst: 10})
}

func TestNotifyAlert_ChannelOverride(t *testing.T) {
	store := tcommon.NewMemStore()
	sender := &fakeSender{}
	n := newTestNotifier(store, sender)

	alert := &models.Alert{ID: "a1", UserID: "u1", Channel: "telegram", ChatID: "chat-9"}
	require.NoError(t, n.NotifyAlert(context.Background(), alert, "hello"))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, models.Channel("telegram"), sender.sent[0].Channel)
	assert.Equal(t, "chat-9", sender.sent[0].ChatID)
}

func TestNotifyUser_LatestSessionWins(t *testing.T) {
	store := tcommon.NewMemStore()
	sender := &fakeSender{}
	n := newTestNotifier(store, sender)

	now := time.Now()
	require.NoError(t, store.SessionStore().Save(context.Background(), &models.Session{
		ID: "s1", UserID: "u1", Channel: "discord", ChatID: "old", LastActivity: now.Add(-time.Hour),
	}))
	require.NoError(t, store.SessionStore().Save(context.Background(), &models.Session{
		ID: "s2", UserID: "u1", Channel: "telegram", ChatID: "new", LastActivity: now,
	}))

	require.NoError(t, n.NotifyUser(context.Background(), "u1", "hi"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "new", sender.sent[0].ChatID)
	assert.Equal(t, models.Channel("telegram"), sender.sent[0].Channel)
}

func TestNotifyUser_FallsBackToPlatformIdentity(t *testing.T) {
	store := tcommon.NewMemStore()
	sender := &fakeSender{}
	n := newTestNotifier(store, sender)

	require.NoError(t, store.UserStore().Save(context.Background(), &models.User{
		ID: "u1", Platform: "telegram", PlatformUserID: "tg-42",
	}))

	require.NoError(t, n.NotifyUser(context.Background(), "u1", "hi"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "tg-42", sender.sent[0].ChatID)
}

func TestNotifyUser_DroppedWithoutRecipient(t *testing.T) {
	store := tcommon.NewMemStore()
	sender := &fakeSender{}
	n := newTestNotifier(store, sender)

	require.NoError(t, n.NotifyUser(context.Background(), "ghost", "hi"))
	assert.Empty(t, sender.sent)
}

func TestNotifyAlert_NoOverrideResolvesUser(t *testing.T) {
	store := tcommon.NewMemStore()
	sender := &fakeSender{}
	n := newTestNotifier(store, sender)

	require.NoError(t, store.SessionStore().Save(context.Background(), &models.Session{
		ID: "s1", UserID: "u1", Channel: "discord", ChatID: "d-1", LastActivity: time.Now(),
	}))

	alert := &models.Alert{ID: "a1", UserID: "u1"}
	require.NoError(t, n.NotifyAlert(context.Background(), alert, "ping"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, models.Channel("discord"), sender.sent[0].Channel)
}
