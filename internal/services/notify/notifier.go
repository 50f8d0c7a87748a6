// Package notify resolves notification recipients and delivers messages
// through an injected channel transport.
package notify

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
)

// Notifier implements interfaces.NotifierService. Recipient resolution
// walks alert override -> latest session -> user platform identity; a user
// with none of those drops the message with a warning.
type Notifier struct {
	storage interfaces.StorageManager
	sender  interfaces.MessageSender
	logger  *common.Logger

	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[models.Channel]*rate.Limiter
}

// New creates a Notifier. Delivery is rate-limited per channel.
func New(storage interfaces.StorageManager, sender interfaces.MessageSender, logger *common.Logger, cfg common.NotifyConfig) *Notifier {
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Limit(1)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &Notifier{
		storage:  storage,
		sender:   sender,
		logger:   logger,
		limit:    limit,
		burst:    burst,
		limiters: make(map[models.Channel]*rate.Limiter),
	}
}

func (n *Notifier) limiter(channel models.Channel) *rate.Limiter {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.limiters[channel]
	if !ok {
		l = rate.NewLimiter(n.limit, n.burst)
		n.limiters[channel] = l
	}
	return l
}

// NotifyAlert delivers text for an alert. An explicit (channel, chatID) on
// the alert overrides session-based resolution.
func (n *Notifier) NotifyAlert(ctx context.Context, alert *models.Alert, text string) error {
	if alert.Channel != "" && alert.ChatID != "" {
		return n.deliver(ctx, alert.Channel, alert.ChatID, text)
	}
	return n.NotifyUser(ctx, alert.UserID, text)
}

// NotifyUser delivers text to a user via their latest session, falling back
// to their platform identity.
func (n *Notifier) NotifyUser(ctx context.Context, userID, text string) error {
	if sess, err := n.storage.SessionStore().LatestForUser(ctx, userID); err == nil {
		return n.deliver(ctx, sess.Channel, sess.ChatID, text)
	}

	user, err := n.storage.UserStore().Get(ctx, userID)
	if err != nil {
		n.logger.Warn().Str("user_id", userID).Msg("Notification dropped: no session and no user record")
		return nil
	}
	if user.Platform == "" || user.PlatformUserID == "" {
		n.logger.Warn().Str("user_id", userID).Msg("Notification dropped: user has no platform identity")
		return nil
	}
	return n.deliver(ctx, user.Platform, user.PlatformUserID, text)
}

func (n *Notifier) deliver(ctx context.Context, channel models.Channel, chatID, text string) error {
	if err := n.limiter(channel).Wait(ctx); err != nil {
		return err
	}
	if err := n.sender.SendMessage(ctx, channel, chatID, text); err != nil {
		return fmt.Errorf("send to %s/%s: %w", channel, chatID, err)
	}
	n.logger.Debug().Str("channel", string(channel)).Str("chat_id", chatID).Msg("Notification delivered")
	return nil
}

// Compile-time check
var _ interfaces.NotifierService = (*Notifier)(nil)
