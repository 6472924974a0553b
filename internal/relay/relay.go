// Package relay announces sent messages to their recipients through
// notification records, standing in for a push channel.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/wlite/internal/model"
	"github.com/matheus3301/wlite/internal/remote"
	"go.uber.org/zap"
)

// Relay posts notifications. Delivery is best-effort: failures are logged
// and dropped, never returned to the sender.
type Relay struct {
	remote *remote.Client
	logger *zap.Logger
	now    func() time.Time
}

// New creates a relay.
func New(rc *remote.Client, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{remote: rc, logger: logger, now: time.Now}
}

// Announce posts a "message" notification for msg and, when the recipient
// is a registered user, a "message_from_user" one. It returns how many
// notifications were stored.
func (r *Relay) Announce(ctx context.Context, msg *model.Message) int {
	if msg.RecipientID == "" {
		return 0
	}

	posted := 0
	if r.post(ctx, msg, model.NotifyMessage) {
		posted++
	}

	var recipient model.User
	err := r.remote.Get(ctx, remote.Users, msg.RecipientID, &recipient)
	switch {
	case err == nil:
		if r.post(ctx, msg, model.NotifyMessageFromUser) {
			posted++
		}
	case !errors.Is(err, remote.ErrNotFound):
		r.logger.Warn("recipient lookup failed", zap.Error(err), zap.String("recipient_id", msg.RecipientID))
	}
	return posted
}

func (r *Relay) post(ctx context.Context, msg *model.Message, typ model.NotificationType) bool {
	n := model.Notification{
		ID:          model.NewID(),
		Type:        typ,
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		MessageID:   msg.ID,
		ChatID:      msg.ChatID,
		Content:     msg.Preview(),
		CreatedAt:   r.now().UTC(),
	}
	if err := r.remote.Create(ctx, remote.Notifications, n, nil); err != nil {
		r.logger.Warn("notification dropped", zap.Error(err),
			zap.String("type", string(typ)), zap.String("message_id", msg.ID))
		return false
	}
	return true
}
