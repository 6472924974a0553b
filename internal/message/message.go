// Package message appends messages, merges local and remote histories and
// tracks delivery state. Delivery flags only move forward.
package message

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matheus3301/wlite/internal/bus"
	"github.com/matheus3301/wlite/internal/chat"
	"github.com/matheus3301/wlite/internal/model"
	"github.com/matheus3301/wlite/internal/relay"
	"github.com/matheus3301/wlite/internal/remote"
	"github.com/matheus3301/wlite/internal/session"
	"github.com/matheus3301/wlite/internal/store"
	"go.uber.org/zap"
)

var (
	ErrNotLoggedIn  = errors.New("not logged in")
	ErrEmptyMessage = errors.New("message is empty")
)

// Refresher runs one reconciliation pass against the backend.
type Refresher interface {
	PollNow(ctx context.Context) error
}

// Voice is the payload of a voice message. AudioURL references audio
// stored elsewhere.
type Voice struct {
	Duration int
	AudioURL string
}

// Repository owns message reads and writes.
type Repository struct {
	db        *store.DB
	remote    *remote.Client
	sess      *session.Session
	chats     *chat.Repository
	relay     *relay.Relay
	bus       *bus.Bus
	logger    *zap.Logger
	now       func() time.Time
	refresher Refresher
}

// New creates a message repository.
func New(db *store.DB, rc *remote.Client, sess *session.Session, chats *chat.Repository, rl *relay.Relay, b *bus.Bus, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, remote: rc, sess: sess, chats: chats, relay: rl, bus: b, logger: logger, now: time.Now}
}

// SetRefresher installs the sync pass Fetch runs before reading.
func (r *Repository) SetRefresher(f Refresher) {
	r.refresher = f
}

// Send appends a text message to a chat. recipientID may be empty; for a
// direct chat it defaults to the peer.
func (r *Repository) Send(ctx context.Context, chatID, text, recipientID string) (*model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	return r.send(ctx, chatID, recipientID, func(m *model.Message) {
		m.Text = text
	})
}

// SendVoice appends a voice message to a chat.
func (r *Repository) SendVoice(ctx context.Context, chatID string, v Voice, recipientID string) (*model.Message, error) {
	if v.AudioURL == "" {
		return nil, ErrEmptyMessage
	}
	return r.send(ctx, chatID, recipientID, func(m *model.Message) {
		m.IsVoice = true
		m.Duration = v.Duration
		m.AudioURL = v.AudioURL
	})
}

func (r *Repository) send(ctx context.Context, chatID, recipientID string, fill func(*model.Message)) (*model.Message, error) {
	me := r.sess.UserID()
	if me == "" {
		return nil, ErrNotLoggedIn
	}
	c, err := r.chats.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if recipientID == "" && c.Direct() {
		recipientID = c.Peer(me)
	}

	now := r.now()
	msg := &model.Message{
		ID:          model.NewID(),
		ChatID:      c.ID,
		SenderID:    me,
		RecipientID: recipientID,
		Timestamp:   model.DisplayTime(now),
		CreatedAt:   now.UTC(),
		IsMe:        true,
		Sent:        true,
	}
	fill(msg)

	if err := r.remote.Create(ctx, remote.Messages, msg, nil); err != nil {
		r.logger.Warn("message queued locally", zap.Error(err), zap.String("message_id", msg.ID))
		if err := r.db.QueueOutbox(msg); err != nil {
			return nil, fmt.Errorf("store message: %w", err)
		}
	} else {
		if _, err := r.db.UpsertMessage(msg); err != nil {
			return nil, fmt.Errorf("store message: %w", err)
		}
		r.relay.Announce(ctx, msg)
	}

	if err := r.chats.Touch(ctx, c.ID, msg); err != nil {
		r.logger.Warn("failed to update chat preview", zap.Error(err), zap.String("chat_id", c.ID))
	}
	r.bus.Emit(bus.MessageSent, bus.MessagesPayload{ChatID: c.ID, Messages: []model.Message{*msg}})
	return msg, nil
}

// Push writes a queued message to the backend and announces it. A record
// the backend already holds counts as pushed.
func (r *Repository) Push(ctx context.Context, msg *model.Message) error {
	err := r.remote.Create(ctx, remote.Messages, msg, nil)
	var statusErr *remote.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		return nil
	}
	if err != nil {
		return err
	}
	r.relay.Announce(ctx, msg)
	return nil
}

// Fetch returns a chat's merged history ordered by creation time. Remote
// records not known locally are adopted; known ones only contribute
// delivery flags. A backend failure degrades to the local copy.
func (r *Repository) Fetch(ctx context.Context, chatID string) ([]model.Message, error) {
	if r.refresher != nil {
		if err := r.refresher.PollNow(ctx); err != nil {
			r.logger.Debug("refresh before fetch failed", zap.Error(err))
		}
	}

	var remoteMsgs []model.Message
	if err := r.remote.List(ctx, remote.Messages, url.Values{"chatId": {chatID}}, &remoteMsgs); err != nil {
		r.logger.Warn("reading local messages", zap.Error(err), zap.String("chat_id", chatID))
	} else if len(remoteMsgs) > 0 {
		me := r.sess.UserID()
		for i := range remoteMsgs {
			remoteMsgs[i].ChatID = chatID
			// Only consulted when the record is new to this client.
			remoteMsgs[i].IsMe = me != "" && remoteMsgs[i].SenderID == me
			if remoteMsgs[i].CreatedAt.IsZero() {
				remoteMsgs[i].CreatedAt = r.now().UTC()
			}
		}
		added, err := r.db.UpsertMessages(remoteMsgs)
		if err != nil {
			return nil, fmt.Errorf("merge messages: %w", err)
		}
		if len(added) > 0 {
			r.logger.Debug("adopted remote messages", zap.String("chat_id", chatID), zap.Int("count", len(added)))
		}
	}

	msgs, err := r.db.ListMessages(chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// MarkDelivered flags the current user's undelivered messages in a chat as
// delivered. Repeated calls with nothing new are no-ops and issue no remote
// writes.
func (r *Repository) MarkDelivered(ctx context.Context, chatID string) (int, error) {
	me := r.sess.UserID()
	if me == "" {
		return 0, ErrNotLoggedIn
	}
	ids, err := r.db.MarkDelivered(chatID, me)
	if err != nil {
		return 0, fmt.Errorf("mark delivered: %w", err)
	}
	r.propagate(ctx, chatID, ids, map[string]any{"delivered": true})
	return len(ids), nil
}

// MarkRead flags messages from other participants as read.
func (r *Repository) MarkRead(ctx context.Context, chatID string) (int, error) {
	me := r.sess.UserID()
	if me == "" {
		return 0, ErrNotLoggedIn
	}
	ids, err := r.db.MarkRead(chatID, me)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	r.propagate(ctx, chatID, ids, map[string]any{"delivered": true, "read": true})
	return len(ids), nil
}

// Ingest stores a message received from someone else. It reports whether
// the message was new to this client.
func (r *Repository) Ingest(msg *model.Message) (bool, error) {
	msg.IsMe = false
	msg.Sent = true
	msg.Delivered = true
	msg.Read = false
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now().UTC()
	}
	if msg.Timestamp == "" {
		msg.Timestamp = model.DisplayTime(msg.CreatedAt)
	}
	inserted, err := r.db.UpsertMessage(msg)
	if err != nil {
		return false, fmt.Errorf("ingest message %q: %w", msg.ID, err)
	}
	return inserted, nil
}

func (r *Repository) propagate(ctx context.Context, chatID string, ids []string, fields map[string]any) {
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := r.remote.Patch(ctx, remote.Messages, id, fields, nil); err != nil {
			r.logger.Warn("delivery state not propagated", zap.Error(err), zap.String("message_id", id))
		}
	}
	updated := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		if m, err := r.db.GetMessage(id); err == nil && m != nil {
			updated = append(updated, *m)
		}
	}
	r.bus.Emit(bus.MessageUpdated, bus.MessagesPayload{ChatID: chatID, Messages: updated})
}
