// Package chat resolves chat identity and merges local and remote chat
// records. Read paths never fail because of the backend; they degrade to
// the local store.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/wlite/internal/bus"
	"github.com/matheus3301/wlite/internal/model"
	"github.com/matheus3301/wlite/internal/remote"
	"github.com/matheus3301/wlite/internal/session"
	"github.com/matheus3301/wlite/internal/store"
	"go.uber.org/zap"
)

var (
	ErrNotFound    = errors.New("chat not found")
	ErrSelfChat    = errors.New("cannot open a direct chat with yourself")
	ErrNoMembers   = errors.New("group needs at least one other member")
	ErrNotLoggedIn = errors.New("not logged in")
)

// activeChatKey is the sync_state key remembering the open chat.
const activeChatKey = "activeChat"

// UserLookup resolves user profiles for naming chats.
type UserLookup interface {
	Lookup(ctx context.Context, userID string) (*model.User, error)
}

// GroupSpec describes a group or community to create.
type GroupSpec struct {
	Name        string
	Description string
	AvatarURL   string
	Members     []string
}

// Repository is the single entry point for chat reads and writes.
type Repository struct {
	db     *store.DB
	remote *remote.Client
	sess   *session.Session
	users  UserLookup
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	// create serializes chat creation so a participant pair maps to one chat.
	create sync.Mutex
}

// New creates a chat repository.
func New(db *store.DB, rc *remote.Client, sess *session.Session, users UserLookup, b *bus.Bus, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, remote: rc, sess: sess, users: users, bus: b, logger: logger, now: time.Now}
}

// ListForUser returns the chats userID participates in. When the backend
// cannot be reached the local copy is returned.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]model.Chat, error) {
	var remoteChats []model.Chat
	if err := r.remote.List(ctx, remote.Chats, nil, &remoteChats); err != nil {
		r.logger.Warn("listing local chats", zap.Error(err))
	} else {
		added := 0
		for i := range remoteChats {
			c := &remoteChats[i]
			if !c.HasParticipant(userID) {
				continue
			}
			inserted, err := r.adopt(ctx, c, userID)
			if err != nil {
				r.logger.Warn("failed to merge remote chat", zap.Error(err), zap.String("chat_id", c.ID))
				continue
			}
			if inserted {
				added++
			}
		}
		if added > 0 {
			r.bus.Emit(bus.ChatListRefresh, nil)
		}
	}

	chats, err := r.db.ListChatsForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list local chats: %w", err)
	}
	return chats, nil
}

// Get returns one chat, consulting the backend when it is not known locally.
func (r *Repository) Get(ctx context.Context, chatID string) (*model.Chat, error) {
	c, err := r.db.GetChat(chatID)
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	if c != nil {
		return c, nil
	}

	var remoteChat model.Chat
	if err := r.remote.Get(ctx, remote.Chats, chatID, &remoteChat); err != nil {
		if !errors.Is(err, remote.ErrNotFound) {
			r.logger.Warn("remote chat lookup failed", zap.Error(err), zap.String("chat_id", chatID))
		}
		return nil, ErrNotFound
	}
	if _, err := r.adopt(ctx, &remoteChat, r.sess.UserID()); err != nil {
		return nil, err
	}
	if c, err = r.db.GetChat(chatID); err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// GetOrCreateDirect returns the chat between currentUserID and contactID,
// creating it when neither store knows the pair. Argument order does not
// matter. An error is returned only if the chat could not be stored anywhere.
func (r *Repository) GetOrCreateDirect(ctx context.Context, currentUserID, contactID string) (*model.Chat, error) {
	if currentUserID == contactID {
		return nil, ErrSelfChat
	}
	key := model.PairKey(currentUserID, contactID)

	r.create.Lock()
	defer r.create.Unlock()

	if c, err := r.db.ChatByPairKey(key); err != nil {
		return nil, fmt.Errorf("find chat: %w", err)
	} else if c != nil {
		return c, nil
	}

	if c := r.findRemotePair(ctx, key, currentUserID); c != nil {
		return c, nil
	}

	c := &model.Chat{
		ID:           model.NewID(),
		Participants: []string{currentUserID, contactID},
	}
	c.Name, c.AvatarURL = r.profile(ctx, contactID)
	if err := r.persistNew(ctx, c); err != nil {
		return nil, err
	}
	if stored, err := r.db.ChatByPairKey(key); err == nil && stored != nil {
		return stored, nil
	}
	return c, nil
}

// CreateGroup creates a group administered by the current user.
func (r *Repository) CreateGroup(ctx context.Context, spec GroupSpec) (*model.Chat, error) {
	return r.createMulti(ctx, spec, false)
}

// CreateCommunity creates a community administered by the current user.
func (r *Repository) CreateCommunity(ctx context.Context, spec GroupSpec) (*model.Chat, error) {
	return r.createMulti(ctx, spec, true)
}

func (r *Repository) createMulti(ctx context.Context, spec GroupSpec, community bool) (*model.Chat, error) {
	creator := r.sess.UserID()
	if creator == "" {
		return nil, ErrNotLoggedIn
	}
	participants := []string{creator}
	for _, m := range spec.Members {
		m = strings.TrimSpace(m)
		if m != "" && !slices.Contains(participants, m) {
			participants = append(participants, m)
		}
	}
	if len(participants) < 2 {
		return nil, ErrNoMembers
	}

	c := &model.Chat{
		ID:           model.NewID(),
		Name:         strings.TrimSpace(spec.Name),
		Description:  spec.Description,
		AvatarURL:    spec.AvatarURL,
		Participants: participants,
		IsGroup:      !community,
		IsCommunity:  community,
		Admin:        creator,
	}

	r.create.Lock()
	defer r.create.Unlock()
	if err := r.persistNew(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// MarkRead resets a chat's unread counter. Message read flags are left to
// the message repository.
func (r *Repository) MarkRead(ctx context.Context, chatID string) error {
	c, err := r.db.GetChat(chatID)
	if err != nil {
		return fmt.Errorf("get chat: %w", err)
	}
	if c == nil {
		return ErrNotFound
	}
	changed, err := r.db.ResetUnread(chatID)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	if !changed {
		return nil
	}
	if err := r.remote.Patch(ctx, remote.Chats, chatID, map[string]any{"unreadCount": 0}, nil); err != nil {
		r.logger.Warn("failed to patch unread count", zap.Error(err), zap.String("chat_id", chatID))
	}
	r.bus.Emit(bus.ChatListRefresh, nil)
	return nil
}

// Open makes chatID the active chat and clears its unread counter.
func (r *Repository) Open(ctx context.Context, chatID string) (*model.Chat, error) {
	c, err := r.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	r.sess.SetActiveChat(c.ID)
	if err := r.db.SetCheckpoint(activeChatKey, c.ID); err != nil {
		r.logger.Warn("failed to remember active chat", zap.Error(err))
	}
	if err := r.MarkRead(ctx, c.ID); err != nil {
		return nil, err
	}
	c.UnreadCount = 0
	r.bus.Emit(bus.ChatOpened, bus.ChatPayload{Chat: *c})
	return c, nil
}

// Close leaves the active chat.
func (r *Repository) Close() {
	r.sess.SetActiveChat("")
	if err := r.db.SetCheckpoint(activeChatKey, ""); err != nil {
		r.logger.Warn("failed to forget active chat", zap.Error(err))
	}
}

// RestoreActive reopens the chat that was active when the daemon last ran.
// It returns nil when there is none.
func (r *Repository) RestoreActive() (*model.Chat, error) {
	id, ok, err := r.db.Checkpoint(activeChatKey)
	if err != nil || !ok || id == "" {
		return nil, err
	}
	c, err := r.db.GetChat(id)
	if err != nil || c == nil {
		return nil, err
	}
	if me := r.sess.UserID(); me == "" || !c.HasParticipant(me) {
		return nil, nil
	}
	r.sess.SetActiveChat(c.ID)
	r.bus.Emit(bus.ChatRestored, bus.ChatPayload{Chat: *c})
	return c, nil
}

// Search matches the current user's chats by name or last message.
func (r *Repository) Search(query string) ([]model.Chat, error) {
	me := r.sess.UserID()
	if me == "" {
		return nil, ErrNotLoggedIn
	}
	if strings.TrimSpace(query) == "" {
		return r.db.ListChatsForUser(me)
	}
	return r.db.SearchChats(me, strings.TrimSpace(query))
}

// Touch records msg as the chat's last message, locally and best-effort
// remotely. Older messages never replace a newer preview.
func (r *Repository) Touch(ctx context.Context, chatID string, msg *model.Message) error {
	changed, err := r.db.UpdateLastMessage(chatID, msg.Preview(), msg.Timestamp, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("update last message: %w", err)
	}
	if !changed {
		return nil
	}
	if err := r.remote.Patch(ctx, remote.Chats, chatID, map[string]any{
		"lastMessage":   msg.Preview(),
		"timestamp":     msg.Timestamp,
		"lastMessageAt": msg.CreatedAt,
	}, nil); err != nil {
		r.logger.Warn("failed to patch last message", zap.Error(err), zap.String("chat_id", chatID))
	}
	r.bus.Emit(bus.ChatListRefresh, nil)
	return nil
}

// EnsureFromSender returns the local chat a foreign message belongs to,
// creating it from the sender's profile when it is unknown. The returned
// chat may carry a different id than chatID when the pair already has a
// local chat; callers file the message under the returned id.
func (r *Repository) EnsureFromSender(ctx context.Context, chatID, senderID, me string) (*model.Chat, bool, error) {
	r.create.Lock()
	defer r.create.Unlock()

	if c, err := r.db.GetChat(chatID); err != nil {
		return nil, false, fmt.Errorf("get chat: %w", err)
	} else if c != nil {
		return c, false, nil
	}

	var remoteChat model.Chat
	err := r.remote.Get(ctx, remote.Chats, chatID, &remoteChat)
	switch {
	case err == nil:
		inserted, err := r.adopt(ctx, &remoteChat, me)
		if err != nil {
			return nil, false, err
		}
		if c, err := r.db.GetChat(chatID); err == nil && c != nil {
			if inserted {
				r.bus.Emit(bus.ChatListRefresh, nil)
			}
			return c, inserted, nil
		}
	case !errors.Is(err, remote.ErrNotFound):
		r.logger.Warn("remote chat lookup failed", zap.Error(err), zap.String("chat_id", chatID))
	}

	if c, err := r.db.ChatByPairKey(model.PairKey(senderID, me)); err != nil {
		return nil, false, fmt.Errorf("find chat: %w", err)
	} else if c != nil {
		return c, false, nil
	}

	c := &model.Chat{ID: chatID, Participants: []string{senderID, me}}
	c.Name, c.AvatarURL = r.profile(ctx, senderID)
	if err := r.persistNew(ctx, c); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// persistNew writes a fresh chat to both stores; only a double failure is
// an error.
func (r *Repository) persistNew(ctx context.Context, c *model.Chat) error {
	remoteErr := r.remote.Create(ctx, remote.Chats, c, nil)
	if remoteErr != nil {
		r.logger.Warn("chat kept locally only", zap.Error(remoteErr), zap.String("chat_id", c.ID))
	}
	if _, err := r.db.InsertChat(c); err != nil {
		if remoteErr != nil {
			return fmt.Errorf("create chat: %w", errors.Join(remoteErr, err))
		}
		r.logger.Error("failed to store chat locally", zap.Error(err), zap.String("chat_id", c.ID))
	}
	r.logger.Info("chat created", zap.String("chat_id", c.ID), zap.Int("participants", len(c.Participants)))
	r.bus.Emit(bus.ChatListRefresh, nil)
	return nil
}

func (r *Repository) findRemotePair(ctx context.Context, key, me string) *model.Chat {
	var remoteChats []model.Chat
	if err := r.remote.List(ctx, remote.Chats, nil, &remoteChats); err != nil {
		r.logger.Warn("remote chat lookup failed", zap.Error(err))
		return nil
	}
	for i := range remoteChats {
		c := &remoteChats[i]
		if c.PairKey() != key {
			continue
		}
		if _, err := r.adopt(ctx, c, me); err != nil {
			r.logger.Warn("failed to merge remote chat", zap.Error(err), zap.String("chat_id", c.ID))
			return nil
		}
		stored, err := r.db.ChatByPairKey(key)
		if err != nil || stored == nil {
			return nil
		}
		return stored
	}
	return nil
}

// adopt merges a remote chat, naming direct chats after the peer as seen
// by me rather than by whoever created the record.
func (r *Repository) adopt(ctx context.Context, c *model.Chat, me string) (bool, error) {
	if c.Direct() && me != "" {
		if local, _ := r.db.GetChat(c.ID); local != nil {
			c.Name, c.AvatarURL = local.Name, local.AvatarURL
		} else {
			c.Name, c.AvatarURL = r.profile(ctx, c.Peer(me))
		}
	}
	c.UnreadCount = 0
	return r.db.MergeChat(c)
}

func (r *Repository) profile(ctx context.Context, userID string) (name, avatar string) {
	if u, err := r.db.GetUser(userID); err == nil && u != nil && u.Name != "" {
		return u.Name, u.AvatarURL
	}
	if r.users != nil {
		if u, err := r.users.Lookup(ctx, userID); err == nil && u != nil {
			name, avatar = u.Name, u.AvatarURL
			if name == "" {
				name = u.Phone
			}
			return name, avatar
		}
	}
	return userID, ""
}
