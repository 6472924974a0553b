package bus

import (
	"time"

	"github.com/matheus3301/wlite/internal/model"
)

// Kind names an event. Subscribers filter by kind prefix ("message.", "status.").
type Kind string

const (
	ChatListRefresh Kind = "chat.list_refresh"
	ChatOpened      Kind = "chat.opened"
	ChatRestored    Kind = "chat.restored"

	MessageSent     Kind = "message.sent"
	MessageUpdated  Kind = "message.updated"
	MessageIncoming Kind = "message.incoming"

	NotificationNewMessage Kind = "notification.new_message"

	StatusCreated Kind = "status.created"
	StatusViewed  Kind = "status.viewed"

	SessionStatusChanged  Kind = "session.status_changed"
	SessionLoggedIn       Kind = "session.logged_in"
	SessionLoggedOut      Kind = "session.logged_out"
	SessionProfileUpdated Kind = "session.profile_updated"

	RealtimeConnected    Kind = "realtime.connected"
	RealtimeDisconnected Kind = "realtime.disconnected"
	RealtimeFrame        Kind = "realtime.frame"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Payload   any
}

// ChatPayload carries a chat for chat.* events.
type ChatPayload struct {
	Chat model.Chat
}

// MessagesPayload carries messages that landed in one chat.
type MessagesPayload struct {
	ChatID   string
	Messages []model.Message
}

// NewMessageNotice is raised for a message arriving in a chat that is not open.
type NewMessageNotice struct {
	ChatID   string
	ChatName string
	SenderID string
	Preview  string
}

// StatusPayload carries a status for status.* events.
type StatusPayload struct {
	Status   model.Status
	ViewerID string
}

// UserPayload carries the account for session.logged_* events.
type UserPayload struct {
	User model.User
}

// FramePayload is an inbound realtime frame.
type FramePayload struct {
	Type string
	Data []byte
}

// ConnectionPayload describes a realtime connection change. GaveUp is set
// once reconnect attempts are exhausted.
type ConnectionPayload struct {
	Attempt int
	GaveUp  bool
}
