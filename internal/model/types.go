package model

import (
	"errors"
	"slices"
	"time"
)

// User is a registered account on the backend.
type User struct {
	ID           string    `json:"id"`
	Phone        string    `json:"phone"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	Name         string    `json:"name"`
	CountryCode  string    `json:"countryCode,omitempty"`
	Status       string    `json:"status,omitempty"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	IsOnline     bool      `json:"isOnline"`
	LastSeen     time.Time `json:"lastSeen,omitzero"`
	LastLogin    time.Time `json:"lastLogin,omitzero"`
	RegisteredAt time.Time `json:"registeredAt,omitzero"`
}

// Contact is an address book entry.
type Contact struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Status    string `json:"status,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Online    bool   `json:"online"`
}

// Chat is a direct conversation, a group or a community.
type Chat struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	Participants  []string  `json:"participants"`
	IsGroup       bool      `json:"isGroup"`
	IsCommunity   bool      `json:"isCommunity"`
	Description   string    `json:"description,omitempty"`
	LastMessage   string    `json:"lastMessage"`
	Timestamp     string    `json:"timestamp"`
	LastMessageAt time.Time `json:"lastMessageAt,omitzero"`
	UnreadCount   int       `json:"unreadCount"`
	Admin         string    `json:"admin,omitempty"`
}

// HasParticipant reports whether userID takes part in the chat.
func (c *Chat) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}

// Direct reports whether the chat is a two-party conversation.
func (c *Chat) Direct() bool {
	return !c.IsGroup && !c.IsCommunity && len(c.Participants) == 2
}

// PairKey returns the participant-pair key of a direct chat, or "" for groups.
func (c *Chat) PairKey() string {
	if !c.Direct() {
		return ""
	}
	return PairKey(c.Participants[0], c.Participants[1])
}

// Peer returns the other participant of a direct chat.
func (c *Chat) Peer(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// PairKey builds an order-insensitive key for two participants.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Message is a single chat message. IsMe is the viewpoint of the client
// that stored it and is not meaningful across clients.
type Message struct {
	ID          string    `json:"id"`
	ChatID      string    `json:"chatId"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId,omitempty"`
	Text        string    `json:"text"`
	IsVoice     bool      `json:"isVoice,omitempty"`
	Duration    int       `json:"duration,omitempty"`
	AudioURL    string    `json:"audioUrl,omitempty"`
	Timestamp   string    `json:"timestamp"`
	CreatedAt   time.Time `json:"createdAt"`
	IsMe        bool      `json:"isMe"`
	Sent        bool      `json:"sent"`
	Delivered   bool      `json:"delivered"`
	Read        bool      `json:"read"`
}

// Preview is the text shown as a chat's last message.
func (m *Message) Preview() string {
	if m.IsVoice {
		return "Voice message"
	}
	return m.Text
}

// Normalize enforces read ⇒ delivered ⇒ sent.
func (m *Message) Normalize() {
	if m.Read {
		m.Delivered = true
	}
	if m.Delivered {
		m.Sent = true
	}
}

// Validate reports a delivery state that breaks read ⇒ delivered ⇒ sent.
func (m *Message) Validate() error {
	if m.Read && !m.Delivered {
		return errors.New("message read but not delivered")
	}
	if m.Delivered && !m.Sent {
		return errors.New("message delivered but not sent")
	}
	return nil
}

// NotificationType distinguishes the two notification records a send produces.
type NotificationType string

const (
	NotifyMessage         NotificationType = "message"
	NotifyMessageFromUser NotificationType = "message_from_user"
)

// Notification tells a recipient's client that a message is waiting.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	SenderID    string           `json:"senderId"`
	RecipientID string           `json:"recipientId"`
	MessageID   string           `json:"messageId"`
	ChatID      string           `json:"chatId"`
	Content     string           `json:"content"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// StatusType is the kind of content a status carries.
type StatusType string

const (
	StatusText  StatusType = "text"
	StatusImage StatusType = "image"
	StatusVideo StatusType = "video"
)

// StatusTTL is how long a status stays visible.
const StatusTTL = 24 * time.Hour

// Status is an ephemeral story.
type Status struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Content         string     `json:"content"`
	Type            StatusType `json:"type"`
	BackgroundColor string     `json:"backgroundColor,omitempty"`
	Caption         string     `json:"caption,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	ViewedBy        []string   `json:"viewedBy"`
}

// Expired reports whether the status is no longer visible at now.
func (s *Status) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
