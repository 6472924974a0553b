package api

import (
	"encoding/json"

	"github.com/matheus3301/wlite/internal/model"
)

// WatchRequest selects events by kind prefix. Empty matches everything.
type WatchRequest struct {
	Namespace string `json:"namespace"`
}

// EventEnvelope wraps a bus event for streaming.
type EventEnvelope struct {
	EventID          string          `json:"eventId"`
	Profile          string          `json:"profile"`
	Kind             string          `json:"kind"`
	OccurredAtUnixMs int64           `json:"occurredAtUnixMs"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

type SessionStatus struct {
	Profile          string `json:"profile"`
	State            string `json:"state"`
	StateSinceUnixMs int64  `json:"stateSinceUnixMs"`
	UptimeMs         int64  `json:"uptimeMs"`
	UserID           string `json:"userId,omitempty"`
	UserName         string `json:"userName,omitempty"`
	Phone            string `json:"phone,omitempty"`
	ChatCount        int64  `json:"chatCount"`
	MessageCount     int64  `json:"messageCount"`
	BackendURL       string `json:"backendUrl"`
	BackendAvailable bool   `json:"backendAvailable"`
}

type RegisterRequest struct {
	Phone       string `json:"phone"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	CountryCode string `json:"countryCode"`
}

type LoginRequest struct {
	Phone string `json:"phone"`
}

// UpdateProfileRequest leaves nil fields unchanged.
type UpdateProfileRequest struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Status    *string `json:"status,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

type UserResponse struct {
	User model.User `json:"user"`
}

type SyncStatus struct {
	State            string `json:"state"`
	Syncing          bool   `json:"syncing"`
	BackendAvailable bool   `json:"backendAvailable"`
}

type ChatRequest struct {
	ChatID string `json:"chatId"`
}

type ChatResponse struct {
	Chat model.Chat `json:"chat"`
}

type ChatList struct {
	Chats []model.Chat `json:"chats"`
}

type CreateDirectRequest struct {
	ContactID string `json:"contactId"`
}

type CreateGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	AvatarURL   string   `json:"avatarUrl,omitempty"`
	Members     []string `json:"members"`
	Community   bool     `json:"community,omitempty"`
}

type SearchRequest struct {
	Query string `json:"query"`
}

type SendTextRequest struct {
	ChatID      string `json:"chatId"`
	Text        string `json:"text"`
	RecipientID string `json:"recipientId,omitempty"`
}

type SendVoiceRequest struct {
	ChatID      string `json:"chatId"`
	RecipientID string `json:"recipientId,omitempty"`
	Duration    int    `json:"duration"`
	AudioURL    string `json:"audioUrl"`
}

type MessageResponse struct {
	Message model.Message `json:"message"`
}

type MessageList struct {
	Messages []model.Message `json:"messages"`
}

// MarkResponse reports how many messages a mark operation flipped.
type MarkResponse struct {
	Updated int `json:"updated"`
}

type CreateStatusRequest struct {
	Content         string `json:"content"`
	Type            string `json:"type,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	Caption         string `json:"caption,omitempty"`
}

type ListStatusesRequest struct {
	UserIDs []string `json:"userIds"`
}

type ViewStatusRequest struct {
	StatusID string `json:"statusId"`
	ViewerID string `json:"viewerId,omitempty"`
}

type StatusResponse struct {
	Status model.Status `json:"status"`
}

type StatusList struct {
	Statuses []model.Status `json:"statuses"`
}

type AddContactRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type ContactResponse struct {
	Contact model.Contact `json:"contact"`
}

type ContactList struct {
	Contacts []model.Contact `json:"contacts"`
}
