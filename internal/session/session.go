// Package session holds the runtime context of one daemon: who is logged
// in and which chat is open.
package session

import (
	"sync"

	"github.com/matheus3301/wlite/internal/model"
)

// Session is shared by the repositories and the sync loops. The zero value
// has nobody logged in.
type Session struct {
	mu         sync.RWMutex
	user       *model.User
	activeChat string
}

// New returns an empty session.
func New() *Session {
	return &Session{}
}

// User returns a copy of the logged-in user, or nil.
func (s *Session) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// UserID returns the logged-in user's id, or "".
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

// SetUser switches the logged-in user. Passing nil logs out and closes the
// active chat.
func (s *Session) SetUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		s.user = nil
		s.activeChat = ""
		return
	}
	cp := *u
	s.user = &cp
}

// ActiveChat returns the id of the open chat, or "".
func (s *Session) ActiveChat() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeChat
}

// SetActiveChat opens chatID; "" closes the current chat.
func (s *Session) SetActiveChat(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeChat = chatID
}

// IsActive reports whether chatID is the open chat.
func (s *Session) IsActive(chatID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return chatID != "" && s.activeChat == chatID
}
