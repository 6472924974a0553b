package session

import (
	"testing"

	"github.com/matheus3301/wlite/internal/model"
)

func TestUserIsCopied(t *testing.T) {
	s := New()
	u := &model.User{ID: "u1", Name: "Ana"}
	s.SetUser(u)
	u.Name = "changed"

	if got := s.User(); got.Name != "Ana" {
		t.Errorf("session user mutated through caller pointer: %q", got.Name)
	}
	if s.UserID() != "u1" {
		t.Errorf("UserID() = %q, want u1", s.UserID())
	}
}

func TestLogoutClosesActiveChat(t *testing.T) {
	s := New()
	s.SetUser(&model.User{ID: "u1"})
	s.SetActiveChat("c1")

	if !s.IsActive("c1") {
		t.Fatal("c1 should be active")
	}
	s.SetUser(nil)
	if s.ActiveChat() != "" {
		t.Errorf("active chat = %q after logout, want empty", s.ActiveChat())
	}
	if s.User() != nil || s.UserID() != "" {
		t.Error("user should be cleared")
	}
}

func TestIsActiveEmpty(t *testing.T) {
	s := New()
	if s.IsActive("") {
		t.Error("empty chat id must never be active")
	}
}
