package api

import (
	"context"

	"github.com/matheus3301/wlite/internal/message"
)

// MessageService exposes the message repository.
type MessageService struct {
	messages *message.Repository
}

// NewMessageService creates a new message service.
func NewMessageService(messages *message.Repository) *MessageService {
	return &MessageService{messages: messages}
}

// ListMessages reconciles the chat with the backend and returns it in
// conversation order.
func (s *MessageService) ListMessages(ctx context.Context, req *ChatRequest) (*MessageList, error) {
	msgs, err := s.messages.Fetch(ctx, req.ChatID)
	if err != nil {
		return nil, toStatus("list messages", err)
	}
	return &MessageList{Messages: msgs}, nil
}

func (s *MessageService) SendText(ctx context.Context, req *SendTextRequest) (*MessageResponse, error) {
	m, err := s.messages.Send(ctx, req.ChatID, req.Text, req.RecipientID)
	if err != nil {
		return nil, toStatus("send", err)
	}
	return &MessageResponse{Message: *m}, nil
}

func (s *MessageService) SendVoice(ctx context.Context, req *SendVoiceRequest) (*MessageResponse, error) {
	m, err := s.messages.SendVoice(ctx, req.ChatID, message.Voice{Duration: req.Duration, AudioURL: req.AudioURL}, req.RecipientID)
	if err != nil {
		return nil, toStatus("send voice", err)
	}
	return &MessageResponse{Message: *m}, nil
}

func (s *MessageService) MarkDelivered(ctx context.Context, req *ChatRequest) (*MarkResponse, error) {
	n, err := s.messages.MarkDelivered(ctx, req.ChatID)
	if err != nil {
		return nil, toStatus("mark delivered", err)
	}
	return &MarkResponse{Updated: n}, nil
}

func (s *MessageService) MarkRead(ctx context.Context, req *ChatRequest) (*MarkResponse, error) {
	n, err := s.messages.MarkRead(ctx, req.ChatID)
	if err != nil {
		return nil, toStatus("mark read", err)
	}
	return &MarkResponse{Updated: n}, nil
}
