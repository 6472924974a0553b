package api

import (
	"context"

	"github.com/matheus3301/wlite/internal/chat"
	"github.com/matheus3301/wlite/internal/session"
	"google.golang.org/protobuf/types/known/emptypb"
)

// ChatService exposes the chat repository.
type ChatService struct {
	chats *chat.Repository
	sess  *session.Session
}

// NewChatService creates a new chat service.
func NewChatService(chats *chat.Repository, sess *session.Session) *ChatService {
	return &ChatService{chats: chats, sess: sess}
}

func (s *ChatService) ListChats(ctx context.Context, _ *emptypb.Empty) (*ChatList, error) {
	me := s.sess.UserID()
	if me == "" {
		return nil, toStatus("list chats", chat.ErrNotLoggedIn)
	}
	chats, err := s.chats.ListForUser(ctx, me)
	if err != nil {
		return nil, toStatus("list chats", err)
	}
	return &ChatList{Chats: chats}, nil
}

func (s *ChatService) GetChat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	c, err := s.chats.Get(ctx, req.ChatID)
	if err != nil {
		return nil, toStatus("get chat", err)
	}
	return &ChatResponse{Chat: *c}, nil
}

func (s *ChatService) OpenChat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	c, err := s.chats.Open(ctx, req.ChatID)
	if err != nil {
		return nil, toStatus("open chat", err)
	}
	return &ChatResponse{Chat: *c}, nil
}

func (s *ChatService) CloseChat(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.chats.Close()
	return &emptypb.Empty{}, nil
}

func (s *ChatService) CreateDirect(ctx context.Context, req *CreateDirectRequest) (*ChatResponse, error) {
	me := s.sess.UserID()
	if me == "" {
		return nil, toStatus("create chat", chat.ErrNotLoggedIn)
	}
	c, err := s.chats.GetOrCreateDirect(ctx, me, req.ContactID)
	if err != nil {
		return nil, toStatus("create chat", err)
	}
	return &ChatResponse{Chat: *c}, nil
}

func (s *ChatService) CreateGroup(ctx context.Context, req *CreateGroupRequest) (*ChatResponse, error) {
	spec := chat.GroupSpec{
		Name:        req.Name,
		Description: req.Description,
		AvatarURL:   req.AvatarURL,
		Members:     req.Members,
	}
	create := s.chats.CreateGroup
	if req.Community {
		create = s.chats.CreateCommunity
	}
	c, err := create(ctx, spec)
	if err != nil {
		return nil, toStatus("create group", err)
	}
	return &ChatResponse{Chat: *c}, nil
}

func (s *ChatService) SearchChats(_ context.Context, req *SearchRequest) (*ChatList, error) {
	chats, err := s.chats.Search(req.Query)
	if err != nil {
		return nil, toStatus("search chats", err)
	}
	return &ChatList{Chats: chats}, nil
}

func (s *ChatService) MarkChatRead(ctx context.Context, req *ChatRequest) (*emptypb.Empty, error) {
	if err := s.chats.MarkRead(ctx, req.ChatID); err != nil {
		return nil, toStatus("mark chat read", err)
	}
	return &emptypb.Empty{}, nil
}
