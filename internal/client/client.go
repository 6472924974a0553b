// Package client is the typed gRPC client for a profile daemon.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/matheus3301/wlite/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn    *grpc.ClientConn
	Session *SessionClient
	Sync    *SyncClient
	Chat    *ChatClient
	Message *MessageClient
	Story   *StoryClient
	Contact *ContactClient
}

// New dials the daemon's Unix domain socket and returns typed service clients.
func New(socketPath string) (*Client, error) {
	abs, err := filepath.Abs(socketPath)
	if err != nil {
		return nil, fmt.Errorf("resolve socket path: %w", err)
	}
	conn, err := grpc.NewClient(
		"unix://"+abs,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(api.CallOption()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return NewFromConn(conn), nil
}

// NewFromConn wraps an existing connection. The connection must send
// calls with the JSON codec.
func NewFromConn(conn *grpc.ClientConn) *Client {
	return &Client{
		conn:    conn,
		Session: &SessionClient{conn},
		Sync:    &SyncClient{conn},
		Chat:    &ChatClient{conn},
		Message: &MessageClient{conn},
		Story:   &StoryClient{conn},
		Contact: &ContactClient{conn},
	}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, conn *grpc.ClientConn, desc *grpc.ServiceDesc, method string, in any) (*Resp, error) {
	out := new(Resp)
	if err := conn.Invoke(ctx, api.FullMethod(desc, method), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

type SessionClient struct{ conn *grpc.ClientConn }

func (c *SessionClient) GetStatus(ctx context.Context) (*api.SessionStatus, error) {
	return invoke[api.SessionStatus](ctx, c.conn, &api.SessionServiceDesc, "GetStatus", &emptypb.Empty{})
}

func (c *SessionClient) Register(ctx context.Context, req *api.RegisterRequest) (*api.UserResponse, error) {
	return invoke[api.UserResponse](ctx, c.conn, &api.SessionServiceDesc, "Register", req)
}

func (c *SessionClient) Login(ctx context.Context, phone string) (*api.UserResponse, error) {
	return invoke[api.UserResponse](ctx, c.conn, &api.SessionServiceDesc, "Login", &api.LoginRequest{Phone: phone})
}

func (c *SessionClient) Logout(ctx context.Context) error {
	_, err := invoke[emptypb.Empty](ctx, c.conn, &api.SessionServiceDesc, "Logout", &emptypb.Empty{})
	return err
}

func (c *SessionClient) UpdateProfile(ctx context.Context, req *api.UpdateProfileRequest) (*api.UserResponse, error) {
	return invoke[api.UserResponse](ctx, c.conn, &api.SessionServiceDesc, "UpdateProfile", req)
}

func (c *SessionClient) Whoami(ctx context.Context) (*api.UserResponse, error) {
	return invoke[api.UserResponse](ctx, c.conn, &api.SessionServiceDesc, "Whoami", &emptypb.Empty{})
}

// WatchEvents calls fn for every event under namespace until ctx ends,
// the stream closes or fn returns an error.
func (c *SessionClient) WatchEvents(ctx context.Context, namespace string, fn func(*api.EventEnvelope) error) error {
	desc := &api.SessionServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, api.FullMethod(&api.SessionServiceDesc, desc.StreamName))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&api.WatchRequest{Namespace: namespace}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		evt := new(api.EventEnvelope)
		if err := stream.RecvMsg(evt); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}

type SyncClient struct{ conn *grpc.ClientConn }

func (c *SyncClient) GetSyncStatus(ctx context.Context) (*api.SyncStatus, error) {
	return invoke[api.SyncStatus](ctx, c.conn, &api.SyncServiceDesc, "GetSyncStatus", &emptypb.Empty{})
}

func (c *SyncClient) StartSync(ctx context.Context) (*api.SyncStatus, error) {
	return invoke[api.SyncStatus](ctx, c.conn, &api.SyncServiceDesc, "StartSync", &emptypb.Empty{})
}

func (c *SyncClient) StopSync(ctx context.Context) (*api.SyncStatus, error) {
	return invoke[api.SyncStatus](ctx, c.conn, &api.SyncServiceDesc, "StopSync", &emptypb.Empty{})
}

func (c *SyncClient) PollNow(ctx context.Context) error {
	_, err := invoke[emptypb.Empty](ctx, c.conn, &api.SyncServiceDesc, "PollNow", &emptypb.Empty{})
	return err
}

type ChatClient struct{ conn *grpc.ClientConn }

func (c *ChatClient) ListChats(ctx context.Context) (*api.ChatList, error) {
	return invoke[api.ChatList](ctx, c.conn, &api.ChatServiceDesc, "ListChats", &emptypb.Empty{})
}

func (c *ChatClient) GetChat(ctx context.Context, chatID string) (*api.ChatResponse, error) {
	return invoke[api.ChatResponse](ctx, c.conn, &api.ChatServiceDesc, "GetChat", &api.ChatRequest{ChatID: chatID})
}

func (c *ChatClient) OpenChat(ctx context.Context, chatID string) (*api.ChatResponse, error) {
	return invoke[api.ChatResponse](ctx, c.conn, &api.ChatServiceDesc, "OpenChat", &api.ChatRequest{ChatID: chatID})
}

func (c *ChatClient) CloseChat(ctx context.Context) error {
	_, err := invoke[emptypb.Empty](ctx, c.conn, &api.ChatServiceDesc, "CloseChat", &emptypb.Empty{})
	return err
}

func (c *ChatClient) CreateDirect(ctx context.Context, contactID string) (*api.ChatResponse, error) {
	return invoke[api.ChatResponse](ctx, c.conn, &api.ChatServiceDesc, "CreateDirect", &api.CreateDirectRequest{ContactID: contactID})
}

func (c *ChatClient) CreateGroup(ctx context.Context, req *api.CreateGroupRequest) (*api.ChatResponse, error) {
	return invoke[api.ChatResponse](ctx, c.conn, &api.ChatServiceDesc, "CreateGroup", req)
}

func (c *ChatClient) SearchChats(ctx context.Context, query string) (*api.ChatList, error) {
	return invoke[api.ChatList](ctx, c.conn, &api.ChatServiceDesc, "SearchChats", &api.SearchRequest{Query: query})
}

func (c *ChatClient) MarkChatRead(ctx context.Context, chatID string) error {
	_, err := invoke[emptypb.Empty](ctx, c.conn, &api.ChatServiceDesc, "MarkChatRead", &api.ChatRequest{ChatID: chatID})
	return err
}

type MessageClient struct{ conn *grpc.ClientConn }

func (c *MessageClient) ListMessages(ctx context.Context, chatID string) (*api.MessageList, error) {
	return invoke[api.MessageList](ctx, c.conn, &api.MessageServiceDesc, "ListMessages", &api.ChatRequest{ChatID: chatID})
}

func (c *MessageClient) SendText(ctx context.Context, req *api.SendTextRequest) (*api.MessageResponse, error) {
	return invoke[api.MessageResponse](ctx, c.conn, &api.MessageServiceDesc, "SendText", req)
}

func (c *MessageClient) SendVoice(ctx context.Context, req *api.SendVoiceRequest) (*api.MessageResponse, error) {
	return invoke[api.MessageResponse](ctx, c.conn, &api.MessageServiceDesc, "SendVoice", req)
}

func (c *MessageClient) MarkDelivered(ctx context.Context, chatID string) (*api.MarkResponse, error) {
	return invoke[api.MarkResponse](ctx, c.conn, &api.MessageServiceDesc, "MarkDelivered", &api.ChatRequest{ChatID: chatID})
}

func (c *MessageClient) MarkRead(ctx context.Context, chatID string) (*api.MarkResponse, error) {
	return invoke[api.MarkResponse](ctx, c.conn, &api.MessageServiceDesc, "MarkRead", &api.ChatRequest{ChatID: chatID})
}

type StoryClient struct{ conn *grpc.ClientConn }

func (c *StoryClient) CreateStatus(ctx context.Context, req *api.CreateStatusRequest) (*api.StatusResponse, error) {
	return invoke[api.StatusResponse](ctx, c.conn, &api.StoryServiceDesc, "CreateStatus", req)
}

func (c *StoryClient) ListMine(ctx context.Context) (*api.StatusList, error) {
	return invoke[api.StatusList](ctx, c.conn, &api.StoryServiceDesc, "ListMine", &emptypb.Empty{})
}

func (c *StoryClient) ListOthers(ctx context.Context) (*api.StatusList, error) {
	return invoke[api.StatusList](ctx, c.conn, &api.StoryServiceDesc, "ListOthers", &emptypb.Empty{})
}

func (c *StoryClient) ListFor(ctx context.Context, userIDs []string) (*api.StatusList, error) {
	return invoke[api.StatusList](ctx, c.conn, &api.StoryServiceDesc, "ListFor", &api.ListStatusesRequest{UserIDs: userIDs})
}

func (c *StoryClient) ViewStatus(ctx context.Context, statusID string) (*api.StatusResponse, error) {
	return invoke[api.StatusResponse](ctx, c.conn, &api.StoryServiceDesc, "ViewStatus", &api.ViewStatusRequest{StatusID: statusID})
}

type ContactClient struct{ conn *grpc.ClientConn }

func (c *ContactClient) AddContact(ctx context.Context, name, phone string) (*api.ContactResponse, error) {
	return invoke[api.ContactResponse](ctx, c.conn, &api.ContactServiceDesc, "AddContact", &api.AddContactRequest{Name: name, Phone: phone})
}

func (c *ContactClient) ListContacts(ctx context.Context) (*api.ContactList, error) {
	return invoke[api.ContactList](ctx, c.conn, &api.ContactServiceDesc, "ListContacts", &emptypb.Empty{})
}

func (c *ContactClient) SearchContacts(ctx context.Context, query string) (*api.ContactList, error) {
	return invoke[api.ContactList](ctx, c.conn, &api.ContactServiceDesc, "SearchContacts", &api.SearchRequest{Query: query})
}
