package api

import (
	"context"

	"google.golang.org/grpc"
)

// The services have no generated stubs; their descriptors are assembled
// here from the service methods.

const servicePrefix = "wlite.v1."

// FullMethod returns the wire name of a method of desc.
func FullMethod(desc *grpc.ServiceDesc, method string) string {
	return "/" + desc.ServiceName + "/" + method
}

func unary[S, Req, Resp any](service, name string, call func(S, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	full := "/" + servicePrefix + service + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: full}, handler)
		},
	}
}

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: servicePrefix + "SessionService",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("SessionService", "GetStatus", (*SessionService).GetStatus),
		unary("SessionService", "Register", (*SessionService).Register),
		unary("SessionService", "Login", (*SessionService).Login),
		unary("SessionService", "Logout", (*SessionService).Logout),
		unary("SessionService", "Whoami", (*SessionService).Whoami),
		unary("SessionService", "UpdateProfile", (*SessionService).UpdateProfile),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "WatchEvents",
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(WatchRequest)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return srv.(*SessionService).WatchEvents(in, stream)
		},
	}},
}

var SyncServiceDesc = grpc.ServiceDesc{
	ServiceName: servicePrefix + "SyncService",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("SyncService", "GetSyncStatus", (*SyncService).GetSyncStatus),
		unary("SyncService", "StartSync", (*SyncService).StartSync),
		unary("SyncService", "StopSync", (*SyncService).StopSync),
		unary("SyncService", "PollNow", (*SyncService).PollNow),
	},
}

var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: servicePrefix + "ChatService",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("ChatService", "ListChats", (*ChatService).ListChats),
		unary("ChatService", "GetChat", (*ChatService).GetChat),
		unary("ChatService", "OpenChat", (*ChatService).OpenChat),
		unary("ChatService", "CloseChat", (*ChatService).CloseChat),
		unary("ChatService", "CreateDirect", (*ChatService).CreateDirect),
		unary("ChatService", "CreateGroup", (*ChatService).CreateGroup),
		unary("ChatService", "SearchChats", (*ChatService).SearchChats),
		unary("ChatService", "MarkChatRead", (*ChatService).MarkChatRead),
	},
}

var MessageServiceDesc = grpc.ServiceDesc{
	ServiceName: servicePrefix + "MessageService",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("MessageService", "ListMessages", (*MessageService).ListMessages),
		unary("MessageService", "SendText", (*MessageService).SendText),
		unary("MessageService", "SendVoice", (*MessageService).SendVoice),
		unary("MessageService", "MarkDelivered", (*MessageService).MarkDelivered),
		unary("MessageService", "MarkRead", (*MessageService).MarkRead),
	},
}

var StoryServiceDesc = grpc.ServiceDesc{
	ServiceName: servicePrefix + "StoryService",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("StoryService", "CreateStatus", (*StoryService).CreateStatus),
		unary("StoryService", "ListMine", (*StoryService).ListMine),
		unary("StoryService", "ListOthers", (*StoryService).ListOthers),
		unary("StoryService", "ListFor", (*StoryService).ListFor),
		unary("StoryService", "ViewStatus", (*StoryService).ViewStatus),
	},
}

var ContactServiceDesc = grpc.ServiceDesc{
	ServiceName: servicePrefix + "ContactService",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("ContactService", "AddContact", (*ContactService).AddContact),
		unary("ContactService", "ListContacts", (*ContactService).ListContacts),
		unary("ContactService", "SearchContacts", (*ContactService).SearchContacts),
	},
}

// Services groups the implementations served by the daemon.
type Services struct {
	Session *SessionService
	Sync    *SyncService
	Chat    *ChatService
	Message *MessageService
	Story   *StoryService
	Contact *ContactService
}

// Register adds every service to s.
func Register(s *grpc.Server, svc Services) {
	s.RegisterService(&SessionServiceDesc, svc.Session)
	s.RegisterService(&SyncServiceDesc, svc.Sync)
	s.RegisterService(&ChatServiceDesc, svc.Chat)
	s.RegisterService(&MessageServiceDesc, svc.Message)
	s.RegisterService(&StoryServiceDesc, svc.Story)
	s.RegisterService(&ContactServiceDesc, svc.Contact)
}
