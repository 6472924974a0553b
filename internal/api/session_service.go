package api

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wlite/internal/account"
	"github.com/matheus3301/wlite/internal/bus"
	"github.com/matheus3301/wlite/internal/remote"
	"github.com/matheus3301/wlite/internal/state"
	"github.com/matheus3301/wlite/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

// SessionService exposes the account and the daemon's runtime state.
type SessionService struct {
	profile   string
	startedAt time.Time
	machine   *state.Machine
	accounts  *account.Service
	remote    *remote.Client
	bus       *bus.Bus
	db        *store.DB
}

// NewSessionService creates a new session service.
func NewSessionService(profile string, machine *state.Machine, accounts *account.Service, rc *remote.Client, b *bus.Bus, db *store.DB) *SessionService {
	return &SessionService{
		profile:   profile,
		startedAt: time.Now(),
		machine:   machine,
		accounts:  accounts,
		remote:    rc,
		bus:       b,
		db:        db,
	}
}

func (s *SessionService) GetStatus(_ context.Context, _ *emptypb.Empty) (*SessionStatus, error) {
	resp := &SessionStatus{
		Profile:          s.profile,
		State:            string(s.machine.Current()),
		StateSinceUnixMs: s.machine.Since().UnixMilli(),
		UptimeMs:         time.Since(s.startedAt).Milliseconds(),
		BackendURL:       s.remote.BaseURL(),
		BackendAvailable: s.remote.Available(),
	}
	if u, err := s.accounts.Current(); err == nil {
		resp.UserID, resp.UserName, resp.Phone = u.ID, u.Name, u.Phone
	}
	if n, err := s.db.ChatCount(); err == nil {
		resp.ChatCount = n
	}
	if n, err := s.db.MessageCount(); err == nil {
		resp.MessageCount = n
	}
	return resp, nil
}

func (s *SessionService) Register(ctx context.Context, req *RegisterRequest) (*UserResponse, error) {
	u, err := s.accounts.Register(ctx, account.Registration{
		Phone:       req.Phone,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		CountryCode: req.CountryCode,
	})
	if err != nil {
		return nil, toStatus("register", err)
	}
	return &UserResponse{User: *u}, nil
}

func (s *SessionService) Login(ctx context.Context, req *LoginRequest) (*UserResponse, error) {
	u, err := s.accounts.Login(ctx, req.Phone)
	if err != nil {
		return nil, toStatus("login", err)
	}
	return &UserResponse{User: *u}, nil
}

func (s *SessionService) Logout(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.accounts.Logout(ctx); err != nil {
		return nil, toStatus("logout", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *SessionService) UpdateProfile(ctx context.Context, req *UpdateProfileRequest) (*UserResponse, error) {
	u, err := s.accounts.UpdateProfile(ctx, account.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Status:    req.Status,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		return nil, toStatus("update profile", err)
	}
	return &UserResponse{User: *u}, nil
}

func (s *SessionService) Whoami(_ context.Context, _ *emptypb.Empty) (*UserResponse, error) {
	u, err := s.accounts.Current()
	if err != nil {
		return nil, toStatus("whoami", err)
	}
	return &UserResponse{User: *u}, nil
}

// WatchEvents streams bus events whose kind starts with req.Namespace.
func (s *SessionService) WatchEvents(req *WatchRequest, stream grpc.ServerStream) error {
	ch, unsub := s.bus.Subscribe(strings.TrimSpace(req.Namespace), 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			payload, err := json.Marshal(evt.Payload)
			if err != nil {
				payload = nil
			}
			if err := stream.SendMsg(&EventEnvelope{
				EventID:          uuid.NewString(),
				Profile:          s.profile,
				Kind:             string(evt.Kind),
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
				Payload:          payload,
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}
