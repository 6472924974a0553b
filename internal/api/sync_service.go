package api

import (
	"context"

	"github.com/matheus3301/wlite/internal/remote"
	"github.com/matheus3301/wlite/internal/state"
	"google.golang.org/protobuf/types/known/emptypb"
)

// SyncController starts and stops the background loops.
type SyncController interface {
	StartSync(ctx context.Context) error
	StopSync()
	Syncing() bool
	PollNow(ctx context.Context) error
}

// SyncService exposes the sync loops.
type SyncService struct {
	machine *state.Machine
	ctl     SyncController
	remote  *remote.Client
}

// NewSyncService creates a new sync service.
func NewSyncService(machine *state.Machine, ctl SyncController, rc *remote.Client) *SyncService {
	return &SyncService{machine: machine, ctl: ctl, remote: rc}
}

func (s *SyncService) GetSyncStatus(_ context.Context, _ *emptypb.Empty) (*SyncStatus, error) {
	return &SyncStatus{
		State:            string(s.machine.Current()),
		Syncing:          s.ctl.Syncing(),
		BackendAvailable: s.remote.Available(),
	}, nil
}

func (s *SyncService) StartSync(ctx context.Context, _ *emptypb.Empty) (*SyncStatus, error) {
	if err := s.ctl.StartSync(ctx); err != nil {
		return nil, toStatus("start sync", err)
	}
	return s.GetSyncStatus(ctx, nil)
}

func (s *SyncService) StopSync(ctx context.Context, _ *emptypb.Empty) (*SyncStatus, error) {
	s.ctl.StopSync()
	return s.GetSyncStatus(ctx, nil)
}

func (s *SyncService) PollNow(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.ctl.PollNow(ctx); err != nil {
		return nil, toStatus("poll", err)
	}
	return &emptypb.Empty{}, nil
}
