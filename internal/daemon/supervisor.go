package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/wlite/internal/account"
	"github.com/matheus3301/wlite/internal/bus"
	"github.com/matheus3301/wlite/internal/chat"
	"github.com/matheus3301/wlite/internal/outbox"
	"github.com/matheus3301/wlite/internal/realtime"
	"github.com/matheus3301/wlite/internal/session"
	"github.com/matheus3301/wlite/internal/state"
	"github.com/matheus3301/wlite/internal/story"
	intsync "github.com/matheus3301/wlite/internal/sync"
	"go.uber.org/zap"
)

// Supervisor starts the background loops while someone is logged in and
// stops them on logout or shutdown.
type Supervisor struct {
	sess           *session.Session
	accounts       *account.Service
	chats          *chat.Repository
	poller         *intsync.Poller
	stories        *story.Repository
	sender         *outbox.Sender
	rt             *realtime.Client
	machine        *state.Machine
	bus            *bus.Bus
	logger         *zap.Logger
	statusInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Boot restores the saved account and starts syncing if there is one.
func (s *Supervisor) Boot() error {
	u, err := s.accounts.Restore()
	if err != nil {
		_ = s.machine.Transition(state.Error)
		return err
	}
	if u == nil {
		s.logger.Info("no saved account, auth required")
		return s.machine.Transition(state.AuthRequired)
	}

	s.logger.Info("account restored", zap.String("user_id", u.ID))
	if err := s.machine.Transition(state.Idle); err != nil {
		return err
	}
	if _, err := s.chats.RestoreActive(); err != nil {
		s.logger.Warn("failed to restore open chat", zap.Error(err))
	}
	return s.StartSync(context.Background())
}

// Watch follows login and logout events until Close.
func (s *Supervisor) Watch() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	ch, unsub := s.bus.Subscribe("session.logged_", 16)
	go func() {
		defer close(done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				s.handle(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Supervisor) handle(evt bus.Event) {
	switch evt.Kind {
	case bus.SessionLoggedIn:
		if s.machine.Current() == state.AuthRequired {
			_ = s.machine.Transition(state.Idle)
		}
		if err := s.StartSync(context.Background()); err != nil {
			s.logger.Error("failed to start sync after login", zap.Error(err))
		}
	case bus.SessionLoggedOut:
		s.StopSync()
		if err := s.machine.Transition(state.AuthRequired); err != nil {
			s.logger.Warn("state transition skipped", zap.Error(err))
		}
	}
}

// StartSync starts every background loop. It is a no-op while running.
func (s *Supervisor) StartSync(ctx context.Context) error {
	if s.sess.UserID() == "" {
		return account.ErrNotLoggedIn
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if s.machine.Current() == state.AuthRequired {
		_ = s.machine.Transition(state.Idle)
	}

	bg := context.WithoutCancel(ctx)
	s.poller.Start(bg)
	s.stories.StartSync(bg, s.statusInterval)
	s.sender.Start(bg)
	if s.rt != nil {
		s.rt.Start(bg)
	}
	s.running = true
	s.logger.Info("sync started")
	return nil
}

// StopSync stops every background loop.
func (s *Supervisor) StopSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if s.rt != nil {
		s.rt.Stop()
	}
	s.sender.Stop()
	s.stories.StopSync()
	s.poller.Stop()
	s.running = false
	s.logger.Info("sync stopped")
}

// Syncing reports whether the loops are running.
func (s *Supervisor) Syncing() bool {
	return s.poller.Running()
}

// PollNow runs a poll cycle right away.
func (s *Supervisor) PollNow(ctx context.Context) error {
	return s.poller.PollNow(ctx)
}

// Close stops the loops and the event watcher.
func (s *Supervisor) Close() {
	s.StopSync()
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}
