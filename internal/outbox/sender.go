package outbox

import (
	"context"
	"time"

	"github.com/matheus3301/wlite/internal/bus"
	"github.com/matheus3301/wlite/internal/model"
	"github.com/matheus3301/wlite/internal/store"
	"go.uber.org/zap"
)

// Pusher writes a queued message to the backend.
type Pusher interface {
	Push(ctx context.Context, msg *model.Message) error
}

// Sender drains messages that were stored while the backend was unreachable.
type Sender struct {
	db       *store.DB
	pusher   Pusher
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, pusher Pusher, b *bus.Bus, interval time.Duration, logger *zap.Logger) *Sender {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:       db,
		pusher:   pusher,
		bus:      b,
		logger:   logger,
		interval: interval,
	}
}

// Start begins polling the outbox for pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for it to exit.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Flush pushes pending messages in order, stopping at the first failure so
// later messages never overtake earlier ones. It returns how many were pushed.
func (s *Sender) Flush(ctx context.Context) int {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return 0
	}

	pushed := 0
	for i := range pending {
		msg := &pending[i]
		if err := s.pusher.Push(ctx, msg); err != nil {
			s.logger.Warn("outbox push deferred", zap.Error(err),
				zap.String("message_id", msg.ID), zap.Int("pending", len(pending)-i))
			break
		}
		if err := s.db.MarkPushed(msg.ID); err != nil {
			s.logger.Error("failed to mark pushed", zap.Error(err), zap.String("message_id", msg.ID))
			break
		}
		pushed++
		s.logger.Info("queued message pushed", zap.String("message_id", msg.ID))
		s.bus.Emit(bus.MessageUpdated, bus.MessagesPayload{ChatID: msg.ChatID, Messages: []model.Message{*msg}})
	}
	return pushed
}
