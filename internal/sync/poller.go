// Package sync runs the poll cycle that discovers messages addressed to the
// current user and reconciles them into the local store.
package sync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	gosync "sync"
	"time"

	"github.com/matheus3301/wlite/internal/bus"
	"github.com/matheus3301/wlite/internal/chat"
	"github.com/matheus3301/wlite/internal/message"
	"github.com/matheus3301/wlite/internal/model"
	"github.com/matheus3301/wlite/internal/remote"
	"github.com/matheus3301/wlite/internal/session"
	"github.com/matheus3301/wlite/internal/state"
	"github.com/matheus3301/wlite/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNotLoggedIn is returned by a cycle when there is no current user.
var ErrNotLoggedIn = errors.New("not logged in")

// Options tunes the poll loop.
type Options struct {
	Interval     time.Duration
	CycleTimeout time.Duration
}

// Result summarizes one poll cycle.
type Result struct {
	Notifications int
	Ingested      int
}

// Poller periodically pulls notifications and messages for the current user.
type Poller struct {
	remote     *remote.Client
	reconciler *Reconciler
	sess       *session.Session
	chats      *chat.Repository
	messages   *message.Repository
	db         *store.DB
	machine    *state.Machine
	bus        *bus.Bus
	logger     *zap.Logger
	opts       Options
	now        func() time.Time

	flight singleflight.Group

	mu     gosync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller. machine may be nil.
func NewPoller(db *store.DB, rc *remote.Client, sess *session.Session, chats *chat.Repository,
	messages *message.Repository, machine *state.Machine, b *bus.Bus, opts Options, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = 10 * time.Second
	}
	return &Poller{
		remote:     rc,
		reconciler: NewReconciler(db, logger),
		sess:       sess,
		chats:      chats,
		messages:   messages,
		db:         db,
		machine:    machine,
		bus:        b,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
	}
}

// Start runs one cycle right away and then one per interval. Starting a
// running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.transition(state.Syncing)
	p.logger.Info("polling started", zap.Duration("interval", p.opts.Interval))
	go p.loop(ctx, p.done)
}

// Stop halts the loop and waits for it to exit. Stopping a stopped poller
// is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.transition(state.Idle)
	p.logger.Info("polling stopped")
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	_ = p.PollNow(ctx)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = p.PollNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// PollNow runs a cycle, joining one already in flight instead of starting a
// second. Each cycle is bounded by the cycle timeout.
func (p *Poller) PollNow(ctx context.Context) error {
	ch := p.flight.DoChan("poll", func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.CycleTimeout)
		defer cancel()
		res, err := p.PollOnce(cctx)
		if errors.Is(err, ErrNotLoggedIn) {
			return res, err
		}
		p.settle(err)
		return res, err
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PollOnce runs a single cycle: consume unread notifications, sweep
// messages newer than the checkpoint, ingest them and advance the
// checkpoint if nothing failed.
func (p *Poller) PollOnce(ctx context.Context) (Result, error) {
	var res Result
	me := p.sess.UserID()
	if me == "" {
		return res, ErrNotLoggedIn
	}
	started := p.now().UTC()

	since, err := p.reconciler.LastPoll()
	if err != nil {
		return res, fmt.Errorf("read checkpoint: %w", err)
	}

	var notes []model.Notification
	if err := p.remote.List(ctx, remote.Notifications,
		url.Values{"recipientId": {me}, "read": {"false"}}, &notes); err != nil {
		return res, fmt.Errorf("list notifications: %w", err)
	}
	res.Notifications = len(notes)

	var errs []error
	pending := make(map[string]model.Message)
	// Message ids whose notifications must stay unread this cycle.
	failed := make(map[string]bool)
	for _, n := range notes {
		if n.SenderID == me {
			continue
		}
		if _, seen := pending[n.MessageID]; seen || failed[n.MessageID] {
			continue
		}
		var msg model.Message
		if err := p.remote.Get(ctx, remote.Messages, n.MessageID, &msg); err != nil {
			if errors.Is(err, remote.ErrNotFound) {
				continue
			}
			failed[n.MessageID] = true
			errs = append(errs, fmt.Errorf("get message %s: %w", n.MessageID, err))
			continue
		}
		pending[msg.ID] = msg
	}

	var sweep []model.Message
	if err := p.remote.List(ctx, remote.Messages, url.Values{"recipientId": {me}}, &sweep); err != nil {
		errs = append(errs, fmt.Errorf("sweep messages: %w", err))
	}
	for _, msg := range sweep {
		if msg.SenderID == me || !msg.CreatedAt.After(since) {
			continue
		}
		if _, seen := pending[msg.ID]; !seen {
			pending[msg.ID] = msg
			delete(failed, msg.ID)
		}
	}

	// Group messages carry no recipient, so neither notifications nor the
	// sweep above see them.
	groupMsgs, err := p.sweepGroups(ctx, me)
	if err != nil {
		errs = append(errs, err)
	}
	for _, msg := range groupMsgs {
		if msg.SenderID == me || !msg.CreatedAt.After(since) {
			continue
		}
		if _, seen := pending[msg.ID]; !seen {
			pending[msg.ID] = msg
		}
	}

	batch := make([]model.Message, 0, len(pending))
	for _, msg := range pending {
		batch = append(batch, msg)
	}
	slices.SortStableFunc(batch, func(a, b model.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})

	for i := range batch {
		ingested, err := p.ingest(ctx, me, &batch[i])
		if err != nil {
			failed[batch[i].ID] = true
			errs = append(errs, err)
			continue
		}
		if ingested {
			res.Ingested++
		}
	}

	for _, n := range notes {
		if failed[n.MessageID] {
			continue
		}
		if err := p.remote.Patch(ctx, remote.Notifications, n.ID, map[string]any{"read": true}, nil); err != nil {
			errs = append(errs, fmt.Errorf("mark notification %s read: %w", n.ID, err))
		}
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	if err := p.reconciler.AdvanceLastPoll(started); err != nil {
		return res, err
	}
	if res.Ingested > 0 {
		p.logger.Info("poll cycle ingested messages", zap.Int("count", res.Ingested))
	}
	return res, nil
}

// sweepGroups lists the messages of every local group or community the
// user takes part in.
func (p *Poller) sweepGroups(ctx context.Context, me string) ([]model.Message, error) {
	chats, err := p.db.ListChatsForUser(me)
	if err != nil {
		return nil, fmt.Errorf("list local chats: %w", err)
	}
	var (
		out  []model.Message
		errs []error
	)
	for _, c := range chats {
		if c.Direct() {
			continue
		}
		var msgs []model.Message
		if err := p.remote.List(ctx, remote.Messages, url.Values{"chatId": {c.ID}}, &msgs); err != nil {
			errs = append(errs, fmt.Errorf("sweep group %s: %w", c.ID, err))
			continue
		}
		out = append(out, msgs...)
	}
	return out, errors.Join(errs...)
}

// ingest files one foreign message and routes it to the open chat or to a
// new-message notice. It reports whether the message was new.
func (p *Poller) ingest(ctx context.Context, me string, msg *model.Message) (bool, error) {
	c, _, err := p.chats.EnsureFromSender(ctx, msg.ChatID, msg.SenderID, me)
	if err != nil {
		return false, fmt.Errorf("ensure chat for %s: %w", msg.ID, err)
	}
	remoteDelivered := msg.Delivered
	msg.ChatID = c.ID

	inserted, err := p.messages.Ingest(msg)
	if err != nil {
		return false, err
	}
	if !remoteDelivered {
		if err := p.remote.Patch(ctx, remote.Messages, msg.ID, map[string]any{"delivered": true}, nil); err != nil {
			p.logger.Warn("delivery ack not propagated", zap.Error(err), zap.String("message_id", msg.ID))
		}
	}
	if !inserted {
		return false, nil
	}

	if err := p.chats.Touch(ctx, c.ID, msg); err != nil {
		p.logger.Warn("failed to update chat preview", zap.Error(err), zap.String("chat_id", c.ID))
	}
	if p.sess.IsActive(c.ID) {
		p.bus.Emit(bus.MessageIncoming, bus.MessagesPayload{ChatID: c.ID, Messages: []model.Message{*msg}})
		return true, nil
	}
	if err := p.db.IncrementUnread(c.ID); err != nil {
		p.logger.Warn("failed to bump unread count", zap.Error(err), zap.String("chat_id", c.ID))
	}
	p.bus.Emit(bus.NotificationNewMessage, bus.NewMessageNotice{
		ChatID:   c.ID,
		ChatName: c.Name,
		SenderID: msg.SenderID,
		Preview:  msg.Preview(),
	})
	return true, nil
}

func (p *Poller) settle(err error) {
	if !p.Running() {
		return
	}
	if err != nil {
		p.logger.Warn("poll cycle failed", zap.Error(err))
		p.transition(state.Degraded)
		return
	}
	p.transition(state.Ready)
}

func (p *Poller) transition(to state.State) {
	if p.machine == nil {
		return
	}
	cur := p.machine.Current()
	if to != state.Syncing && !cur.Polling() {
		return
	}
	if err := p.machine.Transition(to); err != nil {
		p.logger.Debug("state transition skipped", zap.Error(err))
	}
}

func compareIDs(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
