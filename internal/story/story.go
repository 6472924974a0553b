// Package story keeps the 24-hour statuses of the current user and of
// everyone else.
package story

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/wlite/internal/bus"
	"github.com/matheus3301/wlite/internal/model"
	"github.com/matheus3301/wlite/internal/remote"
	"github.com/matheus3301/wlite/internal/session"
	"github.com/matheus3301/wlite/internal/store"
	"go.uber.org/zap"
)

var (
	ErrNotLoggedIn  = errors.New("not logged in")
	ErrNotFound     = errors.New("status not found")
	ErrEmptyContent = errors.New("status content is empty")
)

// Draft is what a user supplies to post a status.
type Draft struct {
	Content         string
	Type            model.StatusType
	BackgroundColor string
	Caption         string
}

// Repository owns status reads and writes.
type Repository struct {
	db     *store.DB
	remote *remote.Client
	sess   *session.Session
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a status repository.
func New(db *store.DB, rc *remote.Client, sess *session.Session, b *bus.Bus, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, remote: rc, sess: sess, bus: b, logger: logger, now: time.Now}
}

// SetClock replaces the time source used for stamping and expiry.
func (r *Repository) SetClock(now func() time.Time) {
	r.now = now
}

// Create posts a status for the current user. The remote write is best
// effort; the status is visible locally either way.
func (r *Repository) Create(ctx context.Context, d Draft) (*model.Status, error) {
	me := r.sess.UserID()
	if me == "" {
		return nil, ErrNotLoggedIn
	}
	if d.Content == "" {
		return nil, ErrEmptyContent
	}
	if d.Type == "" {
		d.Type = model.StatusText
	}

	created := r.now().UTC()
	s := &model.Status{
		ID:              model.NewID(),
		UserID:          me,
		Content:         d.Content,
		Type:            d.Type,
		BackgroundColor: d.BackgroundColor,
		Caption:         d.Caption,
		CreatedAt:       created,
		ExpiresAt:       created.Add(model.StatusTTL),
		ViewedBy:        []string{},
	}
	if err := r.db.UpsertStatus(s); err != nil {
		return nil, fmt.Errorf("store status: %w", err)
	}
	if err := r.remote.Create(ctx, remote.Statuses, s, nil); err != nil {
		r.logger.Warn("status kept locally only", zap.Error(err), zap.String("status_id", s.ID))
	}

	r.logger.Info("status created", zap.String("status_id", s.ID), zap.String("type", string(s.Type)))
	r.bus.Emit(bus.StatusCreated, bus.StatusPayload{Status: *s})
	return s, nil
}

// ListFor returns the unexpired statuses of the given users.
func (r *Repository) ListFor(userIDs []string) ([]model.Status, error) {
	return r.db.ListStatuses(userIDs, r.now())
}

// ListMine returns the current user's unexpired statuses.
func (r *Repository) ListMine() ([]model.Status, error) {
	me := r.sess.UserID()
	if me == "" {
		return nil, ErrNotLoggedIn
	}
	return r.db.ListStatuses([]string{me}, r.now())
}

// ListOthers returns everyone else's unexpired statuses.
func (r *Repository) ListOthers() ([]model.Status, error) {
	me := r.sess.UserID()
	if me == "" {
		return nil, ErrNotLoggedIn
	}
	return r.db.ListStatusesExcept(me, r.now())
}

// View records viewerID as having seen a status. Repeated views change
// nothing and send nothing.
func (r *Repository) View(ctx context.Context, statusID, viewerID string) (*model.Status, error) {
	if viewerID == "" {
		viewerID = r.sess.UserID()
	}
	if viewerID == "" {
		return nil, ErrNotLoggedIn
	}
	s, err := r.db.GetStatus(statusID)
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	if s == nil {
		return nil, ErrNotFound
	}

	added, err := r.db.AddStatusView(statusID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("record view: %w", err)
	}
	if !added {
		return s, nil
	}
	r.pushViews(ctx, statusID)
	if s, err = r.db.GetStatus(statusID); err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	r.bus.Emit(bus.StatusViewed, bus.StatusPayload{Status: *s, ViewerID: viewerID})
	return s, nil
}

// pushViews merges the remote viewer set of a status with the local one
// and writes the union back when the remote copy is missing anyone. A
// failure leaves the view local; the next Refresh retries it.
func (r *Repository) pushViews(ctx context.Context, statusID string) {
	var current model.Status
	if err := r.remote.Get(ctx, remote.Statuses, statusID, &current); err != nil {
		r.logger.Warn("status view not propagated", zap.Error(err), zap.String("status_id", statusID))
		return
	}
	if err := r.db.UpsertStatus(&current); err != nil {
		r.logger.Warn("merge remote viewers", zap.Error(err), zap.String("status_id", statusID))
		return
	}
	local, err := r.db.GetStatus(statusID)
	if err != nil || local == nil {
		return
	}
	if merged, ok := unionViewers(current.ViewedBy, local.ViewedBy); ok {
		r.patchViewers(ctx, statusID, merged)
	}
}

func (r *Repository) patchViewers(ctx context.Context, statusID string, viewers []string) {
	if err := r.remote.Patch(ctx, remote.Statuses, statusID, map[string]any{"viewedBy": viewers}, nil); err != nil {
		r.logger.Warn("status view not propagated", zap.Error(err), zap.String("status_id", statusID))
	}
}

// unionViewers appends to remote the local viewers it lacks, keeping the
// remote order. ok reports whether anything was appended.
func unionViewers(remoteViewers, localViewers []string) (merged []string, ok bool) {
	seen := make(map[string]bool, len(remoteViewers))
	merged = append(make([]string, 0, len(remoteViewers)+len(localViewers)), remoteViewers...)
	for _, v := range remoteViewers {
		seen[v] = true
	}
	for _, v := range localViewers {
		if !seen[v] {
			seen[v] = true
			merged = append(merged, v)
			ok = true
		}
	}
	return merged, ok
}

// Refresh replaces the cached statuses of other users with the remote
// list. The current user's own statuses are left untouched.
func (r *Repository) Refresh(ctx context.Context) error {
	me := r.sess.UserID()
	if me == "" {
		return ErrNotLoggedIn
	}
	var all []model.Status
	if err := r.remote.List(ctx, remote.Statuses, nil, &all); err != nil {
		return fmt.Errorf("list statuses: %w", err)
	}

	now := r.now()
	others := make([]model.Status, 0, len(all))
	for _, s := range all {
		if s.UserID == me || s.Expired(now) {
			continue
		}
		// Views recorded here whose PATCH never landed.
		if cached, err := r.db.GetStatus(s.ID); err == nil && cached != nil {
			if merged, ok := unionViewers(s.ViewedBy, cached.ViewedBy); ok {
				r.patchViewers(ctx, s.ID, merged)
				s.ViewedBy = merged
			}
		}
		others = append(others, s)
	}
	if err := r.db.ReplaceOthersStatuses(me, others); err != nil {
		return fmt.Errorf("replace statuses: %w", err)
	}
	r.logger.Debug("statuses refreshed", zap.Int("others", len(others)))
	return nil
}

// StartSync refreshes right away and then once per interval. Starting a
// running sync is a no-op.
func (r *Repository) StartSync(ctx context.Context, interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, interval, r.done)
}

// StopSync halts the loop and waits for it to exit.
func (r *Repository) StopSync() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Repository) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	r.refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Repository) refresh(ctx context.Context) {
	err := r.Refresh(ctx)
	switch {
	case err == nil, errors.Is(err, ErrNotLoggedIn), ctx.Err() != nil:
	default:
		r.logger.Warn("status sync failed, keeping cache", zap.Error(err))
	}
}
