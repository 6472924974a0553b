package sync

import (
	"fmt"
	"time"

	"github.com/matheus3301/wlite/internal/store"
	"go.uber.org/zap"
)

// lastPollKey holds the start time of the last successful poll cycle.
const lastPollKey = "lastPollTimestamp"

// Reconciler manages sync checkpoints.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{db: db, logger: logger}
}

// LastPoll returns the checkpoint of the last successful cycle, or the zero
// time before the first one.
func (r *Reconciler) LastPoll() (time.Time, error) {
	value, ok, err := r.db.Checkpoint(lastPollKey)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		r.logger.Warn("discarding unreadable poll checkpoint", zap.String("value", value), zap.Error(err))
		return time.Time{}, nil
	}
	return t, nil
}

// AdvanceLastPoll moves the checkpoint forward. Older values are ignored.
func (r *Reconciler) AdvanceLastPoll(t time.Time) error {
	current, err := r.LastPoll()
	if err != nil {
		return err
	}
	if !t.After(current) {
		return nil
	}
	if err := r.db.SetCheckpoint(lastPollKey, t.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
