package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wlite/internal/bus"
	"github.com/matheus3301/wlite/internal/model"
	"github.com/matheus3301/wlite/internal/store"
	"go.uber.org/zap"
)

// mockPusher records calls and returns configurable results.
type mockPusher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *mockPusher) Push(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msg.ID)
	return m.err
}

func (m *mockPusher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func queue(t *testing.T, db *store.DB, ids ...string) {
	t.Helper()
	base := time.Now()
	for i, id := range ids {
		m := &model.Message{ID: id, ChatID: "c1", SenderID: "me", Text: id, IsMe: true, Sent: true,
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond)}
		if err := db.QueueOutbox(m); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFlushPushesInOrder(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockPusher{}
	s := NewSender(db, mock, b, time.Second, zap.NewNop())

	ch, unsub := b.Subscribe("message.updated", 10)
	defer unsub()

	queue(t, db, "m1", "m2")
	if got := s.Flush(context.Background()); got != 2 {
		t.Fatalf("Flush() = %d, want 2", got)
	}
	if mock.calls[0] != "m1" || mock.calls[1] != "m2" {
		t.Errorf("push order = %v, want [m1 m2]", mock.calls)
	}

	pending, _ := db.PendingOutbox()
	if len(pending) != 0 {
		t.Errorf("got %d pending after flush, want 0", len(pending))
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message.updated")
	}
}

func TestFlushStopsAtFirstFailure(t *testing.T) {
	db := testDB(t)
	mock := &mockPusher{err: errors.New("backend down")}
	s := NewSender(db, mock, bus.New(), time.Second, zap.NewNop())

	queue(t, db, "m1", "m2")
	if got := s.Flush(context.Background()); got != 0 {
		t.Errorf("Flush() = %d, want 0", got)
	}
	if mock.count() != 1 {
		t.Errorf("push calls = %d, want 1", mock.count())
	}
	pending, _ := db.PendingOutbox()
	if len(pending) != 2 {
		t.Errorf("got %d pending, want 2", len(pending))
	}
}

func TestSenderLoop(t *testing.T) {
	db := testDB(t)
	mock := &mockPusher{}
	logger, _ := zap.NewDevelopment()
	s := NewSender(db, mock, bus.New(), 20*time.Millisecond, logger)

	queue(t, db, "m1")
	s.Start(context.Background())
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for mock.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("sender loop never pushed the queued message")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := NewSender(testDB(t), &mockPusher{}, bus.New(), 0, zap.NewNop())
	s.Stop()
}
