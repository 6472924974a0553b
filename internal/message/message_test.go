package message

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wlite/internal/bus"
	"github.com/matheus3301/wlite/internal/chat"
	"github.com/matheus3301/wlite/internal/model"
	"github.com/matheus3301/wlite/internal/relay"
	"github.com/matheus3301/wlite/internal/remote"
	"github.com/matheus3301/wlite/internal/remote/remotetest"
	"github.com/matheus3301/wlite/internal/session"
	"github.com/matheus3301/wlite/internal/store"
	"go.uber.org/zap"
)

type fixture struct {
	repo  *Repository
	chats *chat.Repository
	srv   *remotetest.Server
	db    *store.DB
	sess  *session.Session
	bus   *bus.Bus
}

func newFixture(t *testing.T, me string) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	srv := remotetest.New(t)
	srv.Seed("users", model.User{ID: "u1", Name: "Ana"}, model.User{ID: "u2", Name: "Bob"})
	rc, err := remote.New(remote.Options{BaseURL: srv.URL, Timeout: 2 * time.Second, BreakerFailures: 100})
	if err != nil {
		t.Fatal(err)
	}
	sess := session.New()
	sess.SetUser(&model.User{ID: me})
	b := bus.New()
	logger := zap.NewNop()
	chats := chat.New(db, rc, sess, nil, b, logger)
	repo := New(db, rc, sess, chats, relay.New(rc, logger), b, logger)
	return &fixture{repo: repo, chats: chats, srv: srv, db: db, sess: sess, bus: b}
}

func (f *fixture) directChat(t *testing.T, a, b string) *model.Chat {
	t.Helper()
	c, err := f.chats.GetOrCreateDirect(context.Background(), a, b)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSendNewDirectChat(t *testing.T) {
	f := newFixture(t, "u1")
	c := f.directChat(t, "u1", "u2")
	ch, unsub := f.bus.Subscribe("message.sent", 1)
	defer unsub()

	msg, err := f.repo.Send(context.Background(), c.ID, "Hello", "")
	if err != nil {
		t.Fatal(err)
	}
	if !msg.IsMe || !msg.Sent || msg.Delivered || msg.Read {
		t.Errorf("flags = isMe:%v sent:%v delivered:%v read:%v", msg.IsMe, msg.Sent, msg.Delivered, msg.Read)
	}
	if msg.RecipientID != "u2" {
		t.Errorf("recipient = %q, want peer u2", msg.RecipientID)
	}

	var stored model.Message
	if !f.srv.Record("messages", msg.ID, &stored) {
		t.Fatal("message not written remotely")
	}
	if got := f.srv.Count("POST", "notifications"); got != 2 {
		t.Errorf("notifications posted = %d, want 2", got)
	}

	updated, _ := f.db.GetChat(c.ID)
	if updated.LastMessage != "Hello" {
		t.Errorf("chat last message = %q, want Hello", updated.LastMessage)
	}

	select {
	case evt := <-ch:
		p := evt.Payload.(bus.MessagesPayload)
		if p.ChatID != c.ID || len(p.Messages) != 1 {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message.sent")
	}
}

func TestSendOfflineQueues(t *testing.T) {
	f := newFixture(t, "u1")
	c := f.directChat(t, "u1", "u2")
	f.srv.SetDown(true)

	msg, err := f.repo.Send(context.Background(), c.ID, "later", "")
	if err != nil {
		t.Fatalf("offline send must not fail: %v", err)
	}
	pending, _ := f.db.PendingOutbox()
	if len(pending) != 1 || pending[0].ID != msg.ID {
		t.Fatalf("pending = %v, want the queued message", pending)
	}
	msgs, err := f.repo.Fetch(context.Background(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Errorf("local history has %d messages, want 1", len(msgs))
	}

	f.srv.SetDown(false)
	if err := f.repo.Push(context.Background(), &pending[0]); err != nil {
		t.Fatal(err)
	}
	// Pushing twice is harmless.
	if err := f.repo.Push(context.Background(), &pending[0]); err != nil {
		t.Errorf("second Push() error = %v", err)
	}
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t, "u1")
	c := f.directChat(t, "u1", "u2")

	if _, err := f.repo.Send(context.Background(), c.ID, "   ", ""); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank send error = %v, want ErrEmptyMessage", err)
	}
	if _, err := f.repo.Send(context.Background(), "missing", "hi", ""); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("unknown chat error = %v, want chat.ErrNotFound", err)
	}
	f.sess.SetUser(nil)
	if _, err := f.repo.Send(context.Background(), c.ID, "hi", ""); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("logged-out send error = %v, want ErrNotLoggedIn", err)
	}
}

func TestSendVoice(t *testing.T) {
	f := newFixture(t, "u1")
	c := f.directChat(t, "u1", "u2")

	msg, err := f.repo.SendVoice(context.Background(), c.ID, Voice{Duration: 7, AudioURL: "blob:abc"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if !msg.IsVoice || msg.Duration != 7 {
		t.Errorf("voice message = %+v", msg)
	}
	updated, _ := f.db.GetChat(c.ID)
	if updated.LastMessage != "Voice message" {
		t.Errorf("preview = %q, want Voice message", updated.LastMessage)
	}
	if _, err := f.repo.SendVoice(context.Background(), c.ID, Voice{}, ""); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("empty voice error = %v, want ErrEmptyMessage", err)
	}
}

func TestFetchIsIdempotentAndOrdered(t *testing.T) {
	f := newFixture(t, "u2")
	c := f.directChat(t, "u2", "u1")

	base := time.Date(2024, 3, 1, 23, 59, 30, 0, time.UTC)
	// Persisted remotely out of order; m2 crosses midnight.
	f.srv.Seed("messages",
		model.Message{ID: "m2", ChatID: c.ID, SenderID: "u1", Text: "second", Timestamp: "00:00", CreatedAt: base.Add(time.Minute), IsMe: true, Sent: true},
		model.Message{ID: "m1", ChatID: c.ID, SenderID: "u1", Text: "first", Timestamp: "23:59", CreatedAt: base, IsMe: true, Sent: true},
	)

	first, err := f.repo.Fetch(context.Background(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.repo.Fetch(context.Background(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("lengths = %d, %d, want 2", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("position %d differs between fetches", i)
		}
	}
	if first[0].ID != "m1" || first[1].ID != "m2" {
		t.Errorf("order = %s, %s, want m1, m2", first[0].ID, first[1].ID)
	}
	if first[0].IsMe {
		t.Error("foreign message adopted with isMe=true")
	}
}

func TestFetchNeverRegressesDelivery(t *testing.T) {
	f := newFixture(t, "u1")
	c := f.directChat(t, "u1", "u2")

	msg, err := f.repo.Send(context.Background(), c.ID, "hi", "")
	if err != nil {
		t.Fatal(err)
	}
	if n, err := f.repo.MarkDelivered(context.Background(), c.ID); err != nil || n != 1 {
		t.Fatalf("MarkDelivered() = %d, %v", n, err)
	}

	// The backend loses the flag.
	patchDelivered(t, f, msg.ID, false)

	msgs, err := f.repo.Fetch(context.Background(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || !msgs[0].Delivered {
		t.Errorf("delivered regressed after merge: %+v", msgs)
	}
}

func patchDelivered(t *testing.T, f *fixture, id string, v bool) {
	t.Helper()
	rc, err := remote.New(remote.Options{BaseURL: f.srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if err := rc.Patch(context.Background(), remote.Messages, id, map[string]any{"delivered": v}, nil); err != nil {
		t.Fatal(err)
	}
}

func TestMarkDeliveredTwiceIsNoop(t *testing.T) {
	f := newFixture(t, "u1")
	c := f.directChat(t, "u1", "u2")
	if _, err := f.repo.Send(context.Background(), c.ID, "hi", ""); err != nil {
		t.Fatal(err)
	}

	f.srv.ResetCounts()
	if n, _ := f.repo.MarkDelivered(context.Background(), c.ID); n != 1 {
		t.Fatalf("first MarkDelivered flipped %d, want 1", n)
	}
	if got := f.srv.Count("PATCH", "messages"); got != 1 {
		t.Errorf("PATCH count = %d, want 1", got)
	}

	f.srv.ResetCounts()
	if n, _ := f.repo.MarkDelivered(context.Background(), c.ID); n != 0 {
		t.Errorf("second MarkDelivered flipped %d, want 0", n)
	}
	if got := f.srv.Count("PATCH", "messages"); got != 0 {
		t.Errorf("second call issued %d PATCHes, want 0", got)
	}
}

func TestMarkReadOnlyTouchesOthers(t *testing.T) {
	f := newFixture(t, "u1")
	c := f.directChat(t, "u1", "u2")
	mine, _ := f.repo.Send(context.Background(), c.ID, "mine", "")
	theirs := &model.Message{ID: "t1", ChatID: c.ID, SenderID: "u2", Text: "theirs", CreatedAt: time.Now()}
	if _, err := f.repo.Ingest(theirs); err != nil {
		t.Fatal(err)
	}

	n, err := f.repo.MarkRead(context.Background(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("MarkRead flipped %d, want 1", n)
	}
	got, _ := f.db.GetMessage(mine.ID)
	if got.Read {
		t.Error("own message marked read")
	}
	got, _ = f.db.GetMessage("t1")
	if !got.Read || !got.Delivered {
		t.Errorf("foreign message flags = %+v", got)
	}
	if n, _ := f.repo.MarkRead(context.Background(), c.ID); n != 0 {
		t.Errorf("second MarkRead flipped %d, want 0", n)
	}
}

func TestIngestPreservesReadAndDedupes(t *testing.T) {
	f := newFixture(t, "u1")

	msg := model.Message{ID: "x1", ChatID: "c", SenderID: "u2", Text: "yo", CreatedAt: time.Now(), IsMe: true}
	inserted, err := f.repo.Ingest(&msg)
	if err != nil || !inserted {
		t.Fatalf("Ingest() = %v, %v", inserted, err)
	}
	if _, err := f.db.MarkRead("c", "u1"); err != nil {
		t.Fatal(err)
	}

	again := model.Message{ID: "x1", ChatID: "c", SenderID: "u2", Text: "yo", CreatedAt: msg.CreatedAt}
	inserted, err = f.repo.Ingest(&again)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("second Ingest() inserted a duplicate")
	}
	got, _ := f.db.GetMessage("x1")
	if got.IsMe || !got.Delivered || !got.Read {
		t.Errorf("flags after re-ingest = %+v", got)
	}
}

func TestConcurrentSendsEndUpOnceInCreationOrder(t *testing.T) {
	f := newFixture(t, "u1")
	c := f.directChat(t, "u1", "u2")

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	var (
		clockMu sync.Mutex
		ticks   int
	)
	f.repo.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}

	// A is created first but its POST is held back so B reaches the
	// backend first.
	f.srv.ResetCounts()
	f.srv.DelayNext("POST", "messages", 300*time.Millisecond)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := f.repo.Send(context.Background(), c.ID, "A", ""); err != nil {
			t.Error(err)
		}
	}()
	deadline := time.Now().Add(2 * time.Second)
	for f.srv.Count("POST", "messages") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first send never reached the backend")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := f.repo.Send(context.Background(), c.ID, "B", ""); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	var remoteMsgs []model.Message
	if err := f.srv.Records("messages", &remoteMsgs); err != nil {
		t.Fatal(err)
	}
	if len(remoteMsgs) != 2 || remoteMsgs[0].Text != "B" {
		t.Fatalf("remote arrival order = %v, want B before A", texts(remoteMsgs))
	}

	msgs, err := f.repo.Fetch(context.Background(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := texts(msgs); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("fetched = %v, want [A B] once each in creation order", got)
	}
}

func texts(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}
