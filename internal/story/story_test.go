package story

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wlite/internal/bus"
	"github.com/matheus3301/wlite/internal/model"
	"github.com/matheus3301/wlite/internal/remote"
	"github.com/matheus3301/wlite/internal/remote/remotetest"
	"github.com/matheus3301/wlite/internal/session"
	"github.com/matheus3301/wlite/internal/store"
	"go.uber.org/zap"
)

type fixture struct {
	repo  *Repository
	srv   *remotetest.Server
	db    *store.DB
	bus   *bus.Bus
	clock time.Time
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
	rc, err := remote.New(remote.Options{BaseURL: srv.URL, Timeout: 2 * time.Second, BreakerFailures: 100})
	if err != nil {
		t.Fatal(err)
	}
	sess := session.New()
	sess.SetUser(&model.User{ID: me})
	b := bus.New()

	f := &fixture{srv: srv, db: db, bus: b, clock: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	f.repo = New(db, rc, sess, b, zap.NewNop())
	f.repo.SetClock(func() time.Time { return f.clock })
	return f
}

func TestCreateStampsExpiry(t *testing.T) {
	f := newFixture(t, "u1")
	events, unsub := f.bus.Subscribe("status.", 2)
	defer unsub()

	s, err := f.repo.Create(context.Background(), Draft{Content: "hello", BackgroundColor: "#075e54"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Type != model.StatusText {
		t.Errorf("type = %q, want text", s.Type)
	}
	if !s.ExpiresAt.Equal(f.clock.Add(24 * time.Hour)) {
		t.Errorf("expiresAt = %v", s.ExpiresAt)
	}
	if !f.srv.Record("statuses", s.ID, &model.Status{}) {
		t.Error("status not written remotely")
	}
	select {
	case ev := <-events:
		if ev.Kind != bus.StatusCreated {
			t.Errorf("kind = %s", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no status.created event")
	}
}

func TestCreateSurvivesRemoteOutage(t *testing.T) {
	f := newFixture(t, "u1")
	f.srv.SetDown(true)
	if _, err := f.repo.Create(context.Background(), Draft{Content: "offline"}); err != nil {
		t.Fatal(err)
	}
	mine, err := f.repo.ListMine()
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 {
		t.Errorf("mine = %d, want 1", len(mine))
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, "u1")
	if _, err := f.repo.Create(context.Background(), Draft{}); err != ErrEmptyContent {
		t.Errorf("err = %v, want ErrEmptyContent", err)
	}
}

func TestExpiredStatusesNeverListed(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()

	if _, err := f.repo.Create(ctx, Draft{Content: "mine"}); err != nil {
		t.Fatal(err)
	}
	other := model.Status{
		ID: "s2", UserID: "u2", Content: "theirs", Type: model.StatusText,
		CreatedAt: f.clock, ExpiresAt: f.clock.Add(24 * time.Hour),
	}
	if err := f.db.UpsertStatus(&other); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		advance time.Duration
		want    int
	}{
		{"fresh", 0, 1},
		{"just before expiry", 23*time.Hour + 59*time.Minute, 1},
		{"at expiry", 24 * time.Hour, 0},
		{"after expiry", 24*time.Hour + time.Minute, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := f.clock
			f.clock = start.Add(tt.advance)
			defer func() { f.clock = start }()

			mine, err := f.repo.ListMine()
			if err != nil {
				t.Fatal(err)
			}
			others, err := f.repo.ListOthers()
			if err != nil {
				t.Fatal(err)
			}
			both, err := f.repo.ListFor([]string{"u1", "u2"})
			if err != nil {
				t.Fatal(err)
			}
			if len(mine) != tt.want || len(others) != tt.want || len(both) != 2*tt.want {
				t.Errorf("mine=%d others=%d both=%d, want %d each", len(mine), len(others), len(both), tt.want)
			}
		})
	}
}

func TestViewIsIdempotent(t *testing.T) {
	f := newFixture(t, "u2")
	ctx := context.Background()
	s := model.Status{
		ID: "s1", UserID: "u1", Content: "hi", Type: model.StatusText,
		CreatedAt: f.clock, ExpiresAt: f.clock.Add(24 * time.Hour), ViewedBy: []string{},
	}
	f.srv.Seed("statuses", s)
	if err := f.db.UpsertStatus(&s); err != nil {
		t.Fatal(err)
	}

	for range 2 {
		got, err := f.repo.View(ctx, "s1", "")
		if err != nil {
			t.Fatal(err)
		}
		if len(got.ViewedBy) != 1 || got.ViewedBy[0] != "u2" {
			t.Errorf("viewedBy = %v", got.ViewedBy)
		}
	}
	if n := f.srv.Count("PATCH", "statuses"); n != 1 {
		t.Errorf("PATCH count = %d, want 1", n)
	}
	var remoteStatus model.Status
	f.srv.Record("statuses", "s1", &remoteStatus)
	if len(remoteStatus.ViewedBy) != 1 {
		t.Errorf("remote viewedBy = %v", remoteStatus.ViewedBy)
	}
}

func TestViewKeepsViewersAddedElsewhere(t *testing.T) {
	f := newFixture(t, "u2")
	ctx := context.Background()
	f.srv.Seed("statuses", model.Status{
		ID: "s1", UserID: "u1", Content: "hi", Type: model.StatusText,
		CreatedAt: f.clock, ExpiresAt: f.clock.Add(24 * time.Hour), ViewedBy: []string{},
	})
	if err := f.repo.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	// Another client records its view after our cache was filled.
	other, err := remote.New(remote.Options{BaseURL: f.srv.URL, Timeout: 2 * time.Second, BreakerFailures: 100})
	if err != nil {
		t.Fatal(err)
	}
	if err := other.Patch(ctx, remote.Statuses, "s1", map[string]any{"viewedBy": []string{"u3"}}, nil); err != nil {
		t.Fatal(err)
	}

	got, err := f.repo.View(ctx, "s1", "")
	if err != nil {
		t.Fatal(err)
	}
	var remoteStatus model.Status
	f.srv.Record("statuses", "s1", &remoteStatus)
	if want := []string{"u3", "u2"}; !equalViewers(remoteStatus.ViewedBy, want) {
		t.Errorf("remote viewedBy = %v, want %v", remoteStatus.ViewedBy, want)
	}
	if len(got.ViewedBy) != 2 {
		t.Errorf("local viewedBy = %v, want both viewers", got.ViewedBy)
	}
}

func TestUnsentViewSurvivesRefresh(t *testing.T) {
	f := newFixture(t, "u2")
	ctx := context.Background()
	f.srv.Seed("statuses", model.Status{
		ID: "s1", UserID: "u1", Content: "hi", Type: model.StatusText,
		CreatedAt: f.clock, ExpiresAt: f.clock.Add(24 * time.Hour), ViewedBy: []string{},
	})
	if err := f.repo.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	f.srv.FailNext("PATCH", "statuses", 1)
	if _, err := f.repo.View(ctx, "s1", ""); err != nil {
		t.Fatal(err)
	}
	var remoteStatus model.Status
	f.srv.Record("statuses", "s1", &remoteStatus)
	if len(remoteStatus.ViewedBy) != 0 {
		t.Fatalf("remote viewedBy = %v, want the PATCH to have failed", remoteStatus.ViewedBy)
	}

	if err := f.repo.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	local, err := f.db.GetStatus("s1")
	if err != nil || local == nil {
		t.Fatalf("status = %v, err = %v", local, err)
	}
	if !equalViewers(local.ViewedBy, []string{"u2"}) {
		t.Errorf("local viewedBy after refresh = %v, want [u2]", local.ViewedBy)
	}
	f.srv.Record("statuses", "s1", &remoteStatus)
	if !equalViewers(remoteStatus.ViewedBy, []string{"u2"}) {
		t.Errorf("remote viewedBy after refresh = %v, want [u2]", remoteStatus.ViewedBy)
	}
}

func TestUnionViewers(t *testing.T) {
	tests := []struct {
		name          string
		remote, local []string
		want          []string
		changed       bool
	}{
		{"same", []string{"a"}, []string{"a"}, []string{"a"}, false},
		{"remote ahead", []string{"a", "b"}, []string{"a"}, []string{"a", "b"}, false},
		{"local ahead", []string{"a"}, []string{"b", "a"}, []string{"a", "b"}, true},
		{"both", nil, []string{"c"}, []string{"c"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := unionViewers(tt.remote, tt.local)
			if changed != tt.changed || !equalViewers(got, tt.want) {
				t.Errorf("unionViewers(%v, %v) = %v, %v; want %v, %v", tt.remote, tt.local, got, changed, tt.want, tt.changed)
			}
		})
	}
}

func equalViewers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestViewUnknown(t *testing.T) {
	f := newFixture(t, "u2")
	if _, err := f.repo.View(context.Background(), "nope", ""); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRefreshReplacesOthersOnly(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()

	mine, err := f.repo.Create(ctx, Draft{Content: "mine"})
	if err != nil {
		t.Fatal(err)
	}
	stale := model.Status{ID: "old", UserID: "u3", Content: "gone", Type: model.StatusText,
		CreatedAt: f.clock, ExpiresAt: f.clock.Add(time.Hour)}
	if err := f.db.UpsertStatus(&stale); err != nil {
		t.Fatal(err)
	}
	f.srv.Seed("statuses", model.Status{ID: "new", UserID: "u2", Content: "fresh", Type: model.StatusText,
		CreatedAt: f.clock, ExpiresAt: f.clock.Add(time.Hour)})

	if err := f.repo.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	others, err := f.repo.ListOthers()
	if err != nil {
		t.Fatal(err)
	}
	if len(others) != 1 || others[0].ID != "new" {
		t.Errorf("others = %+v, want only the remote status", others)
	}
	got, err := f.repo.ListMine()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != mine.ID {
		t.Errorf("mine = %+v", got)
	}
}

func TestRefreshFailureKeepsCache(t *testing.T) {
	f := newFixture(t, "u1")
	cached := model.Status{ID: "c", UserID: "u2", Content: "x", Type: model.StatusText,
		CreatedAt: f.clock, ExpiresAt: f.clock.Add(time.Hour)}
	if err := f.db.UpsertStatus(&cached); err != nil {
		t.Fatal(err)
	}
	f.srv.SetDown(true)
	if err := f.repo.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	others, _ := f.repo.ListOthers()
	if len(others) != 1 {
		t.Errorf("others = %d, want cached 1", len(others))
	}
}

func TestStartStopSync(t *testing.T) {
	f := newFixture(t, "u1")
	f.srv.Seed("statuses", model.Status{ID: "s", UserID: "u2", Content: "x", Type: model.StatusText,
		CreatedAt: f.clock, ExpiresAt: f.clock.Add(time.Hour)})

	f.repo.StartSync(context.Background(), 10*time.Millisecond)
	f.repo.StartSync(context.Background(), 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if others, _ := f.repo.ListOthers(); len(others) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	f.repo.StopSync()
	f.repo.StopSync()

	others, _ := f.repo.ListOthers()
	if len(others) != 1 {
		t.Errorf("others = %d, want 1 after sync", len(others))
	}
}
